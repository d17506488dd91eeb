package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Register 将ClockService注册到sidecar
// 说明：时钟只读，不需要step锁
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return clockv1connect.NewClockServiceHandler(c, opts...)
		},
		syncer.WithNoLock(),
	)
}

// Now 获取当前回合内的模拟时间
func (c *Clock) Now(ctx context.Context, in *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	return connect.NewResponse(&clockv1.NowResponse{
		T: c.T,
	}), nil
}
