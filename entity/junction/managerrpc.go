package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
)

// Register 将Junction管理器注册到sidecar
// 说明：信号灯服务只读写下一步生效的buffer，路口索引与信号灯状态各自持有锁，不需要step锁；
// 环境控制路口期间相位数固定，替换程序时相位数不同会被拒绝
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
		syncer.WithNoLock(),
	)
}

// GetTrafficLight RPC接口：获取指定Junction的信号灯状态
// 返回：当前程序、相位索引和剩余时间；没有程序时返回空响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	req := in.Msg
	j, ok := m.byJunctionID(req.JunctionId)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if tl := j.trafficLight.Get(); tl == nil {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	} else {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{
			TrafficLight:  tl,
			PhaseIndex:    j.trafficLight.Step(),
			TimeRemaining: j.trafficLight.RemainingTime(),
		}), nil
	}
}

// SetTrafficLight RPC接口：替换指定Junction的信号灯程序
// 说明：time_remaining为0时使用起始相位的完整时长
func (m *JunctionManager) SetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightRequest],
) (*connect.Response[mapv2.SetTrafficLightResponse], error) {
	req := in.Msg
	if req.TrafficLight == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("empty traffic light"))
	}
	j, ok := m.byJunctionID(req.TrafficLight.JunctionId)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if req.TimeRemaining < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid remaining time"))
	}
	if err := j.trafficLight.Set(req.TrafficLight); errors.Is(err, trafficlight.ErrPhaseCount) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	} else if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	remaining := req.TimeRemaining
	if remaining == 0 {
		remaining = -1
	}
	if err := j.setPhase(req.PhaseIndex, remaining); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightResponse{}), nil
}

// SetTrafficLightPhase RPC接口：设置指定Junction的信号灯相位
// 说明：只修改相位状态，不改变信号灯程序；time_remaining为0时使用该相位的完整时长
func (m *JunctionManager) SetTrafficLightPhase(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightPhaseRequest],
) (*connect.Response[mapv2.SetTrafficLightPhaseResponse], error) {
	req := in.Msg
	j, ok := m.byJunctionID(req.JunctionId)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	if req.TimeRemaining < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid remaining time"))
	}
	remaining := req.TimeRemaining
	if remaining == 0 {
		remaining = -1
	}
	if err := j.setPhase(req.PhaseIndex, remaining); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightPhaseResponse{}), nil
}
