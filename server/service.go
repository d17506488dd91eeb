package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	EnvServiceName = "rlenv.v1.EnvService"

	SpacesProcedure = "/" + EnvServiceName + "/Spaces"
	ResetProcedure  = "/" + EnvServiceName + "/Reset"
	StepProcedure   = "/" + EnvServiceName + "/Step"
)

// EnvService 环境RPC服务
// 功能：通过Connect RPC对外提供Spaces、Reset、Step
// 说明：环境只持有一个模拟器连接，所有调用由互斥锁串行化
type EnvService struct {
	mu  sync.Mutex
	env env.Env
}

func NewEnvService(e env.Env) *EnvService {
	return &EnvService{env: e}
}

// Handler 创建服务的http.Handler
// 返回：路由前缀与处理器
func (s *EnvService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(SpacesProcedure, connect.NewUnaryHandler(SpacesProcedure, s.Spaces, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, s.Reset, opts...))
	mux.Handle(StepProcedure, connect.NewUnaryHandler(StepProcedure, s.Step, opts...))
	return "/" + EnvServiceName + "/", mux
}

// Register 将环境服务注册到sidecar
// 说明：每次Step调用自行推进模拟器，不需要step锁
func (s *EnvService) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(EnvServiceName, s.Handler, syncer.WithNoLock())
}

// Spaces RPC接口：环境名与观测、动作空间
func (s *EnvService) Spaces(
	ctx context.Context, in *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	observation, action := s.env.Spaces()
	return connect.NewResponse(&structpb.Struct{Fields: map[string]*structpb.Value{
		"name":        structpb.NewStringValue(s.env.Name()),
		"observation": boxValue(observation),
		"action":      boxValue(action),
	}}), nil
}

// Reset RPC接口：重新开始回合
// 返回：{observation}
func (s *EnvService) Reset(
	ctx context.Context, in *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, err := s.env.Reset(ctx)
	if err != nil {
		log.Errorf("reset: %v", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&structpb.Struct{Fields: map[string]*structpb.Value{
		"observation": numbers(obs),
	}}), nil
}

// Step RPC接口：施加动作并推进一步
// 参数：{action: [...]}
// 返回：{observation, reward, done, step, info}
func (s *EnvService) Step(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	action, err := numbersField(in.Msg, "action")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.env.Step(ctx, action)
	if err != nil {
		log.Errorf("step: %v", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(stepResultStruct(res)), nil
}

// toConnectError 调用方错误与回合状态错误使用对应的错误码，模拟器错误为Internal
func toConnectError(err error) error {
	switch {
	case errors.Is(err, env.ErrActionSize):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, env.ErrEpisodeDone), errors.Is(err, env.ErrNotReset):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
