package server

import (
	"context"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client 环境RPC服务的客户端
type Client struct {
	spaces *connect.Client[emptypb.Empty, structpb.Struct]
	reset  *connect.Client[emptypb.Empty, structpb.Struct]
	step   *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient 创建客户端
// 参数：httpClient-HTTP客户端，baseURL-服务地址（如http://localhost:51102）
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		spaces: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SpacesProcedure, opts...),
		reset:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ResetProcedure, opts...),
		step:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StepProcedure, opts...),
	}
}

// Spaces 环境名与观测、动作空间
func (c *Client) Spaces(ctx context.Context) (string, env.Box, env.Box, error) {
	res, err := c.spaces.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return "", env.Box{}, env.Box{}, err
	}
	observation, err := toBox(res.Msg, "observation")
	if err != nil {
		return "", env.Box{}, env.Box{}, err
	}
	action, err := toBox(res.Msg, "action")
	if err != nil {
		return "", env.Box{}, env.Box{}, err
	}
	return res.Msg.Fields["name"].GetStringValue(), observation, action, nil
}

func (c *Client) Reset(ctx context.Context) ([]float64, error) {
	res, err := c.reset.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return numbersField(res.Msg, "observation")
}

func (c *Client) Step(ctx context.Context, action []float64) (env.StepResult, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{"action": numbers(action)}}
	res, err := c.step.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return env.StepResult{}, err
	}
	return toStepResult(res.Msg)
}
