package experiment

import (
	"context"
	"fmt"

	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/recorder"
	"github.com/tsinghua-fib-lab/moss-rl-env/task"
	"github.com/tsinghua-fib-lab/moss-rl-env/traci"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/input"
)

// NewSimulation 按配置创建模拟器后端
// 说明：micro为内置微观模拟器，traci为外部SUMO进程
func NewSimulation(ctx context.Context, c config.Config) (entity.ISimulation, error) {
	switch c.Sim.Backend {
	case "micro":
		scenario, err := task.ScenarioOf(c.Env.Name)
		if err != nil {
			return nil, err
		}
		in, err := input.Init(c.Scenario)
		if err != nil {
			return nil, err
		}
		sim, err := task.NewContext(scenario, c, in)
		if err != nil {
			return nil, err
		}
		return sim, nil
	case "traci":
		client, err := traci.Launch(ctx, c.Sim.Traci, c.Control.Step.Interval, c.Sim.Seed)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown sim backend %q", c.Sim.Backend)
	}
}

// Build 创建模拟器、环境与策略
// 返回：Runner与释放模拟器的函数
func Build(ctx context.Context, c config.Config, rec recorder.Recorder) (*Runner, func(), error) {
	sim, err := NewSimulation(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := sim.Close(); err != nil {
			log.Warnf("close simulation: %v", err)
		}
	}
	e, err := env.Make(ctx, c.Env.Name, sim, c)
	if err != nil {
		release()
		return nil, nil, err
	}
	policy, err := NewPolicy(ctx, c.Experiment.Policy, e, sim, c)
	if err != nil {
		release()
		return nil, nil, err
	}
	return &Runner{Env: e, Policy: policy, Recorder: rec, Seed: c.Sim.Seed}, release, nil
}
