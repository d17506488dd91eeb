package env

import (
	"context"
	"fmt"

	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// IntersectionEnv 单路口环境
// 功能：驱动Variant完成 动作->模拟一步->检测->观测与奖励 的控制循环
type IntersectionEnv struct {
	sim     entity.ISimulation
	variant Variant
	episode episode

	observation, action Box
}

// NewIntersectionEnv 创建单路口环境
// 说明：构造时检查观测长度与观测空间一致
func NewIntersectionEnv(sim entity.ISimulation, variant Variant, c config.ControlStep) (*IntersectionEnv, error) {
	e := &IntersectionEnv{
		sim:     sim,
		variant: variant,
		episode: newEpisode(c),
	}
	e.observation, e.action = variant.Spaces()
	if _, err := variant.Observe(); err != nil {
		return nil, fmt.Errorf("%s: %w", variant.Name(), err)
	}
	log.Infof("env %s: observation %d, action %d, horizon %d, warmup %d",
		variant.Name(), e.observation.Shape(), e.action.Shape(), e.episode.horizon, e.episode.warmup)
	return e, nil
}

func (e *IntersectionEnv) Name() string {
	return e.variant.Name()
}

func (e *IntersectionEnv) Spaces() (Box, Box) {
	return e.observation, e.action
}

// Variant 环境使用的控制方式
func (e *IntersectionEnv) Variant() Variant {
	return e.variant
}

// Reset 重置模拟器与变体，预热期间只推进模拟与检测，不施加动作
func (e *IntersectionEnv) Reset(ctx context.Context) ([]float64, error) {
	if err := e.sim.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset simulation: %w", err)
	}
	if err := e.variant.Reset(ctx); err != nil {
		return nil, err
	}
	for range e.episode.warmup {
		if err := e.sim.SimulationStep(ctx); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
		if err := e.variant.Poll(ctx); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}
	if e.episode.warmup == 0 {
		if err := e.variant.Poll(ctx); err != nil {
			return nil, err
		}
	}
	obs, err := e.variant.Observe()
	if err != nil {
		return nil, err
	}
	e.episode.begin()
	return obs, nil
}

// Step 施加动作并推进一步
// 算法说明：
// 1. 推送速度参考与相位增量
// 2. 模拟器推进一步
// 3. 重新检测，生成观测与奖励
// 说明：动作维数错误时回合继续，模拟器或检测出错时结束回合
func (e *IntersectionEnv) Step(ctx context.Context, action []float64) (StepResult, error) {
	if err := e.episode.check(); err != nil {
		return StepResult{}, err
	}
	if len(action) != e.action.Shape() {
		return StepResult{}, fmt.Errorf("%w: got %d values, want %d", ErrActionSize, len(action), e.action.Shape())
	}
	if err := e.variant.Advance(ctx, action); err != nil {
		return StepResult{}, e.episode.fail(err)
	}
	if err := e.sim.SimulationStep(ctx); err != nil {
		return StepResult{}, e.episode.fail(fmt.Errorf("simulation step: %w", err))
	}
	if err := e.variant.Poll(ctx); err != nil {
		return StepResult{}, e.episode.fail(err)
	}
	obs, err := e.variant.Observe()
	if err != nil {
		return StepResult{}, e.episode.fail(err)
	}
	reward := e.variant.Reward()
	done := e.episode.advance()
	info := map[string]float64{
		"step":  float64(e.episode.step),
		"phase": float64(e.variant.Phase().Phase()),
	}
	if hard, ok := e.variant.(*HardVariant); ok {
		info["collisions"] = float64(hard.sensor.CollidingNumber())
	}
	log.Debugf("%s step %d: reward %v", e.variant.Name(), e.episode.step, reward)
	return StepResult{Observation: obs, Reward: reward, Done: done, Info: info}, nil
}

func (e *IntersectionEnv) Close() error {
	return e.sim.Close()
}
