package env

import (
	"context"
	"fmt"

	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// Env 强化学习环境
type Env interface {
	Name() string
	// Spaces 观测空间与动作空间，构造后不再变化
	Spaces() (observation, action Box)
	// Reset 重新开始回合，完成预热后返回第一个观测
	Reset(ctx context.Context) ([]float64, error)
	// Step 施加动作并推进一步
	Step(ctx context.Context, action []float64) (StepResult, error)
	Close() error
}

// StepResult 一步的结果
type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
	Info        map[string]float64 // 调试信息：step、phase、collisions等
}

const (
	NameSoftIntersection = "soft-intersection"
	NameHardIntersection = "hard-intersection"
	NameRingAccel        = "ring-accel"
)

// Make 按名称构造环境
// 参数：name-环境名，sim-已完成初始化的模拟器，c-配置
// 说明：additional_params缺少必需键时返回config.ErrMissingParam
func Make(ctx context.Context, name string, sim entity.ISimulation, c config.Config) (Env, error) {
	switch name {
	case NameSoftIntersection:
		v, err := NewSoftVariant(ctx, sim, c.Env)
		if err != nil {
			return nil, err
		}
		return NewIntersectionEnv(sim, v, c.Control.Step)
	case NameHardIntersection:
		v, err := NewHardVariant(ctx, sim, c.Env)
		if err != nil {
			return nil, err
		}
		return NewIntersectionEnv(sim, v, c.Control.Step)
	case NameRingAccel:
		return NewRingAccelEnv(ctx, sim, c.Env, c.Control.Step)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnv, name)
	}
}

// episode 回合的步数与结束状态
type episode struct {
	horizon int
	warmup  int
	step    int
	ready   bool
	done    bool
}

func newEpisode(c config.ControlStep) episode {
	return episode{horizon: int(c.Horizon), warmup: int(c.Warmup)}
}

func (e *episode) begin() {
	e.step = 0
	e.ready = true
	e.done = false
}

// check 检查是否可以继续Step
func (e *episode) check() error {
	if !e.ready {
		return ErrNotReset
	}
	if e.done {
		return ErrEpisodeDone
	}
	return nil
}

// fail 模拟器错误结束回合
func (e *episode) fail(err error) error {
	e.done = true
	return err
}

// advance 步数加一，达到horizon时回合结束
func (e *episode) advance() bool {
	e.step++
	if e.step >= e.horizon {
		e.done = true
	}
	return e.done
}
