package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/container"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/randengine"
)

var ErrUnknownPolicy = errors.New("unknown policy")

// Policy 内置策略
type Policy interface {
	Name() string
	// Act 根据观测与回合内步数给出动作
	Act(obs []float64, step int) []float64
}

// Constant 固定动作
type Constant struct {
	action []float64
}

func NewConstant(action []float64) *Constant {
	return &Constant{action: action}
}

func (p *Constant) Name() string { return "constant" }

func (p *Constant) Act([]float64, int) []float64 {
	return append([]float64(nil), p.action...)
}

// Idle 全零动作：环形道路上受控车辆保持速度
type Idle struct {
	size int
}

func NewIdle(size int) *Idle {
	return &Idle{size: size}
}

func (p *Idle) Name() string { return "idle" }

func (p *Idle) Act([]float64, int) []float64 {
	return make([]float64, p.size)
}

// Random 在动作空间内均匀采样
type Random struct {
	space env.Box
	rand  *randengine.Engine
}

func NewRandom(space env.Box, seed uint64) *Random {
	return &Random{space: space, rand: randengine.New(seed)}
}

func (p *Random) Name() string { return "random" }

func (p *Random) Act([]float64, int) []float64 {
	return lo.Map(p.space.Low, func(low float64, i int) float64 {
		return p.rand.Uniform(low, p.space.High[i])
	})
}

// ObservationLayout 单路口观测中各字段的位置
type ObservationLayout struct {
	Locations  int // 进口（出口）位置数
	InDensity  int // 进口密度起始下标
	OutDensity int // 出口密度起始下标
	Phase      int // 相位下标
}

// LayoutOf 由观测维数推断布局
func LayoutOf(size int) (ObservationLayout, error) {
	const locations = 8
	var fields int
	switch size {
	case env.SoftObservationSize:
		fields = 3
	case env.HardObservationSize:
		fields = 4
	default:
		return ObservationLayout{}, fmt.Errorf("%w: no intersection layout for size %d", env.ErrObservationSize, size)
	}
	return ObservationLayout{
		Locations:  locations,
		InDensity:  2 * locations,
		OutDensity: fields*locations + 2*locations,
		Phase:      size - 1,
	}, nil
}

// MaxPressure 最大压力相位选择
// 功能：每个进口位置的压力为进口密度减出口密度，相位压力为该相位下绿灯位置的压力之和，
// 选择压力最大的相位，沿相位顺序逐个推进直到到达该相位
// 说明：每个相位至少保持hold步；没有绿灯的相位（黄灯）不作为目标；
// 速度部分始终为speed
type MaxPressure struct {
	layout ObservationLayout
	greens [][]bool // 相位->位置是否为绿灯
	hold   int
	speed  float64

	current int // 上一步观测到的相位
	held    int // 当前相位已保持的步数
}

// NewMaxPressure 根据信号灯程序创建最大压力策略
// 说明：第i个位置对应程序中的第i个link
func NewMaxPressure(layout ObservationLayout, programs []*mapv2.TrafficLight, hold int, speed float64) (*MaxPressure, error) {
	phases := lo.Flatten(lo.Map(programs, func(tl *mapv2.TrafficLight, _ int) []*mapv2.Phase { return tl.Phases }))
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: max pressure needs a traffic light program", env.ErrNoTrafficLight)
	}
	greens := make([][]bool, len(phases))
	for i, phase := range phases {
		if len(phase.States) < layout.Locations {
			return nil, fmt.Errorf("phase %d has %d states, need %d", i, len(phase.States), layout.Locations)
		}
		greens[i] = lo.Map(phase.States[:layout.Locations], func(s mapv2.LightState, _ int) bool {
			return s == mapv2.LightState_LIGHT_STATE_GREEN
		})
	}
	return &MaxPressure{layout: layout, greens: greens, hold: hold, speed: speed}, nil
}

func (p *MaxPressure) Name() string { return "max-pressure" }

// Target 压力最大的相位
func (p *MaxPressure) Target(obs []float64) int {
	l := p.layout
	pressure := lo.Times(l.Locations, func(i int) float64 {
		return obs[l.InDensity+i] - obs[l.OutDensity+i]
	})
	queue := container.NewPriorityQueue[int]()
	for i, green := range p.greens {
		if !lo.Contains(green, true) {
			continue
		}
		sum := 0.
		for j, g := range green {
			if g {
				sum += pressure[j]
			}
		}
		queue.Push(i, -sum) // 小顶堆，压力越大越靠前
	}
	if queue.Len() == 0 {
		return 0
	}
	queue.Heapify()
	target, _ := queue.HeapPop()
	return target
}

func (p *MaxPressure) Act(obs []float64, step int) []float64 {
	count := len(p.greens)
	current := int(obs[p.layout.Phase]) % count
	if step == 0 || current != p.current {
		p.current = current
		p.held = 0
	}
	p.held++
	action := lo.Times(p.layout.Locations+1, func(int) float64 { return p.speed })
	action[p.layout.Locations] = 0
	if p.held >= p.hold && p.Target(obs) != current {
		action[p.layout.Locations] = 1
	}
	return action
}

// NewPolicy 按名称创建策略
// 参数：name-策略名，e-环境，sim-模拟器（max-pressure读取信号灯程序），c-配置
func NewPolicy(ctx context.Context, name string, e env.Env, sim entity.ISimulation, c config.Config) (Policy, error) {
	observation, action := e.Spaces()
	ring := e.Name() == env.NameRingAccel
	speed := c.Scenario.Intersection.SpeedLimit
	switch name {
	case "constant":
		if ring {
			return NewConstant(make([]float64, action.Shape())), nil
		}
		values := lo.Times(action.Shape(), func(int) float64 { return speed })
		values[len(values)-1] = 1
		return NewConstant(values), nil
	case "idle":
		return NewIdle(action.Shape()), nil
	case "random":
		return NewRandom(action, c.Sim.Seed), nil
	case "max-pressure":
		if ring {
			return nil, fmt.Errorf("%w: max-pressure on %s", ErrUnknownPolicy, e.Name())
		}
		layout, err := LayoutOf(observation.Shape())
		if err != nil {
			return nil, err
		}
		ids, err := sim.TrafficLightIDs(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, env.ErrNoTrafficLight
		}
		programs, err := sim.TrafficLightDefinition(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		hold := max(int(math.Round(minPhaseTime/c.Control.Step.Interval)), 1)
		return NewMaxPressure(layout, programs, hold, speed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// minPhaseTime 最大压力策略中每个相位的最短保持时间（秒）
const minPhaseTime = 5.
