package task

import (
	"context"
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/clock"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/lane"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/vehicle"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/input"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/randengine"
)

// Context 内置微观模拟器
// 功能：包含一次模拟的所有变量和状态，实现entity.ISimulation供强化学习环境调用
// 说明：不是并发安全的，同一时刻只能由一个调用方驱动
type Context struct {
	scenario Scenario
	net      network

	// 时钟
	clock *clock.Clock
	// 根随机数引擎，每个回合由其派生
	root *randengine.Engine
	// 当前回合的随机数引擎
	generator *randengine.Engine
	// 已开始的回合数
	episode uint64

	// Lane管理器
	laneManager *lane.LaneManager
	// Junction管理器
	junctionManager *junction.JunctionManager
	// 车辆管理器
	vehicleManager *vehicle.VehicleManager

	// 车辆生成
	inflow *inflow
	// 上一步发生碰撞的车辆，在下一步开始时删除
	colliding []string

	heartbeatInterval int32
}

// NewContext 创建内置微观模拟器并开始第一个回合
// 参数：scenario-路网类型，c-配置，in-外部输入（可为nil）
func NewContext(scenario Scenario, c config.Config, in *input.Input) (*Context, error) {
	if in == nil {
		in = &input.Input{}
	}
	var (
		n   network
		err error
	)
	switch scenario {
	case ScenarioRing:
		n, err = buildRing(c.Scenario.Ring)
	case ScenarioSoftIntersection, ScenarioHardIntersection:
		n, err = buildIntersection(scenario, c.Scenario.Intersection, in.TrafficLight)
	default:
		err = fmt.Errorf("unknown scenario %q", scenario)
	}
	if err != nil {
		return nil, err
	}
	if in.VehicleAttribute != nil {
		for i := range n.vehicles {
			n.vehicles[i].Attr = in.VehicleAttribute
		}
	}
	ctx := &Context{
		scenario:          scenario,
		net:               n,
		clock:             clock.New(c.Control.Step),
		root:              randengine.New(c.Sim.Seed),
		laneManager:       lane.NewManager(),
		junctionManager:   junction.NewManager(),
		heartbeatInterval: c.Control.HeartbeatInterval,
	}
	ctx.vehicleManager = vehicle.NewManager(ctx)
	ctx.inflow = newInflow(ctx, n.entries, c.Scenario.Intersection, in.VehicleAttribute)
	log.Infof("scenario %s: %d lanes, %d junctions, %d vehicles, %d entries",
		scenario, len(n.lanes), len(n.junctions), len(n.vehicles), len(n.entries))
	if err := ctx.Reset(context.Background()); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Register 将时钟与信号灯服务注册到sidecar
func (ctx *Context) Register(sidecar *syncer.Sidecar) {
	ctx.clock.Register(sidecar)
	ctx.junctionManager.Register(sidecar)
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) Rand() *randengine.Engine {
	return ctx.generator
}

func (ctx *Context) Scenario() Scenario {
	return ctx.scenario
}

// Reset 重新开始回合
// 算法说明：
// 1. 由根引擎按回合序号派生本回合随机数引擎，同一种子下第k个回合总是相同
// 2. 重建车道、路口与初始车辆
// 3. 执行一次准备阶段，使查询接口在第一步之前即可用
func (ctx *Context) Reset(_ context.Context) error {
	ctx.generator = ctx.root.Fork(ctx.episode)
	ctx.episode++
	ctx.clock.Reset()
	ctx.colliding = nil
	ctx.laneManager.Init(ctx.net.lanes)
	ctx.junctionManager.Init(ctx.net.junctions, ctx.laneManager)
	ctx.vehicleManager.Reset()
	ctx.inflow.reset()
	for _, base := range ctx.net.vehicles {
		if err := ctx.vehicleManager.Add(base); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	ctx.junctionManager.Update(0)
	ctx.junctionManager.Prepare()
	ctx.laneManager.Prepare(ctx.vehicleManager.Vehicles())
	log.Debugf("episode %d reset with %d vehicles", ctx.episode, len(ctx.net.vehicles))
	return nil
}

// SimulationStep 推进一步
// 算法说明：
// 1. 删除上一步发生碰撞的车辆
// 2. 信号灯更新并将状态写入车道
// 3. 车辆并行计算加速度后并行积分，驶出路网的车辆被删除
// 4. 车道重建占用，进口车道按概率生成车辆
// 5. 碰撞检测，碰撞车辆在本步仍可被查询
func (ctx *Context) SimulationStep(c context.Context) error {
	if err := c.Err(); err != nil {
		return err
	}
	dt := ctx.clock.DT
	ctx.vehicleManager.Remove(ctx.colliding)

	ctx.junctionManager.Update(dt)
	ctx.junctionManager.Prepare()

	finished := ctx.vehicleManager.Update(dt)
	ctx.laneManager.Prepare(ctx.vehicleManager.Vehicles())
	if ctx.inflow.insert() > 0 {
		ctx.laneManager.Prepare(ctx.vehicleManager.Vehicles())
	}
	ctx.colliding = ctx.laneManager.DetectCollisions()
	ctx.clock.Tick()

	log.Debugf("step %d: %d vehicles, %d finished, %d colliding",
		ctx.clock.Step, len(ctx.vehicleManager.IDs()), len(finished), len(ctx.colliding))
	if ctx.heartbeatInterval > 0 && ctx.clock.Step%ctx.heartbeatInterval == 0 {
		log.Infof("STEP: %d(%s)", ctx.clock.Step, ctx.clock)
	}
	return nil
}

// CollidingVehicleIDs 上一步发生碰撞的车辆
func (ctx *Context) CollidingVehicleIDs(context.Context) ([]string, error) {
	return slices.Clone(ctx.colliding), nil
}

func (ctx *Context) DeltaT() float64 {
	return ctx.clock.DT
}

func (ctx *Context) Close() error {
	return nil
}

// 车道查询

func (ctx *Context) LaneMeanSpeed(_ context.Context, laneID string) (float64, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return l.MeanSpeed(), nil
}

func (ctx *Context) LaneVehicleNumber(_ context.Context, laneID string) (int, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return len(l.Vehicles()), nil
}

func (ctx *Context) LaneLength(_ context.Context, laneID string) (float64, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return l.Length(), nil
}

func (ctx *Context) LaneMaxSpeed(_ context.Context, laneID string) (float64, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return l.MaxV(), nil
}

func (ctx *Context) LaneFuelConsumption(_ context.Context, laneID string) (float64, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return l.Fuel(), nil
}

func (ctx *Context) LaneCO2Emission(_ context.Context, laneID string) (float64, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return 0, err
	}
	return l.CO2(), nil
}

func (ctx *Context) LaneVehicleIDs(_ context.Context, laneID string) ([]string, error) {
	l, err := ctx.laneManager.GetOrError(laneID)
	if err != nil {
		return nil, err
	}
	return lo.Map(l.Vehicles(), func(v entity.IVehicle, _ int) string { return v.ID() }), nil
}

// 车辆查询与控制

func (ctx *Context) VehicleIDs(context.Context) ([]string, error) {
	return ctx.vehicleManager.IDs(), nil
}

func (ctx *Context) VehicleSpeed(_ context.Context, vehicleID string) (float64, error) {
	v, err := ctx.vehicleManager.GetOrError(vehicleID)
	if err != nil {
		return 0, err
	}
	return v.V(), nil
}

func (ctx *Context) VehicleLaneID(_ context.Context, vehicleID string) (string, error) {
	v, err := ctx.vehicleManager.GetOrError(vehicleID)
	if err != nil {
		return "", err
	}
	return v.Lane().ID(), nil
}

func (ctx *Context) VehicleLanePosition(_ context.Context, vehicleID string) (float64, error) {
	v, err := ctx.vehicleManager.GetOrError(vehicleID)
	if err != nil {
		return 0, err
	}
	return v.S(), nil
}

func (ctx *Context) SetVehicleSpeed(_ context.Context, vehicleID string, speed float64) error {
	return ctx.vehicleManager.SetSpeed(vehicleID, speed)
}

func (ctx *Context) SetVehicleMaxSpeed(_ context.Context, vehicleID string, speed float64) error {
	return ctx.vehicleManager.SetMaxSpeed(vehicleID, speed)
}

// 信号灯查询与控制

func (ctx *Context) TrafficLightIDs(context.Context) ([]string, error) {
	return ctx.junctionManager.TrafficLightIDs(), nil
}

func (ctx *Context) TrafficLightState(_ context.Context, tlID string) (string, error) {
	j, err := ctx.junctionManager.GetOrError(tlID)
	if err != nil {
		return "", err
	}
	return j.TrafficLight().State(), nil
}

// TrafficLightDefinition 内置模拟器每个信号灯只有一个程序
func (ctx *Context) TrafficLightDefinition(_ context.Context, tlID string) ([]*mapv2.TrafficLight, error) {
	j, err := ctx.junctionManager.GetOrError(tlID)
	if err != nil {
		return nil, err
	}
	tl := j.TrafficLight().Get()
	if tl == nil {
		return []*mapv2.TrafficLight{}, nil
	}
	return []*mapv2.TrafficLight{protoutil.Clone(tl)}, nil
}

func (ctx *Context) TrafficLightPhase(_ context.Context, tlID string) (int, error) {
	j, err := ctx.junctionManager.GetOrError(tlID)
	if err != nil {
		return 0, err
	}
	return int(j.TrafficLight().Step()), nil
}

func (ctx *Context) SetTrafficLightPhase(_ context.Context, tlID string, phase int) error {
	return ctx.junctionManager.SetPhase(tlID, int32(phase))
}
