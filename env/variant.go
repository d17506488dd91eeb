package env

import (
	"context"
	"fmt"
	"math"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// Variant 单路口环境的一种控制方式
// 功能：决定检测位置、动作解释、奖励与观测；由IntersectionEnv在每步按 Advance->模拟->Poll->Observe/Reward 的顺序调用
type Variant interface {
	Name() string
	// Locations 进口与出口检测位置
	Locations() (inflow, outflow []string)
	// Spaces 观测空间与动作空间
	Spaces() (observation, action Box)
	// Reset 回合开始时清空内部状态
	Reset(ctx context.Context) error
	// Advance 应用动作：推送速度参考并推进相位
	Advance(ctx context.Context, action []float64) error
	// Poll 模拟器推进一步后重新查询检测器
	Poll(ctx context.Context) error
	// Reward 最近一次Poll对应的奖励
	Reward() float64
	// Observe 最近一次Poll对应的观测
	Observe() ([]float64, error)
	// Phase 相位控制器
	Phase() PhaseController
}

// bounds 东、南、西、北四个进口方向，每个方向两条车道
const (
	boundNum      = 4
	lanesPerBound = 2
	actionSize    = boundNum*lanesPerBound + 1
)

// intersection soft与hard变体共用的部分
type intersection struct {
	sim    entity.ISimulation
	params config.EnvParams
	tlID   string

	inflow, outflow []string
	sensor          *SensorAggregator
	phase           PhaseController
	speedLimit      float64

	inflowReadings, outflowReadings []LocationReading
}

// newIntersection 查询信号灯与限速，初始化检测器与相位控制器
// 说明：相位总数为信号灯所有程序的相位数之和
func newIntersection(
	ctx context.Context, sim entity.ISimulation, params config.EnvParams,
	inflow, outflow []string, collisions bool,
	newPhase func(count int) PhaseController,
) (*intersection, error) {
	ids, err := sim.TrafficLightIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("query traffic lights: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoTrafficLight
	}
	tlID := ids[0]
	def, err := sim.TrafficLightDefinition(ctx, tlID)
	if err != nil {
		return nil, fmt.Errorf("query traffic light %s definition: %w", tlID, err)
	}
	count := lo.SumBy(def, func(tl *mapv2.TrafficLight) int { return len(tl.Phases) })
	if count == 0 {
		return nil, fmt.Errorf("%w: traffic light %s has no phase", ErrNoTrafficLight, tlID)
	}
	speedLimit, err := sim.LaneMaxSpeed(ctx, inflow[0])
	if err != nil {
		return nil, fmt.Errorf("query speed limit of %s: %w", inflow[0], err)
	}
	log.Infof("traffic light %s with %d phases, speed limit %v", tlID, count, speedLimit)
	return &intersection{
		sim:        sim,
		params:     params,
		tlID:       tlID,
		inflow:     inflow,
		outflow:    outflow,
		sensor:     NewSensorAggregator(sim, collisions),
		phase:      newPhase(count),
		speedLimit: speedLimit,
	}, nil
}

func (i *intersection) Locations() ([]string, []string) {
	return i.inflow, i.outflow
}

func (i *intersection) Phase() PhaseController {
	return i.phase
}

func (i *intersection) reset() {
	i.sensor.Reset()
	i.phase.Reset()
	i.inflowReadings = make([]LocationReading, len(i.inflow))
	i.outflowReadings = make([]LocationReading, len(i.outflow))
}

// Poll 一次查询进口与出口，碰撞车辆只取一次
func (i *intersection) Poll(ctx context.Context) error {
	readings, err := i.sensor.PollOrdered(ctx, append(append([]string{}, i.inflow...), i.outflow...))
	if err != nil {
		return err
	}
	i.inflowReadings = readings[:len(i.inflow)]
	i.outflowReadings = readings[len(i.inflow):]
	return nil
}

// setPhase 将动作最后一维截断取整作为相位增量
func (i *intersection) setPhase(ctx context.Context, last float64) error {
	requested := 0
	if !math.IsNaN(last) {
		requested = int(lo.Clamp(last, math.MinInt32, math.MaxInt32))
	}
	phase := i.phase.Advance(requested)
	if err := i.sim.SetTrafficLightPhase(ctx, i.tlID, phase); err != nil {
		return fmt.Errorf("set traffic light %s phase %d: %w", i.tlID, phase, err)
	}
	return nil
}

// broadcast 向车道上的所有车辆推送速度
func (i *intersection) broadcast(ctx context.Context, laneID string, speed float64, set func(context.Context, string, float64) error) error {
	ids, err := i.sim.LaneVehicleIDs(ctx, laneID)
	if err != nil {
		return fmt.Errorf("query vehicles on %s: %w", laneID, err)
	}
	for _, id := range ids {
		if err := set(ctx, id, speed); err != nil {
			return fmt.Errorf("broadcast %v to %s on %s: %w", speed, id, laneID, err)
		}
	}
	return nil
}

func checkAction(action []float64) error {
	if len(action) != actionSize {
		return fmt.Errorf("%w: got %d values, want %d", ErrActionSize, len(action), actionSize)
	}
	return nil
}

// SoftVariant 限速引导
// 功能：每个控制间隔从动作中采样8个进口车道的参考速度与相位增量，每步将参考速度设为车道上车辆的最大速度
type SoftVariant struct {
	*intersection
	interval  int
	step      int
	reference []float64 // 与broadcast位置一一对应

	observation, action Box
}

// SoftInflowLocations soft变体的进口位置，同时也是速度引导位置
var SoftInflowLocations = []string{
	"e_1_sbc+_0", "e_1_sbc+_1", // east bound
	"e_3_sbc+_0", "e_3_sbc+_1", // south bound
	"e_5_sbc+_0", "e_5_sbc+_1", // west bound
	"e_7_sbc+_0", "e_7_sbc+_1", // north bound
}

// SoftOutflowLocations soft变体的出口位置
var SoftOutflowLocations = []string{
	"e_2_sbc-_0", "e_2_sbc-_1",
	"e_4_sbc-_0", "e_4_sbc-_1",
	"e_6_sbc-_0", "e_6_sbc-_1",
	"e_8_sbc-_0", "e_8_sbc-_1",
}

// NewSoftVariant 创建soft变体
func NewSoftVariant(ctx context.Context, sim entity.ISimulation, c config.Env) (*SoftVariant, error) {
	params, err := config.NewEnvParams(c.AdditionalParams, config.IntersectionParams)
	if err != nil {
		return nil, err
	}
	interval := c.ControlInterval
	if interval <= 0 {
		return nil, fmt.Errorf("control interval must be positive, got %d", interval)
	}
	base, err := newIntersection(ctx, sim, params, SoftInflowLocations, SoftOutflowLocations, false,
		func(count int) PhaseController { return NewSoftPhase(count, interval, c.PhaseIncrementOnce) })
	if err != nil {
		return nil, err
	}
	v := &SoftVariant{
		intersection: base,
		interval:     interval,
		observation:  observationSpace(len(base.inflow), 3),
		action:       NewBox(actionSize, 0, math.Max(base.speedLimit, 1)),
	}
	if err := v.Reset(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *SoftVariant) Name() string {
	return "soft-intersection"
}

func (v *SoftVariant) Spaces() (Box, Box) {
	return v.observation, v.action
}

// Reset 参考速度恢复为车道限速
func (v *SoftVariant) Reset(ctx context.Context) error {
	v.reset()
	v.step = 0
	v.reference = make([]float64, len(v.inflow))
	for i, loc := range v.inflow {
		limit, err := v.sim.LaneMaxSpeed(ctx, loc)
		if err != nil {
			return fmt.Errorf("query speed limit of %s: %w", loc, err)
		}
		v.reference[i] = limit
	}
	return nil
}

// Advance 每interval步采样一次参考速度（截断为非负），每步推送参考速度并推进相位
func (v *SoftVariant) Advance(ctx context.Context, action []float64) error {
	if err := checkAction(action); err != nil {
		return err
	}
	if v.step%v.interval == 0 {
		for i := range v.reference {
			v.reference[i] = math.Max(action[i], 0)
		}
	}
	v.step++
	for i, loc := range v.inflow {
		if err := v.broadcast(ctx, loc, v.reference[i], v.sim.SetVehicleMaxSpeed); err != nil {
			return err
		}
	}
	return v.setPhase(ctx, action[len(action)-1])
}

func (v *SoftVariant) Reward() float64 {
	return Navigation(v.params.Alpha, v.inflowReadings)
}

func (v *SoftVariant) Observe() ([]float64, error) {
	obs := assembleObservation(v.inflowReadings, v.outflowReadings, v.phase.Phase(), false)
	if err := checkObservation(obs, v.observation); err != nil {
		return nil, err
	}
	return obs, nil
}

// HardVariant 速度指令
// 功能：每步将动作前8维作为对应进口车道所有分段上车辆的设定速度，最后一维为相位增量（对相位数取模）
type HardVariant struct {
	*intersection
	weight float64
	groups [][]string // 动作第i维控制的车道

	observation, action Box
}

const hardZones = 4

// HardInflowLocations hard变体的进口位置（紧邻路口的分段）
var HardInflowLocations = []string{
	"e_1_zone1>_0", "e_1_zone1>_1", // east bound
	"e_2_zone1>_0", "e_2_zone1>_1", // south bound
	"e_3_zone1>_0", "e_3_zone1>_1", // west bound
	"e_4_zone1>_0", "e_4_zone1>_1", // north bound
}

// HardOutflowLocations hard变体的出口位置（紧邻路口的分段）
var HardOutflowLocations = []string{
	"e_1_zone1<_0", "e_1_zone1<_1",
	"e_2_zone1<_0", "e_2_zone1<_1",
	"e_3_zone1<_0", "e_3_zone1<_1",
	"e_4_zone1<_0", "e_4_zone1<_1",
}

// HardCommandGroups hard变体的速度指令分组：每个进口车道的全部分段
func HardCommandGroups() [][]string {
	groups := make([][]string, 0, boundNum*lanesPerBound)
	for bound := 1; bound <= boundNum; bound++ {
		for lane := range lanesPerBound {
			groups = append(groups, lo.Times(hardZones, func(z int) string {
				return fmt.Sprintf("e_%d_zone%d>_%d", bound, z+1, lane)
			}))
		}
	}
	return groups
}

// NewHardVariant 创建hard变体
func NewHardVariant(ctx context.Context, sim entity.ISimulation, c config.Env) (*HardVariant, error) {
	params, err := config.NewEnvParams(c.AdditionalParams, config.IntersectionParams)
	if err != nil {
		return nil, err
	}
	base, err := newIntersection(ctx, sim, params, HardInflowLocations, HardOutflowLocations, true,
		func(count int) PhaseController { return NewHardPhase(count) })
	if err != nil {
		return nil, err
	}
	weight := DefaultCollisionWeight
	if c.CollisionWeight != nil {
		weight = *c.CollisionWeight
	}
	v := &HardVariant{
		intersection: base,
		weight:       weight,
		groups:       HardCommandGroups(),
		observation:  observationSpace(len(base.inflow), 4),
		action:       NewBox(actionSize, 0, math.Max(base.speedLimit, float64(base.phase.Count()))),
	}
	if err := v.Reset(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *HardVariant) Name() string {
	return "hard-intersection"
}

func (v *HardVariant) Spaces() (Box, Box) {
	return v.observation, v.action
}

func (v *HardVariant) Reset(context.Context) error {
	v.reset()
	return nil
}

// Advance 每步推送设定速度（截断为非负）并推进相位
func (v *HardVariant) Advance(ctx context.Context, action []float64) error {
	if err := checkAction(action); err != nil {
		return err
	}
	for i, group := range v.groups {
		speed := math.Max(action[i], 0)
		for _, loc := range group {
			if err := v.broadcast(ctx, loc, speed, v.sim.SetVehicleSpeed); err != nil {
				return err
			}
		}
	}
	return v.setPhase(ctx, action[len(action)-1])
}

// Reward 安全项使用全路网本步发生碰撞的车辆数
func (v *HardVariant) Reward() float64 {
	return HardReward(v.params.Alpha, v.params.Beta, v.weight, v.inflowReadings, v.sensor.CollidingNumber())
}

func (v *HardVariant) Observe() ([]float64, error) {
	obs := assembleObservation(v.inflowReadings, v.outflowReadings, v.phase.Phase(), true)
	if err := checkObservation(obs, v.observation); err != nil {
		return nil, err
	}
	return obs, nil
}
