package env

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// RingEdges 环形道路按行驶顺序排列的四条边
var RingEdges = []string{"bottom", "right", "top", "left"}

// rlPrefix 受控车辆ID前缀
const rlPrefix = "rl"

// RingAccelEnv 环形道路加速度控制环境
// 功能：控制环上的受控车辆加速度，使全体车辆接近目标速度，抑制走停波
// 说明：观测中的车辆顺序在构造时按ID排序后固定，已离开路网的车辆观测为0
type RingAccelEnv struct {
	sim     entity.ISimulation
	params  config.EnvParams
	episode episode

	ids        []string           // 全部车辆，按ID排序
	rl         []string           // 受控车辆，按ID排序
	offsets    map[string]float64 // 边->起点在环上的位置
	length     float64            // 环长
	speedLimit float64

	observation, action Box
}

// NewRingAccelEnv 创建环形道路环境
func NewRingAccelEnv(ctx context.Context, sim entity.ISimulation, c config.Env, step config.ControlStep) (*RingAccelEnv, error) {
	params, err := config.NewEnvParams(c.AdditionalParams, config.RingParams)
	if err != nil {
		return nil, err
	}
	e := &RingAccelEnv{
		sim:     sim,
		params:  params,
		episode: newEpisode(step),
		offsets: make(map[string]float64, len(RingEdges)),
	}
	for _, edge := range RingEdges {
		length, err := sim.LaneLength(ctx, edge+"_0")
		if err != nil {
			return nil, fmt.Errorf("query ring edge %s: %w", edge, err)
		}
		e.offsets[edge] = e.length
		e.length += length
	}
	if e.length <= 0 {
		return nil, fmt.Errorf("%w: ring length %v", ErrBadLaneLength, e.length)
	}
	if e.speedLimit, err = sim.LaneMaxSpeed(ctx, RingEdges[0]+"_0"); err != nil {
		return nil, fmt.Errorf("query ring speed limit: %w", err)
	}
	if e.ids, err = sim.VehicleIDs(ctx); err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	slices.Sort(e.ids)
	e.rl = lo.Filter(e.ids, func(id string, _ int) bool { return strings.HasPrefix(id, rlPrefix) })
	if len(e.rl) == 0 {
		return nil, fmt.Errorf("no controlled vehicle (id prefix %q) on the ring", rlPrefix)
	}
	e.observation = NewBox(2*len(e.ids), 0, 1)
	e.action = NewBox(len(e.rl), -params.MaxDecel, params.MaxAccel)
	log.Infof("env %s: ring length %v, %d vehicles, %d controlled", NameRingAccel, e.length, len(e.ids), len(e.rl))
	return e, nil
}

func (e *RingAccelEnv) Name() string {
	return NameRingAccel
}

func (e *RingAccelEnv) Spaces() (Box, Box) {
	return e.observation, e.action
}

// Reset 预热期间受控车辆由跟驰模型控制
func (e *RingAccelEnv) Reset(ctx context.Context) ([]float64, error) {
	if err := e.sim.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset simulation: %w", err)
	}
	for range e.episode.warmup {
		if err := e.sim.SimulationStep(ctx); err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}
	obs, _, err := e.observe(ctx)
	if err != nil {
		return nil, err
	}
	e.episode.begin()
	return obs, nil
}

// Step 将加速度截断到[-max_decel, max_accel]，设定速度为max(v+a*dt, 0)
// 说明：发生碰撞或达到horizon时回合结束
func (e *RingAccelEnv) Step(ctx context.Context, action []float64) (StepResult, error) {
	if err := e.episode.check(); err != nil {
		return StepResult{}, err
	}
	accel, err := e.action.Clip(action)
	if err != nil {
		return StepResult{}, err
	}
	present, err := e.present(ctx)
	if err != nil {
		return StepResult{}, e.episode.fail(err)
	}
	dt := e.sim.DeltaT()
	for i, id := range e.rl {
		if _, ok := present[id]; !ok {
			continue
		}
		v, err := e.sim.VehicleSpeed(ctx, id)
		if err != nil {
			return StepResult{}, e.episode.fail(fmt.Errorf("query speed of %s: %w", id, err))
		}
		if err := e.sim.SetVehicleSpeed(ctx, id, math.Max(v+accel[i]*dt, 0)); err != nil {
			return StepResult{}, e.episode.fail(fmt.Errorf("set speed of %s: %w", id, err))
		}
	}
	if err := e.sim.SimulationStep(ctx); err != nil {
		return StepResult{}, e.episode.fail(fmt.Errorf("simulation step: %w", err))
	}
	obs, speeds, err := e.observe(ctx)
	if err != nil {
		return StepResult{}, e.episode.fail(err)
	}
	colliding, err := e.sim.CollidingVehicleIDs(ctx)
	if err != nil {
		return StepResult{}, e.episode.fail(fmt.Errorf("query colliding vehicles: %w", err))
	}
	reward := DesiredVelocity(speeds, e.params.TargetVelocity, len(colliding) > 0)
	done := e.episode.advance()
	if len(colliding) > 0 {
		log.Warnf("collision at step %d: %v", e.episode.step, colliding)
		e.episode.done = true
		done = true
	}
	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Info: map[string]float64{
			"step":       float64(e.episode.step),
			"collisions": float64(len(colliding)),
		},
	}, nil
}

func (e *RingAccelEnv) Close() error {
	return e.sim.Close()
}

func (e *RingAccelEnv) present(ctx context.Context) (map[string]struct{}, error) {
	ids, err := e.sim.VehicleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	return lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} }), nil
}

// observe 观测与在路网上车辆的速度
// 观测：速度/限速，之后为 环上位置/环长，均截断到[0, 1]
func (e *RingAccelEnv) observe(ctx context.Context) ([]float64, []float64, error) {
	present, err := e.present(ctx)
	if err != nil {
		return nil, nil, err
	}
	n := len(e.ids)
	obs := make([]float64, 2*n)
	speeds := make([]float64, 0, n)
	for i, id := range e.ids {
		if _, ok := present[id]; !ok {
			continue
		}
		v, err := e.sim.VehicleSpeed(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("query speed of %s: %w", id, err)
		}
		pos, err := e.position(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		speeds = append(speeds, v)
		obs[i] = lo.Clamp(v/e.speedLimit, 0, 1)
		obs[n+i] = lo.Clamp(pos/e.length, 0, 1)
	}
	return obs, speeds, nil
}

// position 车辆在环上的绝对位置
func (e *RingAccelEnv) position(ctx context.Context, id string) (float64, error) {
	laneID, err := e.sim.VehicleLaneID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("query lane of %s: %w", id, err)
	}
	s, err := e.sim.VehicleLanePosition(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("query position of %s: %w", id, err)
	}
	edge := laneID
	if i := strings.LastIndex(laneID, "_"); i >= 0 {
		edge = laneID[:i]
	}
	offset, ok := e.offsets[edge]
	if !ok {
		return 0, fmt.Errorf("vehicle %s on unknown ring lane %s", id, laneID)
	}
	return offset + s, nil
}
