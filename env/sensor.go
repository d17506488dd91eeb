package env

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

// LocationReading 一个检测位置（车道）在一步内的统计量
type LocationReading struct {
	Acceleration   float64 // 平均速度的一步差分（米/秒²），可以为负
	Speed          float64 // 平均速度（米/秒）
	VehicleCount   int     // 车辆数
	LaneLength     float64 // 车道长度（米）
	Density        float64 // VehicleCount / LaneLength
	FuelRate       float64 // 油耗（mg/s）
	CO2Rate        float64 // CO2排放（mg/s）
	CollisionCount *int    // 车道上发生碰撞的车辆数，未统计碰撞时为nil
}

// SensorAggregator 检测器汇总
// 功能：每步查询一组车道的实时状态，计算加速度、密度等派生量
// 说明：每个位置只保留上一步的平均速度，用于下一步的加速度差分
type SensorAggregator struct {
	sim        entity.ISimulation
	dt         float64
	collisions bool

	previous        map[string]float64 // 位置->上一步平均速度
	collidingNumber int                // 最近一次Poll时全路网发生碰撞的车辆数
}

// NewSensorAggregator 创建检测器汇总
// 参数：sim-模拟器，collisions-是否统计碰撞
func NewSensorAggregator(sim entity.ISimulation, collisions bool) *SensorAggregator {
	return &SensorAggregator{
		sim:        sim,
		dt:         sim.DeltaT(),
		collisions: collisions,
		previous:   make(map[string]float64),
	}
}

// Reset 回合开始时清空上一步速度
func (a *SensorAggregator) Reset() {
	a.previous = make(map[string]float64)
	a.collidingNumber = 0
}

// Poll 查询所有位置
// 返回：位置->统计量
func (a *SensorAggregator) Poll(ctx context.Context, locations []string) (map[string]LocationReading, error) {
	readings, err := a.PollOrdered(ctx, locations)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(lo.Zip2(locations, readings), func(t lo.Tuple2[string, LocationReading]) (string, LocationReading) {
		return t.A, t.B
	}), nil
}

// PollOrdered 按输入顺序查询所有位置
// 算法说明：
// 1. 统计碰撞时先取本步全部碰撞车辆
// 2. 对每个位置查询平均速度、车辆数、长度、油耗、CO2，以及车道上的车辆
// 3. 加速度 = (速度 - 上一步速度) / dt，密度 = 车辆数 / 长度
// 说明：模拟器错误附上位置名后原样返回，不重试；上一步速度只在全部查询成功后更新
func (a *SensorAggregator) PollOrdered(ctx context.Context, locations []string) ([]LocationReading, error) {
	var colliding map[string]struct{}
	if a.collisions {
		ids, err := a.sim.CollidingVehicleIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("query colliding vehicles: %w", err)
		}
		colliding = lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	}
	res := make([]LocationReading, len(locations))
	for i, loc := range locations {
		r, err := a.read(ctx, loc, colliding)
		if err != nil {
			return nil, fmt.Errorf("poll location %s: %w", loc, err)
		}
		res[i] = r
	}
	for i, loc := range locations {
		a.previous[loc] = res[i].Speed
	}
	a.collidingNumber = len(colliding)
	return res, nil
}

// CollidingNumber 最近一次查询时全路网发生碰撞的车辆数
func (a *SensorAggregator) CollidingNumber() int {
	return a.collidingNumber
}

func (a *SensorAggregator) read(ctx context.Context, loc string, colliding map[string]struct{}) (LocationReading, error) {
	var r LocationReading
	var err error
	if r.Speed, err = a.sim.LaneMeanSpeed(ctx, loc); err != nil {
		return r, err
	}
	if r.VehicleCount, err = a.sim.LaneVehicleNumber(ctx, loc); err != nil {
		return r, err
	}
	if r.LaneLength, err = a.sim.LaneLength(ctx, loc); err != nil {
		return r, err
	}
	if r.LaneLength <= 0 {
		return r, fmt.Errorf("%w: %v", ErrBadLaneLength, r.LaneLength)
	}
	if r.FuelRate, err = a.sim.LaneFuelConsumption(ctx, loc); err != nil {
		return r, err
	}
	if r.CO2Rate, err = a.sim.LaneCO2Emission(ctx, loc); err != nil {
		return r, err
	}
	if a.collisions {
		ids, err := a.sim.LaneVehicleIDs(ctx, loc)
		if err != nil {
			return r, err
		}
		n := lo.CountBy(ids, func(id string) bool {
			_, ok := colliding[id]
			return ok
		})
		r.CollisionCount = &n
	}
	r.Acceleration = (r.Speed - a.previous[loc]) / a.dt
	r.Density = float64(r.VehicleCount) / r.LaneLength
	return r, nil
}
