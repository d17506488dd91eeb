package task

import (
	"fmt"
	"math"

	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/vehicle"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// inflow 进口车道的车辆生成器
// 功能：每步对每条进口车道以固定概率在车道起点生成一辆车，前车过近时放弃本次生成
type inflow struct {
	ctx         entity.ITaskContext
	entries     []string
	probability float64
	departSpeed float64
	attr        *personv2.VehicleAttribute

	counts []int // 每条进口车道累计生成的车辆数
}

func newInflow(ctx entity.ITaskContext, entries []string, c config.Intersection, attr *personv2.VehicleAttribute) *inflow {
	if attr == nil {
		attr = vehicle.DefaultAttribute()
	}
	return &inflow{
		ctx:         ctx,
		entries:     entries,
		probability: c.InflowProbability,
		departSpeed: c.DepartSpeed,
		attr:        attr,
		counts:      make([]int, len(entries)),
	}
}

func (f *inflow) reset() {
	f.counts = make([]int, len(f.entries))
}

// insert 生成车辆
// 返回：本步生成的车辆数
// 说明：车辆车头位于车道起点，要求与前车车尾的距离不小于最小车距加上以最大减速度停车的距离
func (f *inflow) insert() int {
	if f.probability <= 0 {
		return 0
	}
	rand := f.ctx.Rand()
	required := f.attr.MinGap + f.departSpeed*f.departSpeed/2/math.Abs(f.attr.MaxBrakingAcceleration)
	inserted := 0
	for i, laneID := range f.entries {
		// 先抽样再检查空间，保证随机数序列与车辆分布无关
		if !rand.PTrue(f.probability) {
			continue
		}
		lane := f.ctx.LaneManager().Get(laneID)
		if first := lane.FirstAfter(-1); first != nil && first.S()-first.Length() < required {
			continue
		}
		id := fmt.Sprintf("flow_%d.%d", i, f.counts[i])
		err := f.ctx.VehicleManager().Add(entity.VehicleBase{
			ID:   id,
			Lane: laneID,
			S:    0,
			V:    math.Min(f.departSpeed, lane.MaxV()),
			Attr: f.attr,
		})
		if err != nil {
			log.Errorf("insert vehicle %s error: %v", id, err)
			continue
		}
		f.counts[i]++
		inserted++
	}
	return inserted
}
