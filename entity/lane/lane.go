package lane

import (
	"sort"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

// Lane 车道实体
// 功能：表示路网中的一条车道，记录长度、限速、后继关系、信号灯状态与车辆占用
// 说明：车辆列表与统计量在准备阶段重建，更新阶段只读
type Lane struct {
	id          string
	length      float64 // 车道长度
	maxV        float64 // 车道限速
	successorID string
	successor   entity.ILane // 后继车道，nil为出口

	lightState mapv2.LightState // 车道末端信号灯状态

	vehicles []entity.IVehicle // 按S排序的车辆
	meanV    float64           // 平均速度
	fuel     float64           // 油耗之和
	co2      float64           // CO2排放之和
}

// newLane 创建并初始化一个新的Lane实例
// 参数：base-车道静态定义
// 返回：初始化完成的Lane实例（后继关系由管理器建立）
func newLane(base entity.LaneBase) *Lane {
	if base.Length <= 0 {
		log.Panicf("lane %s has non-positive length %v", base.ID, base.Length)
	}
	return &Lane{
		id:          base.ID,
		length:      base.Length,
		maxV:        base.MaxSpeed,
		successorID: base.Successor,
		lightState:  mapv2.LightState_LIGHT_STATE_GREEN,
		vehicles:    make([]entity.IVehicle, 0),
		meanV:       base.MaxSpeed,
	}
}

// initWithManager 建立后继关系
func (l *Lane) initWithManager(laneManager entity.ILaneManager) {
	if l.successorID != "" {
		l.successor = laneManager.Get(l.successorID)
	}
}

// prepare 准备阶段
// 功能：根据本步车辆位置重建有序车辆列表，并计算平均速度与排放统计
// 参数：vehicles-位于本车道上的车辆（无序）
func (l *Lane) prepare(vehicles []entity.IVehicle) {
	sort.Slice(vehicles, func(i, j int) bool {
		if vehicles[i].S() == vehicles[j].S() {
			return vehicles[i].ID() < vehicles[j].ID()
		}
		return vehicles[i].S() < vehicles[j].S()
	})
	l.vehicles = vehicles
	if len(vehicles) == 0 {
		// 与SUMO一致：无车时平均速度为限速
		l.meanV = l.maxV
		l.fuel = 0
		l.co2 = 0
		return
	}
	l.meanV = lo.SumBy(vehicles, func(v entity.IVehicle) float64 { return v.V() }) / float64(len(vehicles))
	l.fuel = lo.SumBy(vehicles, func(v entity.IVehicle) float64 { return v.Fuel() })
	l.co2 = lo.SumBy(vehicles, func(v entity.IVehicle) float64 { return v.CO2() })
}

// collisions 返回本车道上与前车重叠的车辆
// 算法说明：
// 1. 检查本车道上相邻两车：前车车尾位置小于后车车头位置即为碰撞
// 2. 检查本车道最后一辆车与后继车道第一辆车
func (l *Lane) collisions() []string {
	res := make([]string, 0)
	for i := 0; i+1 < len(l.vehicles); i++ {
		back, front := l.vehicles[i], l.vehicles[i+1]
		if front.S()-front.Length()-back.S() < 0 {
			res = append(res, back.ID(), front.ID())
		}
	}
	if len(l.vehicles) > 0 && l.successor != nil {
		back := l.vehicles[len(l.vehicles)-1]
		if front := l.successor.FirstAfter(-1); front != nil && front != back {
			if l.length-back.S()+front.S()-front.Length() < 0 {
				res = append(res, back.ID(), front.ID())
			}
		}
	}
	return res
}

func (l *Lane) ID() string {
	return l.id
}

func (l *Lane) Length() float64 {
	return l.length
}

func (l *Lane) MaxV() float64 {
	return l.maxV
}

func (l *Lane) Successor() entity.ILane {
	return l.successor
}

func (l *Lane) Light() mapv2.LightState {
	return l.lightState
}

// SetLight 写入信号灯状态（由信号灯在准备阶段调用）
func (l *Lane) SetLight(state mapv2.LightState) {
	l.lightState = state
}

func (l *Lane) Vehicles() []entity.IVehicle {
	return l.vehicles
}

// FirstAfter 查找位置大于s的第一辆车
func (l *Lane) FirstAfter(s float64) entity.IVehicle {
	i := sort.Search(len(l.vehicles), func(i int) bool { return l.vehicles[i].S() > s })
	if i == len(l.vehicles) {
		return nil
	}
	return l.vehicles[i]
}

func (l *Lane) MeanSpeed() float64 {
	return l.meanV
}

func (l *Lane) Fuel() float64 {
	return l.fuel
}

func (l *Lane) CO2() float64 {
	return l.co2
}

func (l *Lane) String() string {
	return "Lane{" + l.id + "}"
}
