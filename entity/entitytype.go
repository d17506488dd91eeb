package entity

import (
	"context"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
)

// 模拟器控制接口：环境只通过以下接口与模拟器交互，
// 由内置微观模拟器(task.Context)与TraCI客户端(traci.Client)分别实现

// 车道查询
type ILaneQuery interface {
	LaneMeanSpeed(ctx context.Context, laneID string) (float64, error)       // 上一步平均速度（无车时为限速）
	LaneVehicleNumber(ctx context.Context, laneID string) (int, error)       // 上一步车辆数
	LaneLength(ctx context.Context, laneID string) (float64, error)          // 车道长度
	LaneMaxSpeed(ctx context.Context, laneID string) (float64, error)        // 车道限速
	LaneFuelConsumption(ctx context.Context, laneID string) (float64, error) // 上一步油耗（mg/s）
	LaneCO2Emission(ctx context.Context, laneID string) (float64, error)     // 上一步CO2排放（mg/s）
	LaneVehicleIDs(ctx context.Context, laneID string) ([]string, error)     // 上一步车道上的车辆ID
}

// 车辆查询与控制
type IVehicleControl interface {
	VehicleIDs(ctx context.Context) ([]string, error)
	VehicleSpeed(ctx context.Context, vehicleID string) (float64, error)
	VehicleLaneID(ctx context.Context, vehicleID string) (string, error)
	VehicleLanePosition(ctx context.Context, vehicleID string) (float64, error)
	// 设置车辆速度，持续生效直到再次设置；负值表示恢复跟驰模型控制
	SetVehicleSpeed(ctx context.Context, vehicleID string, speed float64) error
	// 设置车辆最大速度，持续生效
	SetVehicleMaxSpeed(ctx context.Context, vehicleID string, speed float64) error
}

// 信号灯查询与控制
type ITrafficLightControl interface {
	TrafficLightIDs(ctx context.Context) ([]string, error)
	TrafficLightState(ctx context.Context, tlID string) (string, error) // 形如"GGrrGGrr"的红黄绿状态
	// 完整信号灯程序定义，每个logic对应一个mapv2.TrafficLight
	TrafficLightDefinition(ctx context.Context, tlID string) ([]*mapv2.TrafficLight, error)
	TrafficLightPhase(ctx context.Context, tlID string) (int, error)
	// 切换到指定相位，相位剩余时间重置为该相位的时长
	SetTrafficLightPhase(ctx context.Context, tlID string, phase int) error
}

// ISimulation 模拟器控制接口
type ISimulation interface {
	ILaneQuery
	IVehicleControl
	ITrafficLightControl

	SimulationStep(ctx context.Context) error                  // 推进一步
	CollidingVehicleIDs(ctx context.Context) ([]string, error) // 上一步发生碰撞的车辆
	DeltaT() float64                                           // 每步时长（秒）
	Reset(ctx context.Context) error                           // 重新开始回合
	Close() error
}

// 内置微观模拟器的实体接口

// LaneBase 车道的静态定义
type LaneBase struct {
	ID        string  // 车道ID，如e_1_zone1>_0
	Length    float64 // 长度（米）
	MaxSpeed  float64 // 限速（米/秒）
	Successor string  // 后继车道ID，为空表示驶出路网
}

// ILane entity/lane/lane.go的依赖倒置
type ILane interface {
	ID() string
	Length() float64
	MaxV() float64
	Successor() ILane              // 后继车道，nil表示路网出口
	Light() mapv2.LightState       // 车道末端信号灯状态
	Vehicles() []IVehicle          // 车道上的车辆（按S从小到大排序）
	FirstAfter(s float64) IVehicle // 车道上位置大于s的第一辆车，不存在则为nil

	MeanSpeed() float64 // 平均速度（无车时为限速）
	Fuel() float64      // 车道上车辆油耗之和（mg/s）
	CO2() float64       // 车道上车辆CO2排放之和（mg/s）
}

// ILaneTrafficLightSetter 信号灯向车道写入状态的接口
type ILaneTrafficLightSetter interface {
	ID() string
	SetLight(state mapv2.LightState)
}

// IVehicle entity/vehicle/vehicle.go的依赖倒置
type IVehicle interface {
	ID() string
	Attr() *personv2.VehicleAttribute
	Lane() ILane
	S() float64      // 车头在车道上的位置
	V() float64      // 速度
	A() float64      // 上一步加速度
	Length() float64 // 车长
	Fuel() float64   // 上一步油耗（mg/s）
	CO2() float64    // 上一步CO2排放（mg/s）
}
