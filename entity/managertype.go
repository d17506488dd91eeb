package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"git.fiblab.net/sim/syncer/v3"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(bases []LaneBase) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id string) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id string) (ILane, error)
	Lanes() []ILane

	Prepare(vehicles []IVehicle) // 准备阶段：根据车辆位置重建车道占用
	DetectCollisions() []string  // 检查前后车是否重叠，返回碰撞车辆ID
}

// JunctionBase 路口的静态定义
type JunctionBase struct {
	ID             int32               // 路口ID
	TrafficLightID string              // 信号灯ID
	InLanes        []string            // 受控进口车道，下标即信号灯状态中的link index
	Program        *mapv2.TrafficLight // 信号灯程序，nil表示全绿
}

// entity/junction/trafficlight的依赖倒置
type ITrafficLight interface {
	Get() *mapv2.TrafficLight                        // 当前程序
	Set(tl *mapv2.TrafficLight) error                // 设置程序
	SetPhase(offset int32, remainingT float64) error // 设置相位与剩余时间
	Step() int32                                     // 当前相位
	RemainingTime() float64                          // 当前相位剩余时间
	State() string                                   // 红黄绿状态字符串
	Prepare()                                        // 将状态写入车道
	Update(dt float64)                               // 推进计时
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32
	TrafficLightID() string
	TrafficLight() ITrafficLight
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(bases []JunctionBase, laneManager ILaneManager) // 初始化
	Register(sidecar *syncer.Sidecar)                   // 注册到Sidecar

	// 输入信号灯ID，查找路口，如果不存在则panic
	Get(tlID string) IJunction
	// 输入信号灯ID，查找路口，如果不存在则返回error
	GetOrError(tlID string) (IJunction, error)
	TrafficLightIDs() []string
	// 跳转到指定相位，剩余时间重置为该相位的时长，下一步生效
	SetPhase(tlID string, phase int32) error

	Prepare()          // 准备阶段
	Update(dt float64) // 更新阶段
}

// VehicleBase 车辆的初始状态
type VehicleBase struct {
	ID    string
	Lane  string
	S     float64
	V     float64
	Attr  *personv2.VehicleAttribute
	Noise float64 // 加速度噪声标准差
	RL    bool    // 受控车辆
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	Add(base VehicleBase) error
	Remove(ids []string)
	Reset()

	// 输入车辆ID，查找车辆，如果不存在则panic
	Get(id string) IVehicle
	// 输入车辆ID，查找车辆，如果不存在则返回error
	GetOrError(id string) (IVehicle, error)
	Vehicles() []IVehicle
	IDs() []string

	SetSpeed(id string, v float64) error
	SetMaxSpeed(id string, v float64) error

	Update(dt float64) (finished []string) // 更新阶段，返回驶出路网的车辆
}
