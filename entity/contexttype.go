package entity

import (
	"github.com/tsinghua-fib-lab/moss-rl-env/clock"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/randengine"
)

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	JunctionManager() IJunctionManager
	VehicleManager() IVehicleManager
	Rand() *randengine.Engine
}
