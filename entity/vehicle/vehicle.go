package vehicle

import (
	"fmt"

	"git.fiblab.net/general/common/v2/protoutil"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/randengine"
)

// DefaultAttribute 默认车辆属性（IDM参数）
func DefaultAttribute() *personv2.VehicleAttribute {
	return &personv2.VehicleAttribute{
		Length:                   5,
		Width:                    2,
		MaxSpeed:                 30,
		MaxAcceleration:          1,
		MaxBrakingAcceleration:   -7.5,
		UsualAcceleration:        1,
		UsualBrakingAcceleration: -1.5,
		Headway:                  1,
		MinGap:                   2,
	}
}

// checkAttribute 车辆属性检查
func checkAttribute(id string, attr *personv2.VehicleAttribute) error {
	switch {
	case attr.MaxSpeed <= 0:
		return fmt.Errorf("vehicle %s max speed %v is not positive", id, attr.MaxSpeed)
	case attr.MaxAcceleration <= 0:
		return fmt.Errorf("vehicle %s max acceleration %v is not positive", id, attr.MaxAcceleration)
	case attr.MaxBrakingAcceleration >= 0:
		return fmt.Errorf("vehicle %s max braking acceleration %v is not negative", id, attr.MaxBrakingAcceleration)
	case attr.UsualBrakingAcceleration >= 0:
		return fmt.Errorf("vehicle %s usual braking acceleration %v is not negative", id, attr.UsualBrakingAcceleration)
	case attr.Length <= 0:
		return fmt.Errorf("vehicle %s length %v is not positive", id, attr.Length)
	case attr.MinGap < 0 || attr.Headway < 0:
		return fmt.Errorf("vehicle %s has negative min gap %v or headway %v", id, attr.MinGap, attr.Headway)
	}
	return nil
}

// Vehicle 车辆实体
// 功能：人类驾驶车辆（IDM+噪声）或受控车辆（外部设定速度）
// 说明：更新分两阶段：先并行计算所有车辆的加速度（只读其他车辆），再并行积分位置（只写自身）
type Vehicle struct {
	id        string
	attr      *personv2.VehicleAttribute
	rl        bool
	noise     float64
	generator *randengine.Engine

	lane entity.ILane
	s    float64
	v    float64
	a    float64
	fuel float64
	co2  float64

	cmdSpeed    float64 // 设定速度，<0表示不生效
	cmdMaxSpeed float64 // 设定最大速度，<0表示不生效

	finished bool // 已驶出路网
}

func newVehicle(base entity.VehicleBase, lane entity.ILane, generator *randengine.Engine) (*Vehicle, error) {
	attr := base.Attr
	if attr == nil {
		attr = DefaultAttribute()
	} else {
		attr = protoutil.Clone(attr)
	}
	if err := checkAttribute(base.ID, attr); err != nil {
		return nil, err
	}
	if base.S < 0 || base.S > lane.Length() {
		return nil, fmt.Errorf("vehicle %s position %v out of lane %s [0, %v]", base.ID, base.S, lane.ID(), lane.Length())
	}
	v := &Vehicle{
		id:          base.ID,
		attr:        attr,
		rl:          base.RL,
		noise:       base.Noise,
		generator:   generator,
		lane:        lane,
		s:           base.S,
		v:           base.V,
		cmdSpeed:    -1,
		cmdMaxSpeed: -1,
	}
	v.fuel, v.co2 = emission(v.v, 0)
	return v, nil
}

func (v *Vehicle) ID() string {
	return v.id
}

func (v *Vehicle) Attr() *personv2.VehicleAttribute {
	return v.attr
}

func (v *Vehicle) Lane() entity.ILane {
	return v.lane
}

func (v *Vehicle) S() float64 {
	return v.s
}

func (v *Vehicle) V() float64 {
	return v.v
}

func (v *Vehicle) A() float64 {
	return v.a
}

func (v *Vehicle) Length() float64 {
	return v.attr.Length
}

func (v *Vehicle) Fuel() float64 {
	return v.fuel
}

func (v *Vehicle) CO2() float64 {
	return v.co2
}

// IsRL 是否为受控车辆
func (v *Vehicle) IsRL() bool {
	return v.rl
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle{%s lane=%s s=%.2f v=%.2f}", v.id, v.lane.ID(), v.s, v.v)
}

// computeVAndDistance 匀加速运动，刹停后不再后退
func computeVAndDistance(v, a, dt float64) (float64, float64) {
	dv := a * dt
	if v+dv < 0 {
		// 刹车到停止
		return 0, v * v / 2 / -a
	}
	return v + dv, (v + dv/2) * dt
}

// integrate 积分阶段：按上一阶段计算的加速度更新速度、位置与排放
func (v *Vehicle) integrate(dt float64) {
	newV, d := computeVAndDistance(v.v, v.a, dt)
	v.v = newV
	v.s += d
	for v.s > v.lane.Length() {
		v.s -= v.lane.Length()
		next := v.lane.Successor()
		if next == nil {
			v.finished = true
			return
		}
		v.lane = next
	}
	v.fuel, v.co2 = emission(v.v, v.a)
}
