package junction

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
)

var (
	ErrDisabledTrafficLight = trafficlight.ErrNoProgram
)

// Junction 路口实体
// 功能：持有受控进口车道与信号灯，link index即进口车道在InLanes中的下标
type Junction struct {
	id           int32
	tlID         string
	inLanes      []entity.ILane
	trafficLight *trafficlight.LocalTrafficLight
}

// newJunction 创建并初始化一个新的Junction实例
// 参数：base-路口静态定义，laneManager-车道管理器
// 返回：初始化完成的Junction实例，程序非空时立即写入信号灯
func newJunction(base entity.JunctionBase, laneManager entity.ILaneManager) *Junction {
	j := &Junction{
		id:   base.ID,
		tlID: base.TrafficLightID,
		inLanes: lo.Map(base.InLanes, func(id string, _ int) entity.ILane {
			return laneManager.Get(id)
		}),
	}
	setters := lo.Map(j.inLanes, func(l entity.ILane, _ int) entity.ILaneTrafficLightSetter {
		return l.(entity.ILaneTrafficLightSetter)
	})
	j.trafficLight = trafficlight.NewLocalTrafficLight(j.id, setters)
	if base.Program != nil {
		if err := j.trafficLight.Set(base.Program); err != nil {
			log.Panicf("set program of junction %d error: %v", j.id, err)
		}
	}
	return j
}

func (j *Junction) prepare() {
	j.trafficLight.Prepare()
}

func (j *Junction) update(dt float64) {
	j.trafficLight.Update(dt)
}

func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) TrafficLightID() string {
	return j.tlID
}

func (j *Junction) TrafficLight() entity.ITrafficLight {
	return j.trafficLight
}

// InLanes 受控进口车道
func (j *Junction) InLanes() []entity.ILane {
	return j.inLanes
}

// setPhase 跳转到指定相位并以该相位的完整时长重新计时
// 说明：remainingT<0时使用该相位的时长
func (j *Junction) setPhase(phase int32, remainingT float64) error {
	return j.trafficLight.SetPhase(phase, remainingT)
}
