package trafficlight

import (
	"errors"
	"fmt"
	"sync"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

var (
	// 替换程序时相位数必须与当前程序一致
	ErrPhaseCount = errors.New("phase count of traffic light is fixed")
	ErrNoProgram  = errors.New("traffic light is disabled for the junction")
)

// localTlRuntime 本地信号灯运行时数据结构
// 功能：存储固定相位信号灯的运行时状态，包括程序、相位索引、剩余时间
type localTlRuntime struct {
	tl           *mapv2.TrafficLight
	tlStep       int32
	tlRemainingT float64
}

// LocalTrafficLight 本地固定相位信号灯控制器
// 功能：按照预设的相位顺序和时长循环切换，支持外部跳转到指定相位
// 说明：所有方法持有mu，RPC协程与模拟协程可以并发调用
type LocalTrafficLight struct {
	mu sync.Mutex

	junctionID int32                            // 所属junction ID
	lanes      []entity.ILaneTrafficLightSetter // 受控车道，下标即link index

	snapshot localTlRuntime  // snapshot，用于保存输出的数据
	runtime  localTlRuntime  // 运行时数据
	buffer   *localTlRuntime // 数据buffer，用于交互式接口写入(optional)
}

// NewLocalTrafficLight 创建固定相位信号灯控制器
// 参数：junctionID-路口ID，lanes-受控车道列表
func NewLocalTrafficLight(junctionID int32, lanes []entity.ILaneTrafficLightSetter) *LocalTrafficLight {
	return &LocalTrafficLight{
		junctionID: junctionID,
		lanes:      lanes,
	}
}

// Prepare 准备阶段
// 功能：将当前相位写入车道，没有信号灯程序时保持全绿
func (l *LocalTrafficLight) Prepare() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot = l.runtime
	if l.snapshot.tl == nil {
		for _, lane := range l.lanes {
			lane.SetLight(mapv2.LightState_LIGHT_STATE_GREEN)
		}
		return
	}
	p := l.snapshot.tl.Phases[l.snapshot.tlStep]
	for i, lane := range l.lanes {
		lane.SetLight(p.States[i])
	}
}

// Update 更新阶段
// 功能：应用buffer中的写入，然后扣减剩余时间，到时后按顺序切换到下一个时长为正的相位
// 参数：dt-时间步长
func (l *LocalTrafficLight) Update(dt float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buffer != nil {
		l.runtime = *l.buffer
		l.buffer = nil
	}
	if l.runtime.tl == nil {
		return
	}

	l.runtime.tlRemainingT -= dt
	if l.runtime.tlRemainingT <= 0 {
		n := int32(len(l.runtime.tl.Phases))
		for range n {
			l.runtime.tlStep = (l.runtime.tlStep + 1) % n
			l.runtime.tlRemainingT += l.runtime.tl.Phases[l.runtime.tlStep].Duration
			if l.runtime.tlRemainingT > 0 {
				return
			}
		}
		log.Warnf("traffic light of junction %d remaining time %f <= 0", l.junctionID, l.runtime.tlRemainingT)
	}
}

// Get 获取当前信号灯程序，没有程序则返回nil
func (l *LocalTrafficLight) Get() *mapv2.TrafficLight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot.tl
}

// Set 设置信号灯程序
// 功能：检查程序与受控车道是否匹配，并从第0个相位开始执行
// 说明：程序设置会延迟到下一个更新周期生效；已有程序时新程序的相位数必须相同
func (l *LocalTrafficLight) Set(tl *mapv2.TrafficLight) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tl.JunctionId != l.junctionID {
		return fmt.Errorf("set junction %d with wrong traffic light id %d", l.junctionID, tl.JunctionId)
	}
	if len(tl.Phases) == 0 {
		return fmt.Errorf("set with empty traffic light")
	}
	if current := l.program(); current != nil && len(current.Phases) != len(tl.Phases) {
		return fmt.Errorf("%w: junction %d has %d phases, got %d", ErrPhaseCount, l.junctionID, len(current.Phases), len(tl.Phases))
	}
	for _, p := range tl.Phases {
		if len(p.States) != len(l.lanes) {
			return fmt.Errorf("number of lanes %d and traffic light states %d does not match", len(l.lanes), len(p.States))
		}
		if p.Duration < 0 {
			return fmt.Errorf("negative phase duration %v", p.Duration)
		}
	}
	l.buffer = &localTlRuntime{
		tl: tl, tlStep: 0, tlRemainingT: tl.Phases[0].Duration,
	}
	return nil
}

// SetPhase 设置信号灯相位
// 参数：offset-相位索引，remainingT-剩余时间，小于0时使用该相位的完整时长
// 说明：相位设置会延迟到下一个更新周期生效；相位索引按最近一次写入的程序检查
func (l *LocalTrafficLight) SetPhase(offset int32, remainingT float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl := l.program()
	if tl == nil {
		return ErrNoProgram
	}
	if offset < 0 || int(offset) >= len(tl.Phases) {
		return fmt.Errorf("phase %d out of range [0, %d) of junction %d", offset, len(tl.Phases), l.junctionID)
	}
	if remainingT < 0 {
		remainingT = tl.Phases[offset].Duration
	}
	if l.buffer != nil {
		l.buffer.tlRemainingT = remainingT
		l.buffer.tlStep = offset
	} else if l.runtime.tl != nil {
		l.buffer = &localTlRuntime{
			tl: l.runtime.tl, tlStep: offset, tlRemainingT: remainingT,
		}
	}
	return nil
}

// Program 最近一次写入的程序（包括尚未生效的buffer）
func (l *LocalTrafficLight) Program() *mapv2.TrafficLight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.program()
}

func (l *LocalTrafficLight) program() *mapv2.TrafficLight {
	if l.buffer != nil {
		return l.buffer.tl
	}
	return l.runtime.tl
}

// Step 获取当前相位索引
func (l *LocalTrafficLight) Step() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot.tlStep
}

// RemainingTime 获取当前相位剩余时间
func (l *LocalTrafficLight) RemainingTime() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot.tlRemainingT
}

// State 当前相位的红黄绿状态字符串，没有程序时为全绿
func (l *LocalTrafficLight) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snapshot.tl == nil {
		return FormatState(make([]mapv2.LightState, len(l.lanes)))
	}
	return FormatState(l.snapshot.tl.Phases[l.snapshot.tlStep].States)
}
