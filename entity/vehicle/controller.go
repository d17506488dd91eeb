package vehicle

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

const (
	idmTheta      = 4   // IDM模型参数
	minLookahead  = 150 // 前车搜索的最小距离（米）
	lookaheadTime = 10  // 前车搜索距离按速度折算的时间（秒）
	stopLineGap   = 1   // 停车线前的最小距离（米）
)

// followImpl 跟车模型核心实现
// 功能：实现智能驾驶模型(IDM)的跟车逻辑
// 参数：selfV-本车速度，targetV-目标速度，aheadV-前车速度，distance-车距，minGap-最小车距，headway-安全车头时距
// 返回：计算得到的加速度（米/秒²）
// 算法说明：
// 1. 检查是否发生碰撞（距离小于等于0）
// 2. 期望车距：s_star = minGap + max(0, v*headway + v*(v-v_ahead)/(2*sqrt(a*b)))
// 3. 加速度：a = maxA * (1 - (v/targetV)^4 - (s_star/distance)^2)
// 4. 限制加速度在制动和加速范围内
func (v *Vehicle) followImpl(
	selfV, targetV, aheadV, distance, minGap, headway float64,
) float64 {
	var acc float64
	if distance <= 0 {
		// 车辆已经发生碰撞，紧急制动
		acc = -mathutil.INF
	} else {
		// https://en.wikipedia.org/wiki/Intelligent_driver_model
		sStar := minGap + math.Max(
			0,
			selfV*headway+selfV*(selfV-aheadV)/2/math.Sqrt(-v.attr.UsualBrakingAcceleration*v.attr.MaxAcceleration),
		)
		acc = v.attr.MaxAcceleration * (1 - math.Pow(selfV/targetV, idmTheta) - math.Pow(sStar/distance, 2))
	}
	return lo.Clamp(acc, v.attr.MaxBrakingAcceleration, v.attr.MaxAcceleration)
}

// targetV 期望速度：车辆最大速度、车道限速与外部设定最大速度的最小值
func (v *Vehicle) targetV() float64 {
	target := math.Min(v.attr.MaxSpeed, v.lane.MaxV())
	if v.cmdMaxSpeed >= 0 {
		target = math.Min(target, v.cmdMaxSpeed)
	}
	return target
}

// scanAhead 沿后继车道搜索前车与停车线
// 返回：前车（可能为nil）、到前车车尾的距离、到停车线的距离（无则为INF）
// 算法说明：
// 1. 当前车道从自身位置向前找第一辆车，后继车道从起点找
// 2. 经过的车道末端若为红灯，或为黄灯且能以常用减速度停下，则记录停车线并停止搜索
// 3. 环形路网上绕回自身时视为前方无车
func (v *Vehicle) scanAhead() (entity.IVehicle, float64, float64) {
	maxDistance := math.Max(minLookahead, v.v*lookaheadTime)
	lane := v.lane
	offset := -v.s
	first := true
	for lane != nil && offset < maxDistance {
		var front entity.IVehicle
		if first {
			front = lane.FirstAfter(v.s)
		} else {
			front = lane.FirstAfter(-1)
		}
		if front != nil {
			if front.ID() == v.id {
				break
			}
			return front, offset + front.S() - front.Length(), mathutil.INF
		}
		if stop := offset + lane.Length(); v.blockedBy(lane.Light(), stop) {
			return nil, mathutil.INF, stop
		}
		offset += lane.Length()
		lane = lane.Successor()
		first = false
	}
	return nil, mathutil.INF, mathutil.INF
}

// blockedBy 车道末端信号灯是否要求停车
func (v *Vehicle) blockedBy(state mapv2.LightState, distance float64) bool {
	switch state {
	case mapv2.LightState_LIGHT_STATE_RED:
		return true
	case mapv2.LightState_LIGHT_STATE_YELLOW:
		// 黄灯：来不及以常用减速度刹停则通过
		return distance >= v.v*v.v/2/-v.attr.UsualBrakingAcceleration
	default:
		return false
	}
}

// computeAction 计算阶段：根据前车、停车线、外部设定速度与噪声得到本步加速度
// 参数：dt-时间步长
// 说明：只读取其他车辆状态，可并行执行
func (v *Vehicle) computeAction(dt float64) {
	leader, gap, stop := v.scanAhead()
	aheadV := 0.
	if leader != nil {
		aheadV = leader.V()
	}
	// 与前车、停车线的交互项（不含自由流项）
	safe := v.attr.MaxAcceleration
	if leader != nil {
		safe = math.Min(safe, v.followImpl(v.v, mathutil.INF, aheadV, gap, v.attr.MinGap, v.attr.Headway))
	}
	if stop < mathutil.INF {
		safe = math.Min(safe, v.followImpl(v.v, mathutil.INF, 0, stop, stopLineGap, dt))
	}

	var acc float64
	if v.cmdSpeed >= 0 {
		// 外部设定速度：尽量在一步内达到，但不突破安全约束
		acc = math.Min(lo.Clamp((v.cmdSpeed-v.v)/dt, v.attr.MaxBrakingAcceleration, v.attr.MaxAcceleration), safe)
	} else {
		target := v.targetV()
		if target <= 0 {
			acc = lo.Clamp(-v.v/dt, v.attr.MaxBrakingAcceleration, 0)
		} else {
			acc = math.Min(v.followImpl(v.v, target, aheadV, gap, v.attr.MinGap, v.attr.Headway), safe)
			if v.noise > 0 {
				acc += v.noise * v.generator.NormFloat64()
			}
		}
	}
	v.a = lo.Clamp(acc, v.attr.MaxBrakingAcceleration, v.attr.MaxAcceleration)
}
