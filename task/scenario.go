package task

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// Scenario 内置路网类型
type Scenario string

const (
	ScenarioRing             Scenario = "ring"
	ScenarioSoftIntersection Scenario = "intersection-soft"
	ScenarioHardIntersection Scenario = "intersection-hard"
)

const (
	// TrafficLightID 单路口场景中唯一的信号灯ID
	TrafficLightID = "center"

	junctionID  = 0
	greenTime   = 31 // 默认程序绿灯时长（秒）
	yellowTime  = 4  // 默认程序黄灯时长（秒）
	hardZones   = 4  // hard路口每个方向的进口、出口分段数
	ringEdgeNum = 4
)

// RingEdges 环形道路的四条边，按行驶方向排列
var RingEdges = [ringEdgeNum]string{"bottom", "right", "top", "left"}

// ScenarioOf 根据环境名选择内置路网
func ScenarioOf(envName string) (Scenario, error) {
	switch envName {
	case "ring-accel":
		return ScenarioRing, nil
	case "soft-intersection":
		return ScenarioSoftIntersection, nil
	case "hard-intersection":
		return ScenarioHardIntersection, nil
	default:
		return "", fmt.Errorf("no built-in scenario for env %q", envName)
	}
}

// network 一个回合开始时的路网与车辆
type network struct {
	lanes     []entity.LaneBase
	junctions []entity.JunctionBase
	entries   []string             // 有车辆生成的进口车道
	vehicles  []entity.VehicleBase // 初始车辆
}

// RingLaneID 环形道路车道ID，如bottom_0
func RingLaneID(edge string, lane int) string {
	return fmt.Sprintf("%s_%d", edge, lane)
}

// buildRing 构建环形道路
// 算法说明：
// 1. 四条长度为L/4的边首尾相连，同一车道编号的车道互为前驱后继
// 2. 人类驾驶车辆在前、受控车辆在后，按编号轮流分配到各车道并沿环等间距放置
func buildRing(c config.Ring) (network, error) {
	if c.Length <= 0 || c.Lanes <= 0 {
		return network{}, fmt.Errorf("bad ring length %v or lanes %d", c.Length, c.Lanes)
	}
	edgeLength := c.Length / ringEdgeNum
	n := network{}
	for i, edge := range RingEdges {
		next := RingEdges[(i+1)%ringEdgeNum]
		for l := range c.Lanes {
			n.lanes = append(n.lanes, entity.LaneBase{
				ID:        RingLaneID(edge, l),
				Length:    edgeLength,
				MaxSpeed:  c.SpeedLimit,
				Successor: RingLaneID(next, l),
			})
		}
	}
	total := c.Humans + c.RL
	if total == 0 {
		return n, nil
	}
	perLane := int(math.Ceil(float64(total) / float64(c.Lanes)))
	spacing := c.Length / float64(perLane)
	for i := range total {
		pos := float64(i/c.Lanes) * spacing
		edge := min(int(pos/edgeLength), ringEdgeNum-1)
		base := entity.VehicleBase{
			Lane: RingLaneID(RingEdges[edge], i%c.Lanes),
			S:    pos - float64(edge)*edgeLength,
		}
		if i < c.Humans {
			base.ID = fmt.Sprintf("human_%d", i)
			base.Noise = c.Noise
		} else {
			base.ID = fmt.Sprintf("rl_%d", i-c.Humans)
			base.RL = true
		}
		n.vehicles = append(n.vehicles, base)
	}
	return n, nil
}

// JunctionLaneID 路口内部车道ID
func JunctionLaneID(bound, lane int) string {
	return fmt.Sprintf(":%s_%d_%d", TrafficLightID, bound, lane)
}

// SoftInLaneID soft路口进口车道ID，bound为1-4
func SoftInLaneID(bound, lane int) string {
	return fmt.Sprintf("e_%d_sbc+_%d", 2*bound-1, lane)
}

// SoftOutLaneID soft路口出口车道ID
func SoftOutLaneID(bound, lane int) string {
	return fmt.Sprintf("e_%d_sbc-_%d", 2*bound, lane)
}

// HardZoneLaneID hard路口分段车道ID，zone为1-4（1紧邻路口），inbound区分进口与出口
func HardZoneLaneID(bound, zone, lane int, inbound bool) string {
	dir := "<"
	if inbound {
		dir = ">"
	}
	return fmt.Sprintf("e_%d_zone%d%s_%d", bound, zone, dir, lane)
}

// buildIntersection 构建四个方向直行穿过路口的单路口路网
// 说明：方向编号1-东、2-南、3-西、4-北；第bound个方向第lane条进口车道的link index为(bound-1)*lanes+lane；
// program为nil时使用东西、南北交替放行的默认四相位程序
func buildIntersection(kind Scenario, c config.Intersection, program *mapv2.TrafficLight) (network, error) {
	if c.Lanes <= 0 || c.ZoneLength <= 0 || c.JunctionLength <= 0 {
		return network{}, fmt.Errorf("bad intersection lanes %d, zone length %v or junction length %v", c.Lanes, c.ZoneLength, c.JunctionLength)
	}
	n := network{}
	add := func(id, successor string, length float64) {
		n.lanes = append(n.lanes, entity.LaneBase{ID: id, Length: length, MaxSpeed: c.SpeedLimit, Successor: successor})
	}
	inLanes := make([]string, 0, 4*c.Lanes)
	for bound := 1; bound <= 4; bound++ {
		for l := range c.Lanes {
			inner := JunctionLaneID(bound, l)
			switch kind {
			case ScenarioSoftIntersection:
				add(SoftInLaneID(bound, l), inner, c.ZoneLength)
				add(inner, SoftOutLaneID(bound, l), c.JunctionLength)
				add(SoftOutLaneID(bound, l), "", c.ZoneLength)
				inLanes = append(inLanes, SoftInLaneID(bound, l))
				n.entries = append(n.entries, SoftInLaneID(bound, l))
			case ScenarioHardIntersection:
				for zone := hardZones; zone > 1; zone-- {
					add(HardZoneLaneID(bound, zone, l, true), HardZoneLaneID(bound, zone-1, l, true), c.ZoneLength)
				}
				add(HardZoneLaneID(bound, 1, l, true), inner, c.ZoneLength)
				add(inner, HardZoneLaneID(bound, 1, l, false), c.JunctionLength)
				for zone := 1; zone < hardZones; zone++ {
					add(HardZoneLaneID(bound, zone, l, false), HardZoneLaneID(bound, zone+1, l, false), c.ZoneLength)
				}
				add(HardZoneLaneID(bound, hardZones, l, false), "", c.ZoneLength)
				inLanes = append(inLanes, HardZoneLaneID(bound, 1, l, true))
				n.entries = append(n.entries, HardZoneLaneID(bound, hardZones, l, true))
			default:
				return network{}, fmt.Errorf("scenario %q is not an intersection", kind)
			}
		}
	}
	if program == nil {
		program = trafficlight.FourPhaseProgram(junctionID, c.Lanes, greenTime, yellowTime)
	} else {
		program = protoutil.Clone(program)
		program.JunctionId = junctionID
	}
	n.junctions = []entity.JunctionBase{{
		ID:             junctionID,
		TrafficLightID: TrafficLightID,
		InLanes:        inLanes,
		Program:        program,
	}}
	return n, nil
}
