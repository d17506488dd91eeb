package trafficlight

import (
	"fmt"
	"strings"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
)

// FormatState 将相位状态转为SUMO风格的字符串
// 说明：G-绿灯，y-黄灯，r-红灯；未指定的状态视为绿灯
func FormatState(states []mapv2.LightState) string {
	var b strings.Builder
	for _, s := range states {
		switch s {
		case mapv2.LightState_LIGHT_STATE_RED:
			b.WriteByte('r')
		case mapv2.LightState_LIGHT_STATE_YELLOW:
			b.WriteByte('y')
		default:
			b.WriteByte('G')
		}
	}
	return b.String()
}

// ParseState 解析SUMO风格的状态字符串
// 说明：G/g为绿灯，y/Y为黄灯，r/R/s为红灯，o/O（信号灯关闭）视为绿灯
func ParseState(state string) ([]mapv2.LightState, error) {
	res := make([]mapv2.LightState, len(state))
	for i, c := range state {
		switch c {
		case 'G', 'g', 'o', 'O':
			res[i] = mapv2.LightState_LIGHT_STATE_GREEN
		case 'y', 'Y', 'u':
			res[i] = mapv2.LightState_LIGHT_STATE_YELLOW
		case 'r', 'R', 's':
			res[i] = mapv2.LightState_LIGHT_STATE_RED
		default:
			return nil, fmt.Errorf("unknown light state %q at link %d of %q", c, i, state)
		}
	}
	return res, nil
}

// FourPhaseProgram 两个方向交替放行的四相位程序
// 参数：junctionID-路口ID，links-每个进口方向的受控车道数，greenT/yellowT-绿灯与黄灯时长
// 说明：方向编号1-东、2-南、3-西、4-北，link index为(bound-1)*links+lane；
// 相位顺序为东西绿、东西黄、南北绿、南北黄
func FourPhaseProgram(junctionID int32, links int, greenT, yellowT float64) *mapv2.TrafficLight {
	phase := func(ewState, nsState mapv2.LightState, duration float64) *mapv2.Phase {
		states := make([]mapv2.LightState, 0, 4*links)
		for bound := 1; bound <= 4; bound++ {
			s := lo.Ternary(bound%2 == 1, ewState, nsState)
			for range links {
				states = append(states, s)
			}
		}
		return &mapv2.Phase{Duration: duration, States: states}
	}
	g, y, r := mapv2.LightState_LIGHT_STATE_GREEN, mapv2.LightState_LIGHT_STATE_YELLOW, mapv2.LightState_LIGHT_STATE_RED
	return &mapv2.TrafficLight{
		JunctionId: junctionID,
		Phases: []*mapv2.Phase{
			phase(g, r, greenT),
			phase(y, r, yellowT),
			phase(r, g, greenT),
			phase(r, y, yellowT),
		},
	}
}
