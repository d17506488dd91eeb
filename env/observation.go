package env

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

const (
	SoftObservationSize = 49
	HardObservationSize = 65
)

// assembleObservation 拼接观测
// 顺序：进口加速度、速度、密度（、碰撞数），出口加速度、速度、密度（、碰撞数），最后为相位
func assembleObservation(inflow, outflow []LocationReading, phase int, collisions bool) []float64 {
	fields := []func(LocationReading) float64{
		func(r LocationReading) float64 { return r.Acceleration },
		func(r LocationReading) float64 { return r.Speed },
		func(r LocationReading) float64 { return r.Density },
	}
	if collisions {
		fields = append(fields, func(r LocationReading) float64 {
			if r.CollisionCount == nil {
				return 0
			}
			return float64(*r.CollisionCount)
		})
	}
	obs := make([]float64, 0, len(fields)*(len(inflow)+len(outflow))+1)
	for _, group := range [][]LocationReading{inflow, outflow} {
		for _, field := range fields {
			obs = append(obs, lo.Map(group, func(r LocationReading, _ int) float64 { return field(r) })...)
		}
	}
	return append(obs, float64(phase))
}

// observationSpace 观测空间：加速度无下界，其余非负
func observationSpace(locations, fieldsPerGroup int) Box {
	n := 2*locations*fieldsPerGroup + 1
	box := NewBox(n, 0, math.Inf(1))
	for g := range 2 {
		start := g * locations * fieldsPerGroup
		for i := range locations {
			box.Low[start+i] = math.Inf(-1)
		}
	}
	return box
}

// checkObservation 检查观测长度与观测空间一致
func checkObservation(obs []float64, space Box) error {
	if len(obs) != space.Shape() {
		return fmt.Errorf("%w: got %d, want %d", ErrObservationSize, len(obs), space.Shape())
	}
	return nil
}
