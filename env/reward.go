package env

import (
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultCollisionWeight 安全项中每辆碰撞车辆的权重
const DefaultCollisionWeight = 100.

// meanStd 总体均值与标准差，空输入返回0
func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Performance 通行性能
// performance = 0.4*mean(speed) - 0.1*std(speed) - 0.4*mean(density) - 0.1*std(density)
func Performance(inflow []LocationReading) float64 {
	speedMean, speedStd := meanStd(lo.Map(inflow, func(r LocationReading, _ int) float64 { return r.Speed }))
	densityMean, densityStd := meanStd(lo.Map(inflow, func(r LocationReading, _ int) float64 { return r.Density }))
	return 0.4*speedMean + 0.1*-speedStd + 0.4*-densityMean + 0.1*-densityStd
}

// Consumption 能耗
// consumption = -0.5*mean(fuel) - 0.5*mean(co2)
func Consumption(inflow []LocationReading) float64 {
	fuel := mean(lo.Map(inflow, func(r LocationReading, _ int) float64 { return r.FuelRate }))
	co2 := mean(lo.Map(inflow, func(r LocationReading, _ int) float64 { return r.CO2Rate }))
	return 0.5*-fuel + 0.5*-co2
}

// Navigation 导航奖励（soft变体的奖励），只使用进口位置
func Navigation(alpha float64, inflow []LocationReading) float64 {
	return alpha*Performance(inflow) + (1-alpha)*Consumption(inflow)
}

// Safety 安全项
func Safety(weight float64, collisions int) float64 {
	return weight * float64(collisions)
}

// HardReward hard变体的奖励：beta*safety + (1-beta)*navigation
func HardReward(alpha, beta, weight float64, inflow []LocationReading, collisions int) float64 {
	return beta*Safety(weight, collisions) + (1-beta)*Navigation(alpha, inflow)
}

// DesiredVelocity 期望速度奖励
// 功能：车速越接近目标速度奖励越高，取值[0, 1]
// 说明：无车、存在负速度或发生碰撞时为0
func DesiredVelocity(speeds []float64, target float64, collided bool) float64 {
	if len(speeds) == 0 || collided || target <= 0 {
		return 0
	}
	if lo.SomeBy(speeds, func(v float64) bool { return v < 0 }) {
		return 0
	}
	targets := lo.Times(len(speeds), func(int) float64 { return target })
	maxCost := floats.Norm(targets, 2)
	cost := floats.Distance(speeds, targets, 2)
	return max(maxCost-cost, 0) / maxCost
}
