package vehicle

import "math"

// 基于功率的排放模型参数
const (
	vehicleMass       = 1500. // 整备质量（千克）
	rollingResistance = 0.01  // 滚动阻力系数
	dragArea          = 0.7   // 风阻系数×迎风面积（平方米）
	airDensity        = 1.2   // 空气密度（千克/立方米）
	gravity           = 9.81  // 重力加速度
	idleFuelRate      = 300.  // 怠速油耗（mg/s）
	fuelPerEnergy     = 75.   // 单位做功油耗（mg/kJ）
	co2PerFuel        = 3.15  // 单位油耗CO2排放
)

// emission 计算瞬时油耗与CO2排放（mg/s）
// 算法说明：
// 1. 牵引功率 P = m*v*(a + g*Cr) + 0.5*rho*CdA*v^3
// 2. 油耗 = 怠速油耗 + 单位做功油耗 * max(P, 0)
// 3. CO2 = 3.15 * 油耗
func emission(v, a float64) (fuel, co2 float64) {
	power := (vehicleMass*v*(a+gravity*rollingResistance) + 0.5*airDensity*dragArea*v*v*v) / 1000
	fuel = idleFuelRate + fuelPerEnergy*math.Max(power, 0)
	co2 = co2PerFuel * fuel
	return
}
