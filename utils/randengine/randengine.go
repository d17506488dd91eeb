// 随机数引擎，包装了golang.org/x/exp/rand，提供了一些常用的随机数生成方法
package randengine

import (
	"log"
	"sync"

	"golang.org/x/exp/rand"
)

// Engine 随机数引擎
// 功能：提供可复现的随机数生成功能，支持多种分布和线程安全操作
// 说明：种子在创建时显式给出，不依赖任何全局状态
type Engine struct {
	*rand.Rand            // 底层随机数生成器
	mtx        sync.Mutex // 互斥锁，用于线程安全操作
	seed       uint64
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 返回：随机数引擎指针
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed 返回创建时使用的种子
func (e *Engine) Seed() uint64 {
	return e.seed
}

// Fork 派生子引擎
// 功能：根据本引擎种子和编号派生独立的随机数序列
// 参数：index-子引擎编号（如车辆序号）
// 说明：派生结果只与种子和编号有关，与调用顺序无关，保证并行更新时结果可复现
func (e *Engine) Fork(index uint64) *Engine {
	// splitmix64
	z := e.seed + (index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return New(z ^ (z >> 31))
}

// DiscreteDistribution 按给定概率分布生成随机数（非线程安全）
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，每个元素表示对应索引的概率权重
// 返回：随机生成的索引值（0到len(weight)-1）
// 算法说明：
// 1. 计算总权重
// 2. 在[0, 总权重)范围内生成随机数
// 3. 累积权重直到超过随机数，返回该索引
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// PTrue 以指定概率返回true（非线程安全）
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Uniform 返回[low, high)上的均匀分布随机数（非线程安全）
func (e *Engine) Uniform(low, high float64) float64 {
	return low + (high-low)*e.Float64()
}

// PTrueSafe 以指定概率返回true（线程安全）
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// Float64Safe 随机生成[0.0, 1.0)范围内的浮点数（线程安全）
func (e *Engine) Float64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64()
}
