package env

import "github.com/samber/lo"

// PhaseController 单个信号灯的相位跟踪
// 功能：每步接收一个相位增量，返回应发送给模拟器的相位
type PhaseController interface {
	// Advance 应用本步请求的增量，返回发送给模拟器的相位（位于[0, Count)）
	Advance(requested int) int
	// Phase 跟踪的当前相位，作为观测的最后一维
	Phase() int
	// Count 相位总数
	Count() int
	// Reset 回到第0个相位
	Reset()
}

// HardPhase 每步生效的相位控制
// 说明：增量截断到[0, count]，当前相位始终对count取模
type HardPhase struct {
	count   int
	current int
}

func NewHardPhase(count int) *HardPhase {
	return &HardPhase{count: count}
}

func (p *HardPhase) Advance(requested int) int {
	p.current = (p.current + lo.Clamp(requested, 0, p.count)) % p.count
	return p.current
}

func (p *HardPhase) Phase() int {
	return p.current
}

func (p *HardPhase) Count() int {
	return p.count
}

func (p *HardPhase) Reset() {
	p.current = 0
}

// SoftPhase 按控制间隔采样的相位控制
// 功能：每interval步重新采样一次增量（截断到{0,1}）
// 说明：默认情况下采样得到的增量在间隔内的每一步都累加到当前相位，且当前相位不取模，
// 发送给模拟器的相位为current%count；once为true时每个间隔只累加一次并保持当前相位取模
type SoftPhase struct {
	count    int
	interval int
	once     bool

	step      int
	increment int
	current   int
}

func NewSoftPhase(count, interval int, once bool) *SoftPhase {
	return &SoftPhase{count: count, interval: interval, once: once}
}

func (p *SoftPhase) Advance(requested int) int {
	sample := p.step%p.interval == 0
	p.step++
	if sample {
		p.increment = lo.Clamp(requested, 0, 1)
	}
	if p.once {
		if sample {
			p.current = (p.current + p.increment) % p.count
		}
		return p.current
	}
	p.current += p.increment
	return p.current % p.count
}

func (p *SoftPhase) Phase() int {
	return p.current
}

func (p *SoftPhase) Count() int {
	return p.count
}

func (p *SoftPhase) Reset() {
	p.step = 0
	p.increment = 0
	p.current = 0
}
