package env

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Box 连续空间，每一维有独立的上下界
type Box struct {
	Low  []float64
	High []float64
}

// NewBox 创建各维上下界相同的空间
func NewBox(n int, low, high float64) Box {
	return Box{
		Low:  lo.Times(n, func(int) float64 { return low }),
		High: lo.Times(n, func(int) float64 { return high }),
	}
}

// Shape 空间维数
func (b Box) Shape() int {
	return len(b.Low)
}

// Contains 检查x的维数与取值，NaN不属于任何空间
func (b Box) Contains(x []float64) bool {
	if len(x) != len(b.Low) {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || v < b.Low[i] || v > b.High[i] {
			return false
		}
	}
	return true
}

// Clip 将x逐维截断到空间内，返回新切片
func (b Box) Clip(x []float64) ([]float64, error) {
	if len(x) != len(b.Low) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrActionSize, len(x), len(b.Low))
	}
	return lo.Map(x, func(v float64, i int) float64 {
		return lo.Clamp(v, b.Low[i], b.High[i])
	}), nil
}
