package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/randengine"
)

func TestSameSeedSameSequence(t *testing.T) {
	a := randengine.New(204)
	b := randengine.New(204)
	for range 100 {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestForkIsOrderIndependent(t *testing.T) {
	root := randengine.New(7)
	f3 := root.Fork(3).Float64()
	// 消耗父引擎不影响派生结果
	root.Float64()
	root.Fork(1)
	assert.Equal(t, f3, root.Fork(3).Float64())
	assert.NotEqual(t, root.Fork(3).Float64(), root.Fork(4).Float64())
}

func TestDiscreteDistribution(t *testing.T) {
	e := randengine.New(1)
	counts := make([]int, 3)
	for range 3000 {
		counts[e.DiscreteDistribution([]float64{0, 1, 3})]++
	}
	assert.Equal(t, 0, counts[0])
	assert.Greater(t, counts[2], counts[1])
}

func TestPTrueAndUniform(t *testing.T) {
	e := randengine.New(2)
	assert.False(t, e.PTrue(0))
	assert.True(t, e.PTrue(1))
	for range 100 {
		u := e.Uniform(-1, 2)
		assert.GreaterOrEqual(t, u, -1.)
		assert.Less(t, u, 2.)
	}
}
