package env_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
)

func readings() []env.LocationReading {
	return []env.LocationReading{
		{Speed: 2, Density: 0.1, FuelRate: 100, CO2Rate: 300},
		{Speed: 4, Density: 0.3, FuelRate: 200, CO2Rate: 500},
	}
}

func TestRewardTerms(t *testing.T) {
	in := readings()
	assert.InDelta(t, 1.01, env.Performance(in), 1e-9)
	assert.InDelta(t, -275., env.Consumption(in), 1e-9)
	assert.InDelta(t, 0.8*1.01-0.2*275, env.Navigation(0.8, in), 1e-9)
	assert.Equal(t, 200., env.Safety(100, 2))
	assert.InDelta(t, 100+0.5*(0.8*1.01-0.2*275), env.HardReward(0.8, 0.5, 100, in, 2), 1e-9)

	assert.Equal(t, 0., env.Performance(nil))
	assert.Equal(t, 0., env.Consumption(nil))
}

func TestRewardIsBitIdentical(t *testing.T) {
	first := env.HardReward(0.8, 0.5, env.DefaultCollisionWeight, readings(), 3)
	for range 10 {
		assert.Equal(t, math.Float64bits(first),
			math.Float64bits(env.HardReward(0.8, 0.5, env.DefaultCollisionWeight, readings(), 3)))
	}
}

func TestDesiredVelocity(t *testing.T) {
	assert.Equal(t, 1., env.DesiredVelocity([]float64{10, 10, 10}, 10, false))
	assert.InDelta(t, 0., env.DesiredVelocity([]float64{0, 0}, 10, false), 1e-12)
	assert.Equal(t, 0., env.DesiredVelocity([]float64{10, -1}, 10, false))
	assert.Equal(t, 0., env.DesiredVelocity([]float64{10, 10}, 10, true))
	assert.Equal(t, 0., env.DesiredVelocity(nil, 10, false))

	r := env.DesiredVelocity([]float64{8, 12, 10}, 10, false)
	assert.Greater(t, r, 0.)
	assert.Less(t, r, 1.)
}
