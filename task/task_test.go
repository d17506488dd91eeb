package task_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/task"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

var _ entity.ISimulation = (*task.Context)(nil)

func newRing(t *testing.T) *task.Context {
	c := config.Default()
	c.Env.Name = "ring-accel"
	ctx, err := task.NewContext(task.ScenarioRing, c, nil)
	require.NoError(t, err)
	return ctx
}

func TestRingInitialPlacement(t *testing.T) {
	sim := newRing(t)
	ctx := context.Background()
	ids, err := sim.VehicleIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 22)
	assert.Contains(t, ids, "rl_0")
	assert.Contains(t, ids, "human_20")

	length, err := sim.LaneLength(ctx, "bottom_0")
	require.NoError(t, err)
	assert.Equal(t, 65., length)

	laneID, err := sim.VehicleLaneID(ctx, "human_0")
	require.NoError(t, err)
	assert.Equal(t, "bottom_0", laneID)
	pos, err := sim.VehicleLanePosition(ctx, "human_6")
	require.NoError(t, err)
	// 6*260/22 = 70.9，位于第二条边
	laneID, err = sim.VehicleLaneID(ctx, "human_6")
	require.NoError(t, err)
	assert.Equal(t, "right_0", laneID)
	assert.InDelta(t, 6*260./22-65, pos, 1e-9)

	ids, err = sim.TrafficLightIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRingIsDeterministic(t *testing.T) {
	run := func() []float64 {
		sim := newRing(t)
		ctx := context.Background()
		for range 200 {
			require.NoError(t, sim.SimulationStep(ctx))
		}
		ids, err := sim.VehicleIDs(ctx)
		require.NoError(t, err)
		speeds := make([]float64, 0, len(ids))
		for _, id := range ids {
			v, err := sim.VehicleSpeed(ctx, id)
			require.NoError(t, err)
			speeds = append(speeds, v)
		}
		return speeds
	}
	assert.Equal(t, run(), run())
}

func TestRingVehiclesMoveWithoutCollision(t *testing.T) {
	sim := newRing(t)
	ctx := context.Background()
	for range 300 {
		require.NoError(t, sim.SimulationStep(ctx))
		colliding, err := sim.CollidingVehicleIDs(ctx)
		require.NoError(t, err)
		require.Empty(t, colliding)
	}
	ids, err := sim.VehicleIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 22)
	mean, err := sim.LaneMeanSpeed(ctx, "bottom_0")
	require.NoError(t, err)
	assert.Greater(t, mean, 0.)
	assert.Equal(t, int32(300), sim.Clock().Step)
}

func newIntersection(t *testing.T, scenario task.Scenario, probability float64) *task.Context {
	c := config.Default()
	c.Scenario.Intersection.InflowProbability = probability
	c.Control.Step.Interval = 1
	sim, err := task.NewContext(scenario, c, nil)
	require.NoError(t, err)
	return sim
}

func TestSoftIntersectionLayout(t *testing.T) {
	sim := newIntersection(t, task.ScenarioSoftIntersection, 0)
	ctx := context.Background()
	for _, id := range []string{"e_1_sbc+_0", "e_7_sbc+_1", "e_2_sbc-_0", "e_8_sbc-_1", ":center_1_0"} {
		_, err := sim.LaneLength(ctx, id)
		assert.NoError(t, err, id)
	}
	_, err := sim.LaneLength(ctx, "e_9_sbc+_0")
	assert.Error(t, err)

	// 空车道平均速度为限速
	mean, err := sim.LaneMeanSpeed(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.Equal(t, 11.176, mean)

	ids, err := sim.TrafficLightIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{task.TrafficLightID}, ids)
	def, err := sim.TrafficLightDefinition(ctx, task.TrafficLightID)
	require.NoError(t, err)
	require.Len(t, def, 1)
	assert.Len(t, def[0].Phases, 4)
	state, err := sim.TrafficLightState(ctx, task.TrafficLightID)
	require.NoError(t, err)
	assert.Equal(t, "GGrrGGrr", state)
}

func TestHardIntersectionLayout(t *testing.T) {
	sim := newIntersection(t, task.ScenarioHardIntersection, 0)
	ctx := context.Background()
	for _, id := range []string{"e_1_zone4>_0", "e_1_zone1>_1", "e_4_zone1<_0", "e_4_zone4<_1"} {
		_, err := sim.LaneLength(ctx, id)
		assert.NoError(t, err, id)
	}
}

func TestSetTrafficLightPhase(t *testing.T) {
	sim := newIntersection(t, task.ScenarioSoftIntersection, 0)
	ctx := context.Background()
	require.NoError(t, sim.SetTrafficLightPhase(ctx, task.TrafficLightID, 2))
	require.NoError(t, sim.SimulationStep(ctx))
	phase, err := sim.TrafficLightPhase(ctx, task.TrafficLightID)
	require.NoError(t, err)
	assert.Equal(t, 2, phase)
	state, err := sim.TrafficLightState(ctx, task.TrafficLightID)
	require.NoError(t, err)
	assert.Equal(t, "rrGGrrGG", state)

	assert.Error(t, sim.SetTrafficLightPhase(ctx, task.TrafficLightID, 4))
	assert.Error(t, sim.SetTrafficLightPhase(ctx, "nowhere", 0))
}

func TestInflowAndReset(t *testing.T) {
	sim := newIntersection(t, task.ScenarioSoftIntersection, 1)
	ctx := context.Background()
	require.NoError(t, sim.SimulationStep(ctx))
	ids, err := sim.LaneVehicleIDs(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.Equal(t, []string{"flow_0.0"}, ids)
	n, err := sim.LaneVehicleNumber(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	fuel, err := sim.LaneFuelConsumption(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.Greater(t, fuel, 0.)
	co2, err := sim.LaneCO2Emission(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.InDelta(t, 3.15*fuel, co2, 1e-9)

	// 前车距离不足时不生成
	require.NoError(t, sim.SimulationStep(ctx))
	ids, err = sim.LaneVehicleIDs(ctx, "e_1_sbc+_0")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	all, err := sim.VehicleIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	require.NoError(t, sim.Reset(ctx))
	all, err = sim.VehicleIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, int32(0), sim.Clock().Step)
}

func TestVehicleControl(t *testing.T) {
	sim := newRing(t)
	ctx := context.Background()
	require.NoError(t, sim.SetVehicleMaxSpeed(ctx, "human_0", 0))
	require.NoError(t, sim.SetVehicleSpeed(ctx, "rl_0", 0))
	for range 10 {
		require.NoError(t, sim.SimulationStep(ctx))
	}
	v, err := sim.VehicleSpeed(ctx, "human_0")
	require.NoError(t, err)
	assert.Equal(t, 0., v)
	v, err = sim.VehicleSpeed(ctx, "rl_0")
	require.NoError(t, err)
	assert.Equal(t, 0., v)

	assert.Error(t, sim.SetVehicleSpeed(ctx, "nobody", 1))
	_, err = sim.VehicleSpeed(ctx, "nobody")
	assert.Error(t, err)
}

func TestScenarioOf(t *testing.T) {
	s, err := task.ScenarioOf("hard-intersection")
	require.NoError(t, err)
	assert.Equal(t, task.ScenarioHardIntersection, s)
	_, err = task.ScenarioOf("merge")
	assert.Error(t, err)
}
