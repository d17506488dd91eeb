package junction_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/lane"
)

func newJunctionManager(t *testing.T) (*lane.LaneManager, *junction.JunctionManager) {
	lm := lane.NewManager()
	bases := make([]entity.LaneBase, 0)
	inLanes := make([]string, 0)
	for _, id := range []string{"e", "s", "w", "n"} {
		bases = append(bases, entity.LaneBase{ID: id, Length: 100, MaxSpeed: 10})
		inLanes = append(inLanes, id)
	}
	lm.Init(bases)
	jm := junction.NewManager()
	jm.Init([]entity.JunctionBase{{
		ID:             0,
		TrafficLightID: "center",
		InLanes:        inLanes,
		Program:        trafficlight.FourPhaseProgram(0, 1, 31, 4),
	}}, lm)
	jm.Update(0)
	jm.Prepare()
	return lm, jm
}

func TestFixedProgramCycles(t *testing.T) {
	lm, jm := newJunctionManager(t)
	tl := jm.Get("center").TrafficLight()
	assert.Equal(t, "GrGr", tl.State())
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, lm.Get("e").Light())
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, lm.Get("s").Light())

	expected := []string{"yryr", "rGrG", "ryry", "GrGr"}
	durations := []int{31, 4, 31, 4}
	for i, d := range durations {
		for range d {
			jm.Update(1)
			jm.Prepare()
		}
		assert.Equal(t, expected[i], tl.State(), "after phase %d", i)
	}
	assert.Equal(t, int32(0), tl.Step())
}

func TestSetPhaseRestartsWithFullDuration(t *testing.T) {
	_, jm := newJunctionManager(t)
	tl := jm.Get("center").TrafficLight()
	require.NoError(t, jm.SetPhase("center", 2))
	jm.Update(0)
	jm.Prepare()
	assert.Equal(t, int32(2), tl.Step())
	assert.Equal(t, 31., tl.RemainingTime())
	assert.Equal(t, "rGrG", tl.State())

	assert.Error(t, jm.SetPhase("center", 4))
	assert.Error(t, jm.SetPhase("center", -1))
	assert.Error(t, jm.SetPhase("nowhere", 0))
	assert.Equal(t, []string{"center"}, jm.TrafficLightIDs())
}

func TestTrafficLightRPC(t *testing.T) {
	_, jm := newJunctionManager(t)
	ctx := context.Background()

	res, err := jm.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 0}))
	require.NoError(t, err)
	assert.Len(t, res.Msg.TrafficLight.Phases, 4)
	assert.Equal(t, int32(0), res.Msg.PhaseIndex)

	_, err = jm.SetTrafficLightPhase(ctx, connect.NewRequest(&mapv2.SetTrafficLightPhaseRequest{
		JunctionId: 0, PhaseIndex: 1, TimeRemaining: 2,
	}))
	require.NoError(t, err)
	jm.Update(0)
	jm.Prepare()
	res, err = jm.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 0}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.Msg.PhaseIndex)
	assert.Equal(t, 2., res.Msg.TimeRemaining)

	_, err = jm.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 7}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	// 状态数与受控车道数不一致
	_, err = jm.SetTrafficLight(ctx, connect.NewRequest(&mapv2.SetTrafficLightRequest{
		TrafficLight: trafficlight.FourPhaseProgram(0, 2, 10, 3),
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestStateRoundTrip(t *testing.T) {
	states, err := trafficlight.ParseState("GgyrRs")
	require.NoError(t, err)
	assert.Equal(t, "GGyrrr", trafficlight.FormatState(states))
	_, err = trafficlight.ParseState("Gx")
	assert.Error(t, err)
}
