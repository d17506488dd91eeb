package task_test

import (
	"context"
	"sync"
	"testing"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/task"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

func newSoftEnv(t *testing.T) (*task.Context, env.Env) {
	c := config.Default()
	c.Env.Name = env.NameSoftIntersection
	c.Env.AdditionalParams = config.DefaultAdditionalParams()
	c.Control.Step.Interval = 1
	c.Control.Step.Horizon = 100
	c.Control.Step.Warmup = 0
	sim, err := task.NewContext(task.ScenarioSoftIntersection, c, nil)
	require.NoError(t, err)
	e, err := env.Make(context.Background(), c.Env.Name, sim, c)
	require.NoError(t, err)
	return sim, e
}

// 信号灯RPC与环境的Step并发调用（go test -race）
func TestTrafficLightRPCDuringSteps(t *testing.T) {
	sim, e := newSoftEnv(t)
	jm := sim.JunctionManager().(*junction.JunctionManager)
	ctx := context.Background()
	_, err := e.Reset(ctx)
	require.NoError(t, err)

	_, action := e.Spaces()
	act := make([]float64, action.Shape())
	act[len(act)-1] = 1

	full := trafficlight.FourPhaseProgram(0, 2, 31, 4)
	twoPhases := &mapv2.TrafficLight{JunctionId: 0, Phases: full.Phases[:2]}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_, err := jm.SetTrafficLightPhase(ctx, connect.NewRequest(&mapv2.SetTrafficLightPhaseRequest{
				JunctionId: 0, PhaseIndex: i % 4,
			}))
			assert.NoError(t, err)
			_, err = jm.GetTrafficLight(ctx, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 0}))
			assert.NoError(t, err)
			// 相位数不同的程序被拒绝，环境的相位数保持不变
			_, err = jm.SetTrafficLight(ctx, connect.NewRequest(&mapv2.SetTrafficLightRequest{
				TrafficLight: twoPhases,
			}))
			assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
		}
	}()

	for done := false; !done; {
		res, err := e.Step(ctx, act)
		require.NoError(t, err)
		done = res.Done
	}
	close(stop)
	wg.Wait()
}

func TestReplaceProgramKeepsPhaseCount(t *testing.T) {
	sim, e := newSoftEnv(t)
	jm := sim.JunctionManager().(*junction.JunctionManager)
	ctx := context.Background()
	_, err := e.Reset(ctx)
	require.NoError(t, err)

	full := trafficlight.FourPhaseProgram(0, 2, 31, 4)
	_, err = jm.SetTrafficLight(ctx, connect.NewRequest(&mapv2.SetTrafficLightRequest{
		TrafficLight: &mapv2.TrafficLight{JunctionId: 0, Phases: full.Phases[:2]},
	}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	// 相位数相同的程序可以替换
	_, err = jm.SetTrafficLight(ctx, connect.NewRequest(&mapv2.SetTrafficLightRequest{
		TrafficLight: trafficlight.FourPhaseProgram(0, 2, 20, 3),
	}))
	require.NoError(t, err)

	_, action := e.Spaces()
	act := make([]float64, action.Shape())
	act[len(act)-1] = 1
	for range 5 {
		res, err := e.Step(ctx, act)
		require.NoError(t, err)
		assert.Less(t, res.Info["phase"], 10.)
	}
	definition, err := sim.TrafficLightDefinition(ctx, task.TrafficLightID)
	require.NoError(t, err)
	require.Len(t, definition, 1)
	assert.Len(t, definition[0].Phases, 4)
	assert.Equal(t, 20., definition[0].Phases[0].Duration)
}
