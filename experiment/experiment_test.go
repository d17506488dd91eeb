package experiment_test

import (
	"context"
	"errors"
	"math"
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/experiment"
	"github.com/tsinghua-fib-lab/moss-rl-env/recorder"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

func ringConfig(policy string) config.Config {
	c := config.Default()
	c.Env.Name = env.NameRingAccel
	c.Env.AdditionalParams = config.DefaultAdditionalParams()
	c.Env.AdditionalParams[config.ParamMaxAccel] = 1
	c.Env.AdditionalParams[config.ParamMaxDecel] = 1
	c.Experiment.Policy = policy
	return c
}

type memoryRecorder struct {
	episodes []recorder.Episode
}

func (r *memoryRecorder) Record(_ context.Context, e recorder.Episode) error {
	r.episodes = append(r.episodes, e)
	return nil
}

func (r *memoryRecorder) Close(context.Context) error { return nil }

// 21辆人类驾驶车辆与1辆受控车辆在260米环形道路上运行一个完整回合
func TestRingEpisodeStaysInBounds(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []string{"idle", "random"} {
		c := ringConfig(policy)
		rec := &memoryRecorder{}
		runner, release, err := experiment.Build(ctx, c, rec)
		require.NoError(t, err, policy)
		runner.Check = true

		observation, action := runner.Env.Spaces()
		assert.Equal(t, 44, observation.Shape())
		assert.Equal(t, 1, action.Shape())

		summaries, err := runner.Run(ctx, 1)
		release()
		require.NoError(t, err, policy)
		require.Len(t, summaries, 1)
		s := summaries[0]
		assert.Greater(t, s.Steps, 0)
		assert.LessOrEqual(t, s.Steps, int(c.Control.Step.Horizon))
		assert.False(t, math.IsNaN(s.Return))
		assert.GreaterOrEqual(t, s.MeanReward, 0.)
		assert.LessOrEqual(t, s.MeanReward, 1.)

		require.Len(t, rec.episodes, 1)
		assert.Equal(t, env.NameRingAccel, rec.episodes[0].Env)
		assert.Equal(t, policy, rec.episodes[0].Policy)
	}
}

func TestIntersectionEpisodes(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{env.NameSoftIntersection, env.NameHardIntersection} {
		for _, policy := range []string{"constant", "max-pressure", "random"} {
			c := config.Default()
			c.Env.Name = name
			c.Env.AdditionalParams = config.DefaultAdditionalParams()
			c.Control.Step.Horizon = 200
			c.Control.Step.Warmup = 20
			c.Experiment.Policy = policy
			runner, release, err := experiment.Build(ctx, c, nil)
			require.NoError(t, err, "%s %s", name, policy)
			runner.Check = true
			summaries, err := runner.Run(ctx, 2)
			release()
			require.NoError(t, err, "%s %s", name, policy)
			require.Len(t, summaries, 2)
			assert.Equal(t, 200, summaries[1].Steps)
		}
	}
}

func TestMaxPressureFollowsPressure(t *testing.T) {
	layout, err := experiment.LayoutOf(env.SoftObservationSize)
	require.NoError(t, err)
	assert.Equal(t, experiment.ObservationLayout{Locations: 8, InDensity: 16, OutDensity: 40, Phase: 48}, layout)
	program := trafficlight.FourPhaseProgram(0, 2, 31, 4)
	p, err := experiment.NewMaxPressure(layout, []*mapv2.TrafficLight{program}, 3, 10)
	require.NoError(t, err)

	obs := make([]float64, env.SoftObservationSize)
	// 南北方向（link 2,3,6,7）进口排队
	for _, link := range []int{2, 3, 6, 7} {
		obs[layout.InDensity+link] = 0.1
	}
	assert.Equal(t, 2, p.Target(obs))

	increments := make([]float64, 0, 4)
	for step := range 4 {
		a := p.Act(obs, step)
		assert.Equal(t, 10., a[0])
		increments = append(increments, a[8])
	}
	assert.Equal(t, []float64{0, 0, 1, 1}, increments)

	// 到达目标相位后保持
	obs[layout.Phase] = 2
	assert.Equal(t, 0., p.Act(obs, 4)[8])

	// 出口拥堵使压力反转
	for _, link := range []int{2, 3, 6, 7} {
		obs[layout.OutDensity+link] = 0.3
	}
	assert.Equal(t, 0, p.Target(obs))

	_, err = experiment.LayoutOf(44)
	assert.ErrorIs(t, err, env.ErrObservationSize)
}

func TestRandomPolicyStaysInSpace(t *testing.T) {
	space := env.Box{Low: []float64{-1, 0}, High: []float64{1, 4}}
	a := experiment.NewRandom(space, 3)
	b := experiment.NewRandom(space, 3)
	for step := range 50 {
		x := a.Act(nil, step)
		assert.True(t, space.Contains(x))
		assert.Equal(t, x, b.Act(nil, step))
	}
}

func TestUnknownPolicy(t *testing.T) {
	ctx := context.Background()
	_, release, err := experiment.Build(ctx, ringConfig("bang-bang"), nil)
	assert.ErrorIs(t, err, experiment.ErrUnknownPolicy)
	assert.Nil(t, release)
	_, _, err = experiment.Build(ctx, ringConfig("max-pressure"), nil)
	assert.ErrorIs(t, err, experiment.ErrUnknownPolicy)
}

func TestSweepIsDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	errBadSeed := errors.New("bad seed")
	build := func(seed uint64) (*experiment.Runner, func(), error) {
		if seed == 0 {
			return nil, nil, errBadSeed
		}
		c := ringConfig("random")
		c.Sim.Seed = seed
		c.Control.Step.Horizon = 100
		c.Control.Step.Warmup = 10
		return experiment.Build(ctx, c, nil)
	}
	results := experiment.Sweep(ctx, []uint64{7, 0, 7, 8}, 2, build, 2)
	require.Len(t, results, 4)
	assert.Equal(t, []uint64{7, 0, 7, 8}, []uint64{results[0].Seed, results[1].Seed, results[2].Seed, results[3].Seed})
	assert.ErrorIs(t, results[1].Err, errBadSeed)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[2].Err)
	assert.Equal(t, results[0].Summaries, results[2].Summaries)
	assert.Equal(t, results[0].MeanReturn(), results[2].MeanReturn())
}
