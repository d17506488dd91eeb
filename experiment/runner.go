package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/recorder"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrOutOfBounds = errors.New("value out of declared bounds")

// EpisodeSummary 一个回合的统计
type EpisodeSummary struct {
	Index      int
	Steps      int
	Return     float64
	MeanReward float64
	StdReward  float64 // 总体标准差
	Collisions int
	FinalPhase int
}

// Runner 用内置策略运行若干回合
type Runner struct {
	Env      env.Env
	Policy   Policy
	Recorder recorder.Recorder
	Seed     uint64
	// Check 为true时检查每个观测有限且位于观测空间内、奖励有限
	Check bool
}

// Run 顺序运行episodes个回合
// 说明：任一回合出错时返回已完成回合的统计与错误
func (r *Runner) Run(ctx context.Context, episodes int) ([]EpisodeSummary, error) {
	res := make([]EpisodeSummary, 0, episodes)
	for i := range episodes {
		s, err := r.episode(ctx, i)
		if err != nil {
			return res, fmt.Errorf("episode %d: %w", i, err)
		}
		log.Infof("episode %d: steps %d, return %.4f, mean %.4f, std %.4f, collisions %d",
			i, s.Steps, s.Return, s.MeanReward, s.StdReward, s.Collisions)
		if r.Recorder != nil {
			if err := r.Recorder.Record(ctx, r.record(s)); err != nil {
				return res, err
			}
		}
		res = append(res, s)
	}
	return res, nil
}

func (r *Runner) episode(ctx context.Context, index int) (EpisodeSummary, error) {
	observation, _ := r.Env.Spaces()
	obs, err := r.Env.Reset(ctx)
	if err != nil {
		return EpisodeSummary{}, err
	}
	if err := r.check(observation, obs, 0); err != nil {
		return EpisodeSummary{}, err
	}
	s := EpisodeSummary{Index: index}
	rewards := make([]float64, 0)
	for done := false; !done; {
		res, err := r.Env.Step(ctx, r.Policy.Act(obs, s.Steps))
		if err != nil {
			return s, err
		}
		s.Steps++
		if err := r.check(observation, res.Observation, res.Reward); err != nil {
			return s, fmt.Errorf("step %d: %w", s.Steps, err)
		}
		rewards = append(rewards, res.Reward)
		s.Collisions += int(res.Info["collisions"])
		s.FinalPhase = int(res.Info["phase"])
		obs, done = res.Observation, res.Done
	}
	s.Return = floats.Sum(rewards)
	s.MeanReward, s.StdReward = stat.PopMeanStdDev(rewards, nil)
	return s, nil
}

func (r *Runner) check(space env.Box, obs []float64, reward float64) error {
	if !r.Check {
		return nil
	}
	if !space.Contains(obs) {
		return fmt.Errorf("%w: observation %v", ErrOutOfBounds, obs)
	}
	for _, x := range obs {
		if math.IsInf(x, 0) {
			return fmt.Errorf("%w: observation %v", ErrOutOfBounds, obs)
		}
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("%w: reward %v", ErrOutOfBounds, reward)
	}
	return nil
}

func (r *Runner) record(s EpisodeSummary) recorder.Episode {
	return recorder.Episode{
		Env:        r.Env.Name(),
		Policy:     r.Policy.Name(),
		Seed:       r.Seed,
		Index:      s.Index,
		Steps:      s.Steps,
		Return:     s.Return,
		MeanReward: s.MeanReward,
		StdReward:  s.StdReward,
		Collisions: s.Collisions,
		FinalPhase: s.FinalPhase,
	}
}
