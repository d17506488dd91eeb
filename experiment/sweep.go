package experiment

import (
	"context"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// SweepResult 一个种子的运行结果
type SweepResult struct {
	Seed      uint64
	Summaries []EpisodeSummary
	Err       error
}

// MeanReturn 所有回合回报的均值
func (r SweepResult) MeanReturn() float64 {
	if len(r.Summaries) == 0 {
		return 0
	}
	return stat.Mean(lo.Map(r.Summaries, func(s EpisodeSummary, _ int) float64 { return s.Return }), nil)
}

// Sweep 对每个种子独立构造并运行一组回合
// 参数：seeds-种子列表，workers-并行度，build-为种子构造Runner（每个Runner独占自己的模拟器），episodes-回合数
// 说明：结果顺序与seeds一致，单个种子的错误记录在结果中，不影响其他种子
func Sweep(
	ctx context.Context, seeds []uint64, workers int,
	build func(seed uint64) (*Runner, func(), error), episodes int,
) []SweepResult {
	res := make([]SweepResult, 0, len(seeds))
	for _, chunk := range lo.Chunk(seeds, max(workers, 1)) {
		res = append(res, parallel.GoMap(chunk, func(seed uint64) SweepResult {
			runner, release, err := build(seed)
			if err != nil {
				return SweepResult{Seed: seed, Err: err}
			}
			defer release()
			summaries, err := runner.Run(ctx, episodes)
			if err != nil {
				log.Errorf("seed %d: %v", seed, err)
			}
			return SweepResult{Seed: seed, Summaries: summaries, Err: err}
		})...)
	}
	return res
}
