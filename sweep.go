package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsinghua-fib-lab/moss-rl-env/experiment"
	"github.com/tsinghua-fib-lab/moss-rl-env/recorder"
)

// SweepCommand 对experiment.seeds中的每个种子并行运行一组回合
func SweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "run episodes for every seed in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := loadConfig()
			if len(c.Experiment.Seeds) == 0 {
				c.Experiment.Seeds = []uint64{c.Sim.Seed}
			}
			if c.Sim.Backend == "traci" && c.Experiment.Workers > 1 {
				// 所有SUMO进程共用一个remote-port
				log.Warnf("traci backend runs seeds one by one")
				c.Experiment.Workers = 1
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rec := recorder.New(c.Recorder)
			defer func() {
				if err := rec.Close(context.Background()); err != nil {
					log.Warnf("close recorder: %v", err)
				}
			}()
			build := func(seed uint64) (*experiment.Runner, func(), error) {
				sc := c
				sc.Sim.Seed = seed
				return experiment.Build(ctx, sc, rec)
			}
			results := experiment.Sweep(ctx, c.Experiment.Seeds, c.Experiment.Workers, build, c.Experiment.Episodes)
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					log.Errorf("seed %d failed: %v", r.Seed, r.Err)
					continue
				}
				log.Infof("seed %d: mean return %.4f over %d episodes", r.Seed, r.MeanReturn(), len(r.Summaries))
			}
			if failed > 0 {
				log.Warnf("%d of %d seeds failed", failed, len(results))
			}
			return nil
		},
	}
}
