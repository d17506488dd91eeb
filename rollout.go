package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tsinghua-fib-lab/moss-rl-env/experiment"
	"github.com/tsinghua-fib-lab/moss-rl-env/recorder"
)

var checkBounds bool

// RolloutCommand 用内置策略运行experiment.episodes个回合
func RolloutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "run episodes with a built-in policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := loadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rec := recorder.New(c.Recorder)
			defer func() {
				if err := rec.Close(context.Background()); err != nil {
					log.Warnf("close recorder: %v", err)
				}
			}()
			runner, release, err := experiment.Build(ctx, c, rec)
			if err != nil {
				return err
			}
			defer release()
			runner.Check = checkBounds
			summaries, err := runner.Run(ctx, c.Experiment.Episodes)
			for _, s := range summaries {
				log.Infof("episode %d: return %.4f", s.Index, s.Return)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&checkBounds, "check", false, "check observations and rewards against the declared spaces")
	return cmd
}
