package main

import (
	"context"
	"os/signal"
	"syscall"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/spf13/cobra"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/experiment"
	"github.com/tsinghua-fib-lab/moss-rl-env/server"
	"github.com/tsinghua-fib-lab/moss-rl-env/task"
)

// 本程序在模拟任务集群中的名字
const selfName = "rlenv"

// ServeCommand 将环境以RPC服务的形式提供给外部训练程序
// 说明：server.syncer为空时独立部署，否则注册到syncer
func ServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the environment over connect RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := loadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sim, err := experiment.NewSimulation(ctx, c)
			if err != nil {
				return err
			}
			defer func() {
				if err := sim.Close(); err != nil {
					log.Warnf("close simulation: %v", err)
				}
			}()
			e, err := env.Make(ctx, c.Env.Name, sim, c)
			if err != nil {
				return err
			}

			sidecar := syncer.NewSidecar(selfName, c.Server.Listen, c.Server.Syncer)
			server.NewEnvService(e).Register(sidecar)
			if micro, ok := sim.(*task.Context); ok {
				micro.Register(sidecar)
			}

			// sidecar协程，用于提供RPC服务
			serveErr := make(chan error, 1)
			go func() {
				serveErr <- sidecar.Serve()
			}()
			log.Infof("serving %s on %s", e.Name(), c.Server.Listen)
			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				sidecar.Close()
				return <-serveErr
			}
		},
	}
}
