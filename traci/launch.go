package traci

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// Args SUMO命令行参数（不含可执行文件与--remote-port）
func Args(c config.Traci, stepLength float64, seed uint64) []string {
	args := []string{
		"-c", c.ConfigFile,
		"--step-length", strconv.FormatFloat(stepLength, 'f', -1, 64),
		"--seed", strconv.FormatUint(seed, 10),
		"--no-step-log", "true",
		"--collision.check-junctions", "true",
	}
	return append(args, c.ExtraArgs...)
}

// Launch 启动SUMO进程并连接
// 算法说明：
// 1. 以--remote-port启动sumo
// 2. 按配置的重试次数与间隔连接，全部失败时结束进程
// 3. 完成握手，Reset时以相同参数执行load
func Launch(ctx context.Context, c config.Traci, stepLength float64, seed uint64) (*Client, error) {
	args := Args(c, stepLength, seed)
	cmd := exec.CommandContext(ctx, c.Binary, append(args, "--remote-port", strconv.Itoa(c.Port))...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Binary, err)
	}
	log.Infof("started %s (pid %d) on port %d", c.Binary, cmd.Process.Pid, c.Port)
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	interval := time.Duration(c.RetryInterval * float64(time.Second))
	conn, err := dial(ctx, addr, c.Retries, interval)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	client, err := NewClient(ctx, conn, args)
	if err != nil {
		_ = conn.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	client.process = cmd
	return client, nil
}

// Connect 连接已在运行的SUMO
func Connect(ctx context.Context, c config.Traci, loadArgs []string) (*Client, error) {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	conn, err := dial(ctx, addr, c.Retries, time.Duration(c.RetryInterval*float64(time.Second)))
	if err != nil {
		return nil, err
	}
	client, err := NewClient(ctx, conn, loadArgs)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}
