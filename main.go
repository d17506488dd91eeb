package main

import (
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

var (
	// 配置文件路径
	configPath string
	// 配置文件Base64编码后的数据
	configData string

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel string

	log = logrus.WithField("module", "moss-rl-env")
)

// loadConfig 初始化日志并读取配置，失败时panic
func loadConfig() config.Config {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	c, err := config.Load(configPath, configData)
	if err != nil {
		log.Panicf("%v", err)
	}
	log.Infof("%+v", c)
	return c
}

func main() {
	root := &cobra.Command{
		Use:   "moss-rl-env",
		Short: "reinforcement learning environments on a traffic simulator",
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file path")
	flags.StringVar(&configData, "config-data", "", "config file base64 encoded data")
	flags.StringVar(&logLevel, "log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	root.AddCommand(RolloutCommand(), ServeCommand(), SweepCommand())
	if err := root.Execute(); err != nil {
		log.Panicf("%v", err)
	}
}
