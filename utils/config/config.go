package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

var (
	ErrMissingParam = errors.New("missing environment parameter")
	ErrNoConfig     = errors.New("config file or config data must be specified")
)

// 环境附加参数键
const (
	ParamMaxAccel       = "max_accel"
	ParamMaxDecel       = "max_decel"
	ParamTargetVelocity = "target_velocity"
	ParamAlpha          = "alpha"
	ParamBeta           = "beta"
)

var (
	// IntersectionParams 路口环境的必需参数
	IntersectionParams = []string{ParamMaxAccel, ParamMaxDecel, ParamTargetVelocity, ParamAlpha, ParamBeta}
	// RingParams 环形道路环境的必需参数
	RingParams = []string{ParamMaxAccel, ParamMaxDecel, ParamTargetVelocity}
)

// DefaultAdditionalParams 返回附加参数的推荐取值
// 说明：Default()不会写入这些值，YAML中必须显式给出必需键
func DefaultAdditionalParams() map[string]float64 {
	return map[string]float64{
		ParamMaxAccel:       3,
		ParamMaxDecel:       5,
		ParamTargetVelocity: 11.176,
		ParamAlpha:          0.8,
		ParamBeta:           0.5,
	}
}

// Default 返回带默认值的配置
// 功能：为YAML中未出现的字段提供默认值，UnmarshalStrict会在此基础上覆盖
func Default() Config {
	return Config{
		Env: Env{
			Name:            "soft-intersection",
			ControlInterval: 10,
		},
		Scenario: Scenario{
			Ring: Ring{
				Length:     260,
				Lanes:      1,
				SpeedLimit: 30,
				Humans:     21,
				RL:         1,
				Noise:      0.2,
			},
			Intersection: Intersection{
				Lanes:             2,
				ZoneLength:        100,
				JunctionLength:    20,
				SpeedLimit:        11.176,
				InflowProbability: 0.1,
				DepartSpeed:       10,
			},
		},
		Control: Control{
			Step: ControlStep{
				Interval: 0.1,
				Horizon:  1500,
				Warmup:   150,
			},
			HeartbeatInterval: 100,
		},
		Sim: Sim{
			Backend: "micro",
			Seed:    204,
			Traci: Traci{
				Binary:        "sumo",
				Host:          "localhost",
				Port:          8813,
				Retries:       20,
				RetryInterval: 0.5,
			},
		},
		Server: Server{
			Listen: ":51102",
		},
		Experiment: Experiment{
			Episodes: 1,
			Policy:   "constant",
			Workers:  4,
		},
	}
}

// Parse 解析YAML配置
// 功能：在默认值基础上严格解析YAML（未知字段报错）并校验
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("config file load err: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load 从文件路径或Base64编码的数据中加载配置
// 参数：path-配置文件路径，data-Base64编码的配置数据（path为空时使用）
func Load(path, data string) (Config, error) {
	var file []byte
	var err error
	switch {
	case path != "":
		if file, err = os.ReadFile(path); err != nil {
			return Config{}, fmt.Errorf("config file load err: %w", err)
		}
	case data != "":
		if file, err = base64.StdEncoding.DecodeString(data); err != nil {
			return Config{}, fmt.Errorf("config data load err: %w", err)
		}
	default:
		return Config{}, ErrNoConfig
	}
	return Parse(file)
}

// Validate 检查配置取值范围
func (c Config) Validate() error {
	switch c.Env.Name {
	case "soft-intersection", "hard-intersection", "ring-accel":
	default:
		return fmt.Errorf("unknown env name %q", c.Env.Name)
	}
	if c.Env.ControlInterval <= 0 {
		return fmt.Errorf("env.control_interval must be positive, got %d", c.Env.ControlInterval)
	}
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("control.step.interval must be positive, got %v", c.Control.Step.Interval)
	}
	if c.Control.Step.Horizon <= 0 || c.Control.Step.Warmup < 0 {
		return fmt.Errorf("bad horizon %d or warmup %d", c.Control.Step.Horizon, c.Control.Step.Warmup)
	}
	switch c.Sim.Backend {
	case "micro", "traci":
	default:
		return fmt.Errorf("unknown sim backend %q", c.Sim.Backend)
	}
	if c.Env.Name != "ring-accel" && c.Scenario.Intersection.Lanes != 2 {
		return fmt.Errorf("intersection envs need 2 lanes per bound, got %d", c.Scenario.Intersection.Lanes)
	}
	if p := c.Scenario.Intersection.InflowProbability; p < 0 || p > 1 {
		return fmt.Errorf("inflow probability %v out of [0, 1]", p)
	}
	return nil
}

// EnvParams 从additional_params解析出的环境参数
type EnvParams struct {
	MaxAccel       float64 // 最大加速度（米/秒²）
	MaxDecel       float64 // 最大减速度（米/秒²，取绝对值）
	TargetVelocity float64 // 期望速度（米/秒）
	Alpha          float64 // 性能-能耗权衡
	Beta           float64 // 安全-导航权衡
}

// NewEnvParams 按必需键列表解析环境参数
// 功能：任一必需键缺失时返回以ErrMissingParam包装、带键名的错误
// 参数：params-附加参数，required-必需键（按顺序检查）
func NewEnvParams(params map[string]float64, required []string) (EnvParams, error) {
	for _, key := range required {
		if _, ok := params[key]; !ok {
			return EnvParams{}, fmt.Errorf("%w: environment parameter %q not supplied", ErrMissingParam, key)
		}
	}
	return EnvParams{
		MaxAccel:       params[ParamMaxAccel],
		MaxDecel:       math.Abs(params[ParamMaxDecel]),
		TargetVelocity: params[ParamTargetVelocity],
		Alpha:          params[ParamAlpha],
		Beta:           params[ParamBeta],
	}, nil
}
