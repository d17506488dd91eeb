package config

// Env 强化学习环境配置
// 功能：选择环境实现并提供奖励、动作解释相关的参数
// 说明：additional_params中的必需键缺失时会在构造环境时立即报错
type Env struct {
	Name               string             `yaml:"name"`                           // 环境名：soft-intersection | hard-intersection | ring-accel
	AdditionalParams   map[string]float64 `yaml:"additional_params"`              // 环境附加参数（max_accel等）
	ControlInterval    int                `yaml:"control_interval,omitempty"`     // soft变体重新采样动作的间隔步数
	PhaseIncrementOnce bool               `yaml:"phase_increment_once,omitempty"` // soft变体每个控制间隔只推进一次相位
	CollisionWeight    *float64           `yaml:"collision_weight,omitempty"`     // hard变体安全项中每次碰撞的权重
}

// Ring 环形道路场景配置
type Ring struct {
	Length     float64 `yaml:"length"`      // 环长（米）
	Lanes      int     `yaml:"lanes"`       // 车道数
	SpeedLimit float64 `yaml:"speed_limit"` // 限速（米/秒）
	Humans     int     `yaml:"humans"`      // 人类驾驶车辆数
	RL         int     `yaml:"rl"`          // 受控车辆数
	Noise      float64 `yaml:"noise"`       // 人类驾驶加速度噪声标准差
}

// Intersection 单路口场景配置
// 功能：定义四个方向进口道、出口道的车道数、长度与车辆生成概率
type Intersection struct {
	Lanes             int     `yaml:"lanes"`                   // 每个方向的车道数
	ZoneLength        float64 `yaml:"zone_length"`             // 每段车道长度（米）
	JunctionLength    float64 `yaml:"junction_length"`         // 路口内部车道长度（米）
	SpeedLimit        float64 `yaml:"speed_limit"`             // 限速（米/秒）
	InflowProbability float64 `yaml:"inflow_probability"`      // 每个进口车道每步生成车辆的概率
	DepartSpeed       float64 `yaml:"depart_speed"`            // 新生成车辆的初速度
	TrafficLight      string  `yaml:"traffic_light,omitempty"` // 信号灯程序文件（mapv2.TrafficLight），为空则使用默认四相位
}

// Scenario 路网与车辆配置
type Scenario struct {
	Ring             Ring         `yaml:"ring"`
	Intersection     Intersection `yaml:"intersection"`
	VehicleAttribute string       `yaml:"vehicle_attribute,omitempty"` // 车辆属性文件（personv2.VehicleAttribute），为空则使用默认值
}

// ControlStep 指定模拟时间步长、回合长度的配置项
type ControlStep struct {
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
	Horizon  int32   `yaml:"horizon"`  // 每个回合的控制步数
	Warmup   int32   `yaml:"warmup"`   // 回合开始前不施加动作的预热步数
}

// Control 模拟器控制配置
type Control struct {
	Step              ControlStep `yaml:"step"`
	HeartbeatInterval int32       `yaml:"heartbeat_interval,omitempty"` // 心跳日志间隔步数
}

// Traci 外部SUMO进程的连接配置
type Traci struct {
	Binary        string   `yaml:"binary"`               // sumo可执行文件
	ConfigFile    string   `yaml:"config_file"`          // .sumocfg
	Host          string   `yaml:"host"`                 // 连接地址
	Port          int      `yaml:"port"`                 // --remote-port
	Retries       int      `yaml:"retries"`              // 连接重试次数
	RetryInterval float64  `yaml:"retry_interval"`       // 连接重试间隔（秒）
	ExtraArgs     []string `yaml:"extra_args,omitempty"` // 额外的命令行参数
}

// Sim 模拟器后端配置
type Sim struct {
	Backend string `yaml:"backend"` // micro | traci
	Seed    uint64 `yaml:"seed"`    // 随机种子
	Traci   Traci  `yaml:"traci,omitempty"`
}

// Server RPC服务配置
type Server struct {
	Listen string `yaml:"listen"`           // 监听地址
	Syncer string `yaml:"syncer,omitempty"` // syncer地址，为空则独立部署
}

// Recorder 回合统计输出配置
type Recorder struct {
	URI string `yaml:"uri,omitempty"` // MongoDB连接字符串，为空则不输出
	DB  string `yaml:"db,omitempty"`  // 数据库名
	Col string `yaml:"col,omitempty"` // 集合名
}

// Experiment 批量运行配置
type Experiment struct {
	Episodes int      `yaml:"episodes"`        // 回合数
	Policy   string   `yaml:"policy"`          // 内置策略：constant | random | max-pressure | idle
	Workers  int      `yaml:"workers"`         // sweep并行度
	Seeds    []uint64 `yaml:"seeds,omitempty"` // sweep的种子列表
}

// Config YAML配置文件的根结构
// 功能：定义整个实验的配置结构
// 说明：加载完成后不再修改，所有组件在初始化时从中读取参数
type Config struct {
	Env        Env        `yaml:"env"`
	Scenario   Scenario   `yaml:"scenario"`
	Control    Control    `yaml:"control"`
	Sim        Sim        `yaml:"sim"`
	Server     Server     `yaml:"server,omitempty"`
	Recorder   Recorder   `yaml:"recorder,omitempty"`
	Experiment Experiment `yaml:"experiment,omitempty"`
}

// GetDb 获取数据库名
func (r Recorder) GetDb() string {
	return r.DB
}

// GetColl 获取集合名
func (r Recorder) GetColl() string {
	return r.Col
}
