package clock

import (
	"fmt"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

// Clock 回合时钟
// 功能：记录一个回合内的模拟步数与时间，区分预热阶段与控制阶段
// 说明：模拟区间为[0, WARMUP+HORIZON)，前WARMUP步不施加动作
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT      float64 // 每个模拟步时间间隔（秒）
	HORIZON int32   // 控制步数
	WARMUP  int32   // 预热步数

	T    float64 // 当前时间（秒）
	Step int32   // 当前模拟步数（含预热）
}

// New 根据配置创建新的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:      stepConfig.Interval,
		HORIZON: stepConfig.Horizon,
		WARMUP:  stepConfig.Warmup,
	}
	c.Reset()
	return c
}

// Reset 回到回合起点
func (c *Clock) Reset() {
	c.Step = 0
	c.T = 0
}

// Tick 推进一步
func (c *Clock) Tick() {
	c.Step++
	c.T = float64(c.Step) * c.DT
}

// InWarmup 是否仍处于预热阶段
func (c *Clock) InWarmup() bool {
	return c.Step < c.WARMUP
}

// ControlStep 当前控制步数（预热结束后从0开始）
func (c *Clock) ControlStep() int32 {
	if c.Step < c.WARMUP {
		return 0
	}
	return c.Step - c.WARMUP
}

// Done 回合是否结束
func (c *Clock) Done() bool {
	return c.Step >= c.WARMUP+c.HORIZON
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（HH:MM:SS.ss）
func (c *Clock) String() string {
	hour, minute, second := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%05.2f", hour, minute, second)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
