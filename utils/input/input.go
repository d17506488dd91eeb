package input

import (
	"errors"
	"fmt"

	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

var (
	ErrBadTrafficLight = errors.New("bad traffic light program")
)

// Input 输入数据
// 功能：存储场景构建所需的外部数据，字段为nil表示使用内置默认值
type Input struct {
	TrafficLight     *mapv2.TrafficLight
	VehicleAttribute *personv2.VehicleAttribute
}

// Init 读取场景配置中指定的所有输入文件
func Init(c config.Scenario) (*Input, error) {
	res := &Input{}
	if c.Intersection.TrafficLight != "" {
		tl, err := LoadTrafficLight(c.Intersection.TrafficLight)
		if err != nil {
			return nil, err
		}
		if err := ValidateTrafficLight(tl, 4*c.Intersection.Lanes); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Intersection.TrafficLight, err)
		}
		res.TrafficLight = tl
	}
	if c.VehicleAttribute != "" {
		attr, err := LoadVehicleAttribute(c.VehicleAttribute)
		if err != nil {
			return nil, err
		}
		res.VehicleAttribute = attr
	}
	return res, nil
}

// LoadTrafficLight 从protobuf文件读取信号灯程序
func LoadTrafficLight(path string) (*mapv2.TrafficLight, error) {
	var tl mapv2.TrafficLight
	if err := protoutil.UnmarshalFromFile(&tl, path); err != nil {
		return nil, fmt.Errorf("failed to load traffic light from file %s: %w", path, err)
	}
	log.Infof("load traffic light with %d phases from %s", len(tl.Phases), path)
	return &tl, nil
}

// LoadVehicleAttribute 从protobuf文件读取车辆属性
func LoadVehicleAttribute(path string) (*personv2.VehicleAttribute, error) {
	var attr personv2.VehicleAttribute
	if err := protoutil.UnmarshalFromFile(&attr, path); err != nil {
		return nil, fmt.Errorf("failed to load vehicle attribute from file %s: %w", path, err)
	}
	log.Infof("load vehicle attribute from %s", path)
	return &attr, nil
}

// ValidateTrafficLight 检查信号灯程序的相位数、每个相位的状态数与时长
// 参数：links-受控车道数
func ValidateTrafficLight(tl *mapv2.TrafficLight, links int) error {
	if len(tl.Phases) == 0 {
		return fmt.Errorf("%w: no phase", ErrBadTrafficLight)
	}
	total := 0.
	for i, p := range tl.Phases {
		if len(p.States) != links {
			return fmt.Errorf("%w: phase %d has %d states, want %d", ErrBadTrafficLight, i, len(p.States), links)
		}
		if p.Duration < 0 {
			return fmt.Errorf("%w: phase %d has negative duration %v", ErrBadTrafficLight, i, p.Duration)
		}
		total += p.Duration
	}
	if total <= 0 {
		return fmt.Errorf("%w: cycle length %v is not positive", ErrBadTrafficLight, total)
	}
	return nil
}
