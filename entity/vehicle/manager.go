package vehicle

import (
	"fmt"
	"sort"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

// VehicleManager 车辆管理器
// 功能：管理路网中所有车辆，提供添加、删除、查找、外部控制与两阶段更新
type VehicleManager struct {
	ctx entity.ITaskContext

	data     map[string]*Vehicle
	vehicles []*Vehicle // 按加入顺序
	added    uint64     // 累计加入的车辆数，用于派生随机数引擎
}

// NewManager 创建车辆管理器实例
func NewManager(ctx entity.ITaskContext) *VehicleManager {
	return &VehicleManager{
		ctx:      ctx,
		data:     make(map[string]*Vehicle),
		vehicles: make([]*Vehicle, 0),
	}
}

// Add 加入车辆
// 说明：每辆车的随机数引擎由全局引擎按加入序号派生，保证并行更新可复现
func (m *VehicleManager) Add(base entity.VehicleBase) error {
	if _, ok := m.data[base.ID]; ok {
		return fmt.Errorf("vehicle %s already exists", base.ID)
	}
	lane, err := m.ctx.LaneManager().GetOrError(base.Lane)
	if err != nil {
		return fmt.Errorf("add vehicle %s: %w", base.ID, err)
	}
	v, err := newVehicle(base, lane, m.ctx.Rand().Fork(m.added))
	if err != nil {
		return err
	}
	m.added++
	m.data[v.id] = v
	m.vehicles = append(m.vehicles, v)
	return nil
}

// Remove 删除车辆（不存在的ID忽略）
func (m *VehicleManager) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	removed := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	m.vehicles = lo.Filter(m.vehicles, func(v *Vehicle, _ int) bool {
		_, ok := removed[v.id]
		return !ok
	})
	for _, id := range ids {
		delete(m.data, id)
	}
}

// Reset 清空所有车辆
func (m *VehicleManager) Reset() {
	m.data = make(map[string]*Vehicle)
	m.vehicles = make([]*Vehicle, 0)
	m.added = 0
}

// Get 根据ID获取车辆，如果不存在则panic
func (m *VehicleManager) Get(id string) entity.IVehicle {
	if v, ok := m.data[id]; !ok {
		log.Panicf("no id %s in vehicle data", id)
		return nil
	} else {
		return v
	}
}

// GetOrError 根据ID获取车辆，如果不存在则返回错误
func (m *VehicleManager) GetOrError(id string) (entity.IVehicle, error) {
	if v, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in vehicle data", id)
	} else {
		return v, nil
	}
}

// Vehicles 按加入顺序返回所有车辆
func (m *VehicleManager) Vehicles() []entity.IVehicle {
	return lo.Map(m.vehicles, func(v *Vehicle, _ int) entity.IVehicle { return v })
}

// IDs 返回排序后的车辆ID
func (m *VehicleManager) IDs() []string {
	ids := lo.Keys(m.data)
	sort.Strings(ids)
	return ids
}

// SetSpeed 设定车辆速度，负值恢复跟驰模型控制
func (m *VehicleManager) SetSpeed(id string, speed float64) error {
	v, ok := m.data[id]
	if !ok {
		return fmt.Errorf("no id %s in vehicle data", id)
	}
	v.cmdSpeed = speed
	return nil
}

// SetMaxSpeed 设定车辆最大速度
func (m *VehicleManager) SetMaxSpeed(id string, speed float64) error {
	v, ok := m.data[id]
	if !ok {
		return fmt.Errorf("no id %s in vehicle data", id)
	}
	if speed < 0 {
		return fmt.Errorf("vehicle %s max speed %v is negative", id, speed)
	}
	v.cmdMaxSpeed = speed
	return nil
}

// Update 更新阶段
// 算法说明：
// 1. 并行计算所有车辆加速度（只读共享状态）
// 2. 并行积分所有车辆状态（只写自身）
// 3. 删除驶出路网的车辆并返回其ID
func (m *VehicleManager) Update(dt float64) (finished []string) {
	parallel.GoFor(m.vehicles, func(v *Vehicle) { v.computeAction(dt) })
	parallel.GoFor(m.vehicles, func(v *Vehicle) { v.integrate(dt) })
	finished = lo.FilterMap(m.vehicles, func(v *Vehicle, _ int) (string, bool) { return v.id, v.finished })
	m.Remove(finished)
	return
}
