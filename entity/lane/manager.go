package lane

import (
	"fmt"
	"sort"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

// LaneManager Lane管理器
// 功能：管理所有Lane实体，提供创建、查找、占用重建与碰撞检测
type LaneManager struct {
	data  map[string]*Lane
	lanes []*Lane
}

// NewManager 创建Lane管理器实例
func NewManager() *LaneManager {
	return &LaneManager{
		data:  make(map[string]*Lane),
		lanes: make([]*Lane, 0),
	}
}

// Init 初始化所有Lane
// 功能：创建Lane对象，建立ID映射关系和后继关系
// 说明：分两阶段：创建对象和建立连接关系
func (m *LaneManager) Init(bases []entity.LaneBase) {
	m.lanes = parallel.GoMap(bases, func(base entity.LaneBase) *Lane {
		return newLane(base)
	})
	m.data = lo.SliceToMap(m.lanes, func(l *Lane) (string, *Lane) {
		return l.id, l
	})
	if len(m.data) != len(m.lanes) {
		log.Panicf("duplicated lane id in %d lanes", len(m.lanes))
	}
	parallel.GoFor(m.lanes, func(l *Lane) { l.initWithManager(m) })
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id string) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %s in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id string) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in lane data", id)
	} else {
		return lane, nil
	}
}

// Lanes 按初始化顺序返回所有Lane
func (m *LaneManager) Lanes() []entity.ILane {
	return lo.Map(m.lanes, func(l *Lane, _ int) entity.ILane { return l })
}

// Prepare 准备阶段
// 功能：按车辆所在车道分组后，并行重建每条车道的有序车辆列表与统计量
func (m *LaneManager) Prepare(vehicles []entity.IVehicle) {
	groups := lo.GroupBy(vehicles, func(v entity.IVehicle) string { return v.Lane().ID() })
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepare(groups[l.id]) })
}

// DetectCollisions 碰撞检测
// 返回：发生重叠的车辆ID（去重、排序）
// 说明：必须在Prepare之后调用
func (m *LaneManager) DetectCollisions() []string {
	perLane := parallel.GoMap(m.lanes, func(l *Lane) []string { return l.collisions() })
	ids := lo.Uniq(lo.Flatten(perLane))
	sort.Strings(ids)
	return ids
}
