package junction

import (
	"fmt"
	"sort"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
)

// JunctionManager Junction管理器
// 功能：按信号灯ID管理所有路口，并对外提供信号灯RPC服务
// 说明：mu保护路口索引，Reset时的Init与RPC查询可能并发
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	mu sync.RWMutex

	data      map[string]*Junction // 信号灯ID->路口
	byID      map[int32]*Junction  // 路口ID->路口
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
func NewManager() *JunctionManager {
	return &JunctionManager{
		data:      make(map[string]*Junction),
		byID:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction及其信控
// 说明：使用并行处理提高初始化效率
func (m *JunctionManager) Init(bases []entity.JunctionBase, laneManager entity.ILaneManager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.junctions = parallel.GoMap(bases, func(base entity.JunctionBase) *Junction {
		return newJunction(base, laneManager)
	})
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (string, *Junction) {
		return j.tlID, j
	})
	m.byID = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	if len(m.data) != len(m.junctions) || len(m.byID) != len(m.junctions) {
		log.Panicf("duplicated junction or traffic light id in %d junctions", len(m.junctions))
	}
}

// Get 根据信号灯ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(tlID string) entity.IJunction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if junction, ok := m.data[tlID]; !ok {
		log.Panicf("no traffic light id %s in junction data", tlID)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据信号灯ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(tlID string) (entity.IJunction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if junction, ok := m.data[tlID]; !ok {
		return nil, fmt.Errorf("no traffic light id %s in junction data", tlID)
	} else {
		return junction, nil
	}
}

// TrafficLightIDs 返回排序后的信号灯ID
func (m *JunctionManager) TrafficLightIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := lo.Keys(m.data)
	sort.Strings(ids)
	return ids
}

// SetPhase 跳转到指定相位，剩余时间重置为该相位的时长
func (m *JunctionManager) SetPhase(tlID string, phase int32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.data[tlID]
	if !ok {
		return fmt.Errorf("no traffic light id %s in junction data", tlID)
	}
	return j.setPhase(phase, -1)
}

// Prepare 准备阶段，信号灯将状态写入车道
func (m *JunctionManager) Prepare() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	parallel.GoFor(m.junctions, func(j *Junction) { j.prepare() })
}

// Update 更新阶段，推进信号灯计时
func (m *JunctionManager) Update(dt float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(dt) })
}

// byJunctionID 根据路口ID查找路口
func (m *JunctionManager) byJunctionID(id int32) (*Junction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.byID[id]
	return j, ok
}
