package lane_test

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/lane"
)

type testVehicle struct {
	id   string
	lane entity.ILane
	s, v float64
	fuel float64
}

func (t *testVehicle) ID() string                       { return t.id }
func (t *testVehicle) Attr() *personv2.VehicleAttribute { return nil }
func (t *testVehicle) Lane() entity.ILane               { return t.lane }
func (t *testVehicle) S() float64                       { return t.s }
func (t *testVehicle) V() float64                       { return t.v }
func (t *testVehicle) A() float64                       { return 0 }
func (t *testVehicle) Length() float64                  { return 5 }
func (t *testVehicle) Fuel() float64                    { return t.fuel }
func (t *testVehicle) CO2() float64                     { return 3 * t.fuel }

func newTestManager() *lane.LaneManager {
	m := lane.NewManager()
	m.Init([]entity.LaneBase{
		{ID: "a", Length: 100, MaxSpeed: 10, Successor: "b"},
		{ID: "b", Length: 50, MaxSpeed: 20},
	})
	return m
}

func TestLaneInit(t *testing.T) {
	m := newTestManager()
	a := m.Get("a")
	assert.Equal(t, "b", a.Successor().ID())
	assert.Nil(t, m.Get("b").Successor())
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, a.Light())
	_, err := m.GetOrError("c")
	assert.Error(t, err)
	assert.Len(t, m.Lanes(), 2)
}

func TestLanePrepareStatistics(t *testing.T) {
	m := newTestManager()
	a := m.Get("a")
	m.Prepare(nil)
	// 无车时平均速度为限速
	assert.Equal(t, 10., a.MeanSpeed())
	assert.Equal(t, 0., a.Fuel())

	vs := []entity.IVehicle{
		&testVehicle{id: "v2", lane: a, s: 60, v: 4, fuel: 100},
		&testVehicle{id: "v1", lane: a, s: 20, v: 2, fuel: 50},
		&testVehicle{id: "v3", lane: m.Get("b"), s: 10, v: 9, fuel: 10},
	}
	m.Prepare(vs)
	require.Len(t, a.Vehicles(), 2)
	assert.Equal(t, "v1", a.Vehicles()[0].ID())
	assert.Equal(t, 3., a.MeanSpeed())
	assert.Equal(t, 150., a.Fuel())
	assert.Equal(t, 450., a.CO2())
	assert.Equal(t, "v2", a.FirstAfter(20).ID())
	assert.Nil(t, a.FirstAfter(60))
}

func TestLaneCollisions(t *testing.T) {
	m := newTestManager()
	a, b := m.Get("a"), m.Get("b")
	m.Prepare([]entity.IVehicle{
		&testVehicle{id: "x", lane: a, s: 20},
		&testVehicle{id: "y", lane: a, s: 23}, // 车尾18 < 20
		&testVehicle{id: "z", lane: a, s: 60},
	})
	assert.Equal(t, []string{"x", "y"}, m.DetectCollisions())

	// 跨车道：a上车头98，b上车头2（车尾-3）
	m.Prepare([]entity.IVehicle{
		&testVehicle{id: "p", lane: a, s: 98},
		&testVehicle{id: "q", lane: b, s: 2},
	})
	assert.Equal(t, []string{"p", "q"}, m.DetectCollisions())

	m.Prepare([]entity.IVehicle{
		&testVehicle{id: "p", lane: a, s: 90},
		&testVehicle{id: "q", lane: b, s: 10},
	})
	assert.Empty(t, m.DetectCollisions())
}
