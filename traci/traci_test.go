package traci

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSumo 在net.Pipe另一端模拟SUMO的TraCI服务
type fakeSumo struct {
	conn net.Conn

	speeds    map[string]float64
	maxSpeeds map[string]float64
	phases    []int32
	loads     [][]string
	steps     int
}

func startFakeSumo(t *testing.T) (*fakeSumo, net.Conn) {
	client, server := net.Pipe()
	s := &fakeSumo{
		conn:      server,
		speeds:    make(map[string]float64),
		maxSpeeds: make(map[string]float64),
	}
	go s.serve()
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func (s *fakeSumo) serve() {
	defer s.conn.Close()
	for {
		var header [4]byte
		if _, err := io.ReadFull(s.conn, header[:]); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint32(header[:])-4)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			return
		}
		r := newReader(body)
		if _, err := r.length(); err != nil {
			return
		}
		id, _ := r.ubyte()
		result, desc, payload := s.handle(id, r)
		var status writer
		status.ubyte(result)
		status.string(desc)
		resp := append(command(id, status.bytes()), payload...)
		msg := make([]byte, 4, 4+len(resp))
		binary.BigEndian.PutUint32(msg, uint32(4+len(resp)))
		if _, err := s.conn.Write(append(msg, resp...)); err != nil {
			return
		}
		if id == cmdClose {
			return
		}
	}
}

func (s *fakeSumo) handle(id byte, r *reader) (byte, string, []byte) {
	switch id {
	case cmdGetVersion:
		var w writer
		w.int(21)
		w.string("SUMO fake")
		return rtypeOK, "", command(cmdGetVersion, w.bytes())
	case cmdSimStep:
		s.steps++
		var w writer
		w.int(0)
		return rtypeOK, "", w.bytes()
	case cmdLoad:
		args, _ := as[[]string](r.value())
		s.loads = append(s.loads, args)
		return rtypeOK, "", nil
	case cmdClose:
		return rtypeOK, "", nil
	case cmdSetVehicleVariable, cmdSetTLVariable:
		variable, _ := r.ubyte()
		obj, _ := r.string()
		v, _ := r.value()
		switch {
		case id == cmdSetTLVariable && variable == varTLPhaseIndex:
			s.phases = append(s.phases, v.(int32))
		case variable == varSpeed:
			s.speeds[obj] = v.(float64)
		case variable == varMaxSpeed:
			s.maxSpeeds[obj] = v.(float64)
		default:
			return rtypeNotImplemented, "unsupported variable", nil
		}
		return rtypeOK, "", nil
	case cmdGetLaneVariable, cmdGetVehicleVariable, cmdGetTLVariable, cmdGetSimulationVariable:
		variable, _ := r.ubyte()
		obj, _ := r.string()
		value, ok := s.value(id, variable, obj)
		if !ok {
			return rtypeErr, "Object '" + obj + "' is not known", nil
		}
		var w writer
		w.ubyte(variable)
		w.string(obj)
		value(&w)
		return rtypeOK, "", command(id+responseOffset, w.bytes())
	default:
		return rtypeNotImplemented, "unknown command", nil
	}
}

func typedDouble(v float64) func(*writer) { return func(w *writer) { w.typedDouble(v) } }
func typedInt(v int32) func(*writer)      { return func(w *writer) { w.typedInt(v) } }
func typedStrings(v ...string) func(*writer) {
	return func(w *writer) { w.typedStringList(v) }
}
func typedString(v string) func(*writer) {
	return func(w *writer) {
		w.ubyte(typeString)
		w.string(v)
	}
}

func compound(items ...func(*writer)) func(*writer) {
	return func(w *writer) {
		w.ubyte(typeCompound)
		w.int(int32(len(items)))
		for _, item := range items {
			item(w)
		}
	}
}

func phase(duration float64, state string) func(*writer) {
	return compound(typedDouble(duration), typedString(state), typedDouble(duration), typedDouble(duration),
		compound(), typedString(""))
}

func (s *fakeSumo) value(domain, variable byte, obj string) (func(*writer), bool) {
	switch domain {
	case cmdGetLaneVariable:
		if obj != "in" {
			return nil, false
		}
		return map[byte]func(*writer){
			varLastStepMeanSpeed:     typedDouble(7.5),
			varLastStepVehicleNumber: typedInt(3),
			varLength:                typedDouble(120),
			varMaxSpeed:              typedDouble(13.89),
			varFuelConsumption:       typedDouble(1000),
			varCO2Emission:           typedDouble(3150),
			varLastStepVehicleIDList: typedStrings("a", "b", "c"),
		}[variable], true
	case cmdGetVehicleVariable:
		switch {
		case variable == varIDList:
			return typedStrings("a", "b", "c"), true
		case obj != "a":
			return nil, false
		case variable == varSpeed:
			return typedDouble(4.5), true
		case variable == varLaneID:
			return typedString("in"), true
		case variable == varLanePosition:
			return typedDouble(33), true
		}
	case cmdGetTLVariable:
		switch {
		case variable == varIDList:
			return typedStrings("center"), true
		case obj != "center":
			return nil, false
		case variable == varTLRedYellowGreenState:
			return typedString("GGrr"), true
		case variable == varTLCurrentPhase:
			return typedInt(2), true
		case variable == varTLCompleteDefinition:
			logic := compound(typedString("0"), typedInt(0), typedInt(0),
				compound(phase(31, "GGrr"), phase(4, "yyrr"), phase(31, "rrGG"), phase(4, "rryy")),
				compound())
			return compound(logic), true
		}
	case cmdGetSimulationVariable:
		switch variable {
		case varDeltaT:
			return typedDouble(0.1), true
		case varCollidingVehicleIDs:
			return typedStrings("a"), true
		case varTime:
			return typedDouble(float64(s.steps) / 10), true
		}
	}
	return nil, false
}

func newTestClient(t *testing.T) (*Client, *fakeSumo) {
	s, conn := startFakeSumo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := NewClient(ctx, conn, []string{"-c", "test.sumocfg"})
	require.NoError(t, err)
	return c, s
}

func TestHandshake(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "SUMO fake", c.Version())
	assert.Equal(t, int32(21), c.apiLevel)
	assert.Equal(t, 0.1, c.DeltaT())
}

func TestLaneQueries(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	speed, err := c.LaneMeanSpeed(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 7.5, speed)
	n, err := c.LaneVehicleNumber(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	length, err := c.LaneLength(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 120., length)
	fuel, err := c.LaneFuelConsumption(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 1000., fuel)
	ids, err := c.LaneVehicleIDs(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, err = c.LaneMeanSpeed(ctx, "nowhere")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "'nowhere' is not known")

	// 出错后连接仍可使用
	speed, err = c.LaneMaxSpeed(ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, 13.89, speed)
}

func TestVehicleCommands(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	v, err := c.VehicleSpeed(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)
	lane, err := c.VehicleLaneID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "in", lane)
	pos, err := c.VehicleLanePosition(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 33., pos)

	require.NoError(t, c.SetVehicleSpeed(ctx, "a", 3))
	require.NoError(t, c.SetVehicleMaxSpeed(ctx, "b", 8))
	assert.Equal(t, map[string]float64{"a": 3}, s.speeds)
	assert.Equal(t, map[string]float64{"b": 8}, s.maxSpeeds)
}

func TestTrafficLight(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	ids, err := c.TrafficLightIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"center"}, ids)
	state, err := c.TrafficLightState(ctx, "center")
	require.NoError(t, err)
	assert.Equal(t, "GGrr", state)
	phase, err := c.TrafficLightPhase(ctx, "center")
	require.NoError(t, err)
	assert.Equal(t, 2, phase)

	def, err := c.TrafficLightDefinition(ctx, "center")
	require.NoError(t, err)
	require.Len(t, def, 1)
	require.Len(t, def[0].Phases, 4)
	assert.Equal(t, 4., def[0].Phases[1].Duration)
	assert.Equal(t, []mapv2.LightState{
		mapv2.LightState_LIGHT_STATE_RED, mapv2.LightState_LIGHT_STATE_RED,
		mapv2.LightState_LIGHT_STATE_GREEN, mapv2.LightState_LIGHT_STATE_GREEN,
	}, def[0].Phases[2].States)

	require.NoError(t, c.SetTrafficLightPhase(ctx, "center", 3))
	assert.Equal(t, []int32{3}, s.phases)
}

func TestSimulationLifecycle(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, c.SimulationStep(ctx))
	}
	assert.Equal(t, 3, s.steps)
	now, err := c.Time(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, now, 1e-9)
	colliding, err := c.CollidingVehicleIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, colliding)

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, [][]string{{"-c", "test.sumocfg"}}, s.loads)

	require.NoError(t, c.Close())
}

func TestCanceledContext(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SimulationStep(ctx), context.Canceled)
}

func TestCommandFraming(t *testing.T) {
	short := command(cmdSimStep, make([]byte, 8))
	assert.Equal(t, byte(10), short[0])
	assert.Equal(t, byte(cmdSimStep), short[1])

	long := command(cmdLoad, make([]byte, 300))
	assert.Equal(t, byte(0), long[0])
	assert.Equal(t, uint32(306), binary.BigEndian.Uint32(long[1:5]))
	r := newReader(long)
	n, err := r.length()
	require.NoError(t, err)
	assert.Equal(t, 301, n)
}

func TestReaderErrors(t *testing.T) {
	var w writer
	w.ubyte(typeDouble)
	w.int(1)
	_, err := newReader(w.bytes()).value()
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = newReader([]byte{0x42}).value()
	assert.ErrorIs(t, err, ErrUnexpected)

	_, err = as[string](newReader([]byte{typeInteger, 0, 0, 0, 1}).value())
	assert.ErrorIs(t, err, ErrUnexpected)
}

func TestOversizedResponse(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go func() {
		var header [4]byte
		if _, err := io.ReadFull(server, header[:]); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint32(header[:])-4)
		if _, err := io.ReadFull(server, body); err != nil {
			return
		}
		binary.BigEndian.PutUint32(header[:], 0xffffffff)
		_, _ = server.Write(header[:])
	}()
	c := &conn{c: client}
	_, err := c.roundTrip(context.Background(), cmdSimStep, command(cmdSimStep, nil))
	assert.ErrorIs(t, err, ErrUnexpected)
}
