package traci

import (
	"context"
	"fmt"
	"net"
	"os/exec"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity"
	"github.com/tsinghua-fib-lab/moss-rl-env/entity/junction/trafficlight"
)

var _ entity.ISimulation = (*Client)(nil)

// Client TraCI客户端，通过SUMO的TraCI接口实现模拟器控制接口
// 说明：非并发安全，调用方需保证同一时间只有一个goroutine使用
type Client struct {
	conn     conn
	dt       float64
	apiLevel int32
	version  string

	loadArgs []string  // Reset时发送给load命令的参数，为空表示不支持Reset
	process  *exec.Cmd // 由Launch启动的SUMO进程
}

// NewClient 在已建立的连接上完成版本握手，并查询仿真步长
// 参数：c-连接，loadArgs-Reset时重新加载仿真使用的命令行参数（不含可执行文件）
func NewClient(ctx context.Context, c net.Conn, loadArgs []string) (*Client, error) {
	client := &Client{conn: conn{c: c}, loadArgs: loadArgs}
	if err := client.handshake(ctx); err != nil {
		return nil, err
	}
	dt, err := as[float64](client.conn.get(ctx, cmdGetSimulationVariable, varDeltaT, ""))
	if err != nil {
		return nil, fmt.Errorf("query delta t: %w", err)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: delta t %v", ErrUnexpected, dt)
	}
	client.dt = dt
	log.Infof("connected to %s (api %d), dt=%v", client.version, client.apiLevel, dt)
	return client, nil
}

// handshake 版本响应：长度 + 0x00 + API版本 + 版本字符串
func (c *Client) handshake(ctx context.Context) error {
	r, err := c.conn.roundTrip(ctx, cmdGetVersion, command(cmdGetVersion, nil))
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if _, err := r.length(); err != nil {
		return err
	}
	if id, err := r.ubyte(); err != nil {
		return err
	} else if id != cmdGetVersion {
		return fmt.Errorf("%w: version response 0x%02x", ErrUnexpected, id)
	}
	if c.apiLevel, err = r.int(); err != nil {
		return err
	}
	if c.version, err = r.string(); err != nil {
		return err
	}
	return nil
}

// Version SUMO版本字符串
func (c *Client) Version() string {
	return c.version
}

func (c *Client) getDouble(ctx context.Context, domain, variable byte, id string) (float64, error) {
	return as[float64](c.conn.get(ctx, domain, variable, id))
}

func (c *Client) getInt(ctx context.Context, domain, variable byte, id string) (int, error) {
	v, err := as[int32](c.conn.get(ctx, domain, variable, id))
	return int(v), err
}

func (c *Client) getString(ctx context.Context, domain, variable byte, id string) (string, error) {
	return as[string](c.conn.get(ctx, domain, variable, id))
}

func (c *Client) getStringList(ctx context.Context, domain, variable byte, id string) ([]string, error) {
	return as[[]string](c.conn.get(ctx, domain, variable, id))
}

func (c *Client) LaneMeanSpeed(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varLastStepMeanSpeed, laneID)
}

func (c *Client) LaneVehicleNumber(ctx context.Context, laneID string) (int, error) {
	return c.getInt(ctx, cmdGetLaneVariable, varLastStepVehicleNumber, laneID)
}

func (c *Client) LaneLength(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varLength, laneID)
}

func (c *Client) LaneMaxSpeed(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varMaxSpeed, laneID)
}

func (c *Client) LaneFuelConsumption(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varFuelConsumption, laneID)
}

func (c *Client) LaneCO2Emission(ctx context.Context, laneID string) (float64, error) {
	return c.getDouble(ctx, cmdGetLaneVariable, varCO2Emission, laneID)
}

func (c *Client) LaneVehicleIDs(ctx context.Context, laneID string) ([]string, error) {
	return c.getStringList(ctx, cmdGetLaneVariable, varLastStepVehicleIDList, laneID)
}

func (c *Client) VehicleIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, cmdGetVehicleVariable, varIDList, "")
}

func (c *Client) VehicleSpeed(ctx context.Context, vehicleID string) (float64, error) {
	return c.getDouble(ctx, cmdGetVehicleVariable, varSpeed, vehicleID)
}

func (c *Client) VehicleLaneID(ctx context.Context, vehicleID string) (string, error) {
	return c.getString(ctx, cmdGetVehicleVariable, varLaneID, vehicleID)
}

func (c *Client) VehicleLanePosition(ctx context.Context, vehicleID string) (float64, error) {
	return c.getDouble(ctx, cmdGetVehicleVariable, varLanePosition, vehicleID)
}

func (c *Client) SetVehicleSpeed(ctx context.Context, vehicleID string, speed float64) error {
	return c.conn.set(ctx, cmdSetVehicleVariable, varSpeed, vehicleID, func(w *writer) { w.typedDouble(speed) })
}

func (c *Client) SetVehicleMaxSpeed(ctx context.Context, vehicleID string, speed float64) error {
	return c.conn.set(ctx, cmdSetVehicleVariable, varMaxSpeed, vehicleID, func(w *writer) { w.typedDouble(speed) })
}

func (c *Client) TrafficLightIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, cmdGetTLVariable, varIDList, "")
}

func (c *Client) TrafficLightState(ctx context.Context, tlID string) (string, error) {
	return c.getString(ctx, cmdGetTLVariable, varTLRedYellowGreenState, tlID)
}

func (c *Client) TrafficLightPhase(ctx context.Context, tlID string) (int, error) {
	return c.getInt(ctx, cmdGetTLVariable, varTLCurrentPhase, tlID)
}

func (c *Client) SetTrafficLightPhase(ctx context.Context, tlID string, phase int) error {
	return c.conn.set(ctx, cmdSetTLVariable, varTLPhaseIndex, tlID, func(w *writer) { w.typedInt(int32(phase)) })
}

// TrafficLightDefinition 完整信号灯程序定义
func (c *Client) TrafficLightDefinition(ctx context.Context, tlID string) ([]*mapv2.TrafficLight, error) {
	v, err := c.conn.get(ctx, cmdGetTLVariable, varTLCompleteDefinition, tlID)
	if err != nil {
		return nil, err
	}
	return decodeLogics(v)
}

// decodeLogics 解码完整定义
// 格式：compound(logic数) { compound(5) programID, type, currentPhase, compound(相位数) {
// compound(6) duration, state, minDur, maxDur, compound(next), name }, compound(参数) }
func decodeLogics(v any) ([]*mapv2.TrafficLight, error) {
	logics, err := as[[]any](v, nil)
	if err != nil {
		return nil, err
	}
	res := make([]*mapv2.TrafficLight, 0, len(logics))
	for i, l := range logics {
		logic, err := as[[]any](l, nil)
		if err != nil {
			return nil, err
		}
		if len(logic) < 4 {
			return nil, fmt.Errorf("%w: logic %d has %d fields", ErrUnexpected, i, len(logic))
		}
		phases, err := as[[]any](logic[3], nil)
		if err != nil {
			return nil, err
		}
		tl := &mapv2.TrafficLight{JunctionId: -1, Phases: make([]*mapv2.Phase, 0, len(phases))}
		for j, p := range phases {
			phase, err := as[[]any](p, nil)
			if err != nil {
				return nil, err
			}
			if len(phase) < 2 {
				return nil, fmt.Errorf("%w: logic %d phase %d has %d fields", ErrUnexpected, i, j, len(phase))
			}
			duration, err := as[float64](phase[0], nil)
			if err != nil {
				return nil, err
			}
			state, err := as[string](phase[1], nil)
			if err != nil {
				return nil, err
			}
			states, err := trafficlight.ParseState(state)
			if err != nil {
				return nil, err
			}
			tl.Phases = append(tl.Phases, &mapv2.Phase{Duration: duration, States: states})
		}
		res = append(res, tl)
	}
	return res, nil
}

// SimulationStep 推进一步
// 说明：参数0表示推进一个步长，响应在状态之后附带订阅结果数（未使用订阅）
func (c *Client) SimulationStep(ctx context.Context) error {
	var w writer
	w.double(0)
	r, err := c.conn.roundTrip(ctx, cmdSimStep, command(cmdSimStep, w.bytes()))
	if err != nil {
		return fmt.Errorf("simulation step: %w", err)
	}
	if _, err := r.int(); err != nil {
		return fmt.Errorf("simulation step: %w", err)
	}
	return nil
}

func (c *Client) CollidingVehicleIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, cmdGetSimulationVariable, varCollidingVehicleIDs, "")
}

// Time 当前仿真时间（秒）
func (c *Client) Time(ctx context.Context) (float64, error) {
	return c.getDouble(ctx, cmdGetSimulationVariable, varTime, "")
}

func (c *Client) DeltaT() float64 {
	return c.dt
}

// Reset 使用load命令重新加载仿真
func (c *Client) Reset(ctx context.Context) error {
	if len(c.loadArgs) == 0 {
		return fmt.Errorf("%w: no load arguments for reset", ErrCommandFailed)
	}
	var w writer
	w.typedStringList(c.loadArgs)
	if _, err := c.conn.roundTrip(ctx, cmdLoad, command(cmdLoad, w.bytes())); err != nil {
		return fmt.Errorf("reload simulation: %w", err)
	}
	log.Debugf("simulation reloaded with %v", c.loadArgs)
	return nil
}

// Close 发送close命令并断开连接，由Launch启动的SUMO进程会被等待退出
func (c *Client) Close() error {
	_, err := c.conn.roundTrip(context.Background(), cmdClose, command(cmdClose, nil))
	if cerr := c.conn.close(); err == nil {
		err = cerr
	}
	if c.process != nil {
		if werr := c.process.Wait(); err == nil && werr != nil {
			err = werr
		}
	}
	return err
}
