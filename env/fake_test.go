package env_test

import (
	"context"
	"errors"
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"github.com/tsinghua-fib-lab/moss-rl-env/utils/config"
)

var errFake = errors.New("fake simulator failure")

type fakeLane struct {
	speed, length, maxSpeed, fuel, co2 float64
	vehicles                           []string
}

type fakeVehicle struct {
	lane string
	s, v float64
}

// fakeSim 按脚本返回检测值的模拟器
type fakeSim struct {
	dt        float64
	lanes     map[string]*fakeLane
	vehicles  map[string]*fakeVehicle
	colliding []string
	phases    int
	failLane  string
	onStep    func(s *fakeSim)

	steps, resets int
	setPhases     []int
	speeds        map[string]float64
	maxSpeeds     map[string]float64
}

func newFakeSim(locations ...[]string) *fakeSim {
	s := &fakeSim{
		dt:        0.5,
		lanes:     make(map[string]*fakeLane),
		vehicles:  make(map[string]*fakeVehicle),
		phases:    4,
		speeds:    make(map[string]float64),
		maxSpeeds: make(map[string]float64),
	}
	for _, loc := range lo.Flatten(locations) {
		s.lanes[loc] = &fakeLane{speed: 10, length: 100, maxSpeed: 11.176}
	}
	return s
}

func newIntersectionSim() *fakeSim {
	return newFakeSim(env.SoftInflowLocations, env.SoftOutflowLocations,
		env.HardInflowLocations, env.HardOutflowLocations, lo.Flatten(env.HardCommandGroups()))
}

func (s *fakeSim) lane(id string) (*fakeLane, error) {
	if id == s.failLane {
		return nil, errFake
	}
	l, ok := s.lanes[id]
	if !ok {
		return nil, fmt.Errorf("lane %s: %w", id, errFake)
	}
	return l, nil
}

func (s *fakeSim) vehicle(id string) (*fakeVehicle, error) {
	v, ok := s.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %s: %w", id, errFake)
	}
	return v, nil
}

// place 把车辆放到车道上
func (s *fakeSim) place(laneID string, ids ...string) {
	l := s.lanes[laneID]
	for _, id := range ids {
		l.vehicles = append(l.vehicles, id)
		s.vehicles[id] = &fakeVehicle{lane: laneID}
	}
}

func (s *fakeSim) LaneMeanSpeed(_ context.Context, id string) (float64, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return l.speed, nil
}

func (s *fakeSim) LaneVehicleNumber(_ context.Context, id string) (int, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return len(l.vehicles), nil
}

func (s *fakeSim) LaneLength(_ context.Context, id string) (float64, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return l.length, nil
}

func (s *fakeSim) LaneMaxSpeed(_ context.Context, id string) (float64, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return l.maxSpeed, nil
}

func (s *fakeSim) LaneFuelConsumption(_ context.Context, id string) (float64, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return l.fuel, nil
}

func (s *fakeSim) LaneCO2Emission(_ context.Context, id string) (float64, error) {
	l, err := s.lane(id)
	if err != nil {
		return 0, err
	}
	return l.co2, nil
}

func (s *fakeSim) LaneVehicleIDs(_ context.Context, id string) ([]string, error) {
	l, err := s.lane(id)
	if err != nil {
		return nil, err
	}
	return l.vehicles, nil
}

func (s *fakeSim) VehicleIDs(context.Context) ([]string, error) {
	return lo.Keys(s.vehicles), nil
}

func (s *fakeSim) VehicleSpeed(_ context.Context, id string) (float64, error) {
	v, err := s.vehicle(id)
	if err != nil {
		return 0, err
	}
	return v.v, nil
}

func (s *fakeSim) VehicleLaneID(_ context.Context, id string) (string, error) {
	v, err := s.vehicle(id)
	if err != nil {
		return "", err
	}
	return v.lane, nil
}

func (s *fakeSim) VehicleLanePosition(_ context.Context, id string) (float64, error) {
	v, err := s.vehicle(id)
	if err != nil {
		return 0, err
	}
	return v.s, nil
}

func (s *fakeSim) SetVehicleSpeed(_ context.Context, id string, speed float64) error {
	if _, err := s.vehicle(id); err != nil {
		return err
	}
	s.speeds[id] = speed
	return nil
}

func (s *fakeSim) SetVehicleMaxSpeed(_ context.Context, id string, speed float64) error {
	if _, err := s.vehicle(id); err != nil {
		return err
	}
	s.maxSpeeds[id] = speed
	return nil
}

func (s *fakeSim) TrafficLightIDs(context.Context) ([]string, error) {
	if s.phases == 0 {
		return nil, nil
	}
	return []string{"center"}, nil
}

func (s *fakeSim) TrafficLightState(context.Context, string) (string, error) {
	return "GGGGrrrr", nil
}

func (s *fakeSim) TrafficLightDefinition(context.Context, string) ([]*mapv2.TrafficLight, error) {
	return []*mapv2.TrafficLight{{
		Phases: lo.Times(s.phases, func(int) *mapv2.Phase { return &mapv2.Phase{Duration: 30} }),
	}}, nil
}

func (s *fakeSim) TrafficLightPhase(context.Context, string) (int, error) {
	if len(s.setPhases) == 0 {
		return 0, nil
	}
	return s.setPhases[len(s.setPhases)-1], nil
}

func (s *fakeSim) SetTrafficLightPhase(_ context.Context, _ string, phase int) error {
	s.setPhases = append(s.setPhases, phase)
	return nil
}

// SimulationStep 已设定的速度直接生效
func (s *fakeSim) SimulationStep(context.Context) error {
	s.steps++
	for id, v := range s.speeds {
		if veh, ok := s.vehicles[id]; ok {
			veh.v = v
			veh.s += v * s.dt
		}
	}
	if s.onStep != nil {
		s.onStep(s)
	}
	return nil
}

func (s *fakeSim) CollidingVehicleIDs(context.Context) ([]string, error) {
	return s.colliding, nil
}

func (s *fakeSim) DeltaT() float64 {
	return s.dt
}

func (s *fakeSim) Reset(context.Context) error {
	s.resets++
	return nil
}

func (s *fakeSim) Close() error {
	return nil
}

func testConfig(name string) config.Config {
	c := config.Default()
	c.Env.Name = name
	c.Env.AdditionalParams = config.DefaultAdditionalParams()
	c.Control.Step.Horizon = 20
	c.Control.Step.Warmup = 0
	return c
}
