package server

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/moss-rl-env/env"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrBadPayload = errors.New("bad payload")

// number JSON无法表示非有限值，以字符串"inf"、"-inf"、"nan"编码
func number(x float64) *structpb.Value {
	switch {
	case math.IsInf(x, 1):
		return structpb.NewStringValue("inf")
	case math.IsInf(x, -1):
		return structpb.NewStringValue("-inf")
	case math.IsNaN(x):
		return structpb.NewStringValue("nan")
	}
	return structpb.NewNumberValue(x)
}

// toNumber number的逆变换
func toNumber(v *structpb.Value) (float64, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return k.NumberValue, true
	case *structpb.Value_StringValue:
		x, err := strconv.ParseFloat(k.StringValue, 64)
		if err != nil || !(math.IsInf(x, 0) || math.IsNaN(x)) {
			return 0, false
		}
		return x, true
	}
	return 0, false
}

func numbers(xs []float64) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{
		Values: lo.Map(xs, func(x float64, _ int) *structpb.Value { return number(x) }),
	})
}

func boxValue(b env.Box) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"low":  numbers(b.Low),
		"high": numbers(b.High),
	}})
}

// field 取出必需字段
func field(s *structpb.Struct, name string) (*structpb.Value, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty body", ErrBadPayload)
	}
	v, ok := s.Fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrBadPayload, name)
	}
	return v, nil
}

func toNumbers(v *structpb.Value, name string) ([]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: field %q is not a list", ErrBadPayload, name)
	}
	res := make([]float64, len(list.Values))
	for i, x := range list.Values {
		n, ok := toNumber(x)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not a number", ErrBadPayload, name, i)
		}
		res[i] = n
	}
	return res, nil
}

func numbersField(s *structpb.Struct, name string) ([]float64, error) {
	v, err := field(s, name)
	if err != nil {
		return nil, err
	}
	return toNumbers(v, name)
}

func toBox(s *structpb.Struct, name string) (env.Box, error) {
	v, err := field(s, name)
	if err != nil {
		return env.Box{}, err
	}
	low, err := numbersField(v.GetStructValue(), "low")
	if err != nil {
		return env.Box{}, err
	}
	high, err := numbersField(v.GetStructValue(), "high")
	if err != nil {
		return env.Box{}, err
	}
	if len(low) != len(high) {
		return env.Box{}, fmt.Errorf("%w: %s bounds of %d and %d values", ErrBadPayload, name, len(low), len(high))
	}
	return env.Box{Low: low, High: high}, nil
}

// stepResultStruct {observation, reward, done, step, info}
func stepResultStruct(r env.StepResult) *structpb.Struct {
	info := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(r.Info))}
	for k, v := range r.Info {
		info.Fields[k] = number(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"observation": numbers(r.Observation),
		"reward":      number(r.Reward),
		"done":        structpb.NewBoolValue(r.Done),
		"step":        number(r.Info["step"]),
		"info":        structpb.NewStructValue(info),
	}}
}

func toStepResult(s *structpb.Struct) (env.StepResult, error) {
	obs, err := numbersField(s, "observation")
	if err != nil {
		return env.StepResult{}, err
	}
	reward, err := field(s, "reward")
	if err != nil {
		return env.StepResult{}, err
	}
	done, err := field(s, "done")
	if err != nil {
		return env.StepResult{}, err
	}
	info := make(map[string]float64)
	if v, ok := s.Fields["info"]; ok {
		for k, x := range v.GetStructValue().GetFields() {
			info[k], _ = toNumber(x)
		}
	}
	r, ok := toNumber(reward)
	if !ok {
		return env.StepResult{}, fmt.Errorf("%w: reward is not a number", ErrBadPayload)
	}
	return env.StepResult{
		Observation: obs,
		Reward:      r,
		Done:        done.GetBoolValue(),
		Info:        info,
	}, nil
}
