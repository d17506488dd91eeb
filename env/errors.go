package env

import "errors"

var (
	ErrObservationSize = errors.New("observation size mismatch")
	ErrActionSize      = errors.New("action size mismatch")
	ErrBadLaneLength   = errors.New("lane length must be positive")
	ErrNoTrafficLight  = errors.New("no traffic light in simulation")
	ErrEpisodeDone     = errors.New("episode is done, call Reset first")
	ErrNotReset        = errors.New("env is not reset")
	ErrUnknownEnv      = errors.New("unknown env name")
)
