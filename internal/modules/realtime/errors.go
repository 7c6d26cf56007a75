package realtime

import "errors"

var (
	ErrAlreadyConnected = errors.New("realtime manager already running")
	ErrHeartbeatTimeout = errors.New("heartbeat pong not received in time")
)
