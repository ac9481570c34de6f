package session

import "github.com/vctt94/pokertablesync/pkg/statemachine"

// ConnState is the state of the streaming connection.
type ConnState string

const (
	StateDisconnected     ConnState = "disconnected"
	StateConnecting       ConnState = "connecting"
	StateLive             ConnState = "live"
	StateSyncingSnapshot  ConnState = "syncing_snapshot"
	StateReconnectBackoff ConnState = "reconnect_backoff"
)

// Transitions is the complete table of legal connection state changes.
var Transitions = map[ConnState][]ConnState{
	StateDisconnected:     {StateConnecting},
	StateConnecting:       {StateLive, StateReconnectBackoff, StateDisconnected},
	StateLive:             {StateSyncingSnapshot, StateReconnectBackoff, StateDisconnected},
	StateSyncingSnapshot:  {StateLive, StateReconnectBackoff, StateDisconnected},
	StateReconnectBackoff: {StateConnecting, StateDisconnected},
}

func newConnFSM() *statemachine.StateMachine[ConnState] {
	return statemachine.NewStateMachine(StateDisconnected, Transitions)
}
