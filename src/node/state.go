package node

import (
	"sync/atomic"
)

// State captures the state of a node: Waiting, Gossiping, or Shutdown
type State uint32

const (
	// Waiting is the initial state: the node does not know its id or the
	// other nodes yet, and only answers init.
	Waiting State = iota
	// Gossiping is the steady state.
	Gossiping
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Gossiping:
		return "Gossiping"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

func (b *state) casState(old, s State) bool {
	stateAddr := (*uint32)(&b.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(old), uint32(s))
}
