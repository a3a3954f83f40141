package evidence

import (
	"slices"
	"strings"
)

// State is a runtime state flag of an evidence.
type State string

const (
	StateMounted          State = "MOUNTED"
	StateAttached         State = "ATTACHED"
	StateDecompressed     State = "DECOMPRESSED"
	StateContainerMounted State = "CONTAINER_MOUNTED"
)

// AllStates returns the closed set of state flags in the canonical order.
func AllStates() []State {
	return []State{StateMounted, StateAttached, StateDecompressed, StateContainerMounted}
}

// StateMap always contains all flags, see newStateMap.
type StateMap map[State]bool

func newStateMap() StateMap {
	m := make(StateMap, 4)
	for _, s := range AllStates() {
		m[s] = false
	}
	return m
}

// ParseState converts a string to the State, the match is case-insensitive.
func ParseState(s string) (State, bool) {
	for _, state := range AllStates() {
		if strings.EqualFold(string(state), s) {
			return state, true
		}
	}
	return "", false
}

func containsState(states []State, s State) bool {
	return slices.Contains(states, s)
}
