package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a run skips or repeats a stage.
var ErrInvalidTransition = errors.New("invalid pipeline transition")

// State is a stage of a query run. Runs move strictly forward through the
// states in declaration order.
type State int

const (
	StateLoaded State = iota
	StateEmbedded
	StateScored
	StateAggregated
	StateFiltered
	StateRanked
	StateDone
)

var stateNames = [...]string{"loaded", "embedded", "scored", "aggregated", "filtered", "ranked", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// run tracks the current state of one query.
type run struct {
	state   State
	trail   []State
	onEnter func(State)
}

func newRun(onEnter func(State)) *run {
	r := &run{state: StateLoaded, trail: []State{StateLoaded}, onEnter: onEnter}
	if onEnter != nil {
		onEnter(StateLoaded)
	}
	return r
}

// advance moves to next, which must directly follow the current state.
func (r *run) advance(next State) error {
	if next != r.state+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	r.trail = append(r.trail, next)
	if r.onEnter != nil {
		r.onEnter(next)
	}
	return nil
}
