package checkout

import (
	"fmt"
)

// State is a coordinator state.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateTerminal State = "terminal"
)

func (s State) Name() string { return string(s) }

type event string

const (
	eventStart   event = "start"
	eventResolve event = "resolve"
	eventClear   event = "clear"
	eventCancel  event = "cancel"
)

// input carries the data of one fired event. Actions append side effects to
// effects; they run after the coordinator lock is released.
type input struct {
	run     *run
	seq     uint64
	outcome outcome
	reason  string
	effects []func()
}

type (
	guard  func(c *Coordinator, in *input) bool
	action func(c *Coordinator, in *input)
)

type transition struct {
	from    State
	event   event
	to      State
	guards  []guard
	actions []action
}

// transitions is scanned in order; the first entry whose guards pass wins.
var transitions = []transition{
	{from: StateIdle, event: eventStart, to: StatePending, actions: []action{begin}},
	{from: StateTerminal, event: eventStart, to: StatePending, actions: []action{begin}},
	{from: StatePending, event: eventStart, to: StatePending, guards: []guard{differentPlan}, actions: []action{supersede, begin}},
	{from: StatePending, event: eventResolve, to: StateTerminal, guards: []guard{isCurrent}, actions: []action{settle}},
	{from: StateTerminal, event: eventClear, to: StateIdle, guards: []guard{isCurrent}, actions: []action{release}},
	{from: StatePending, event: eventCancel, to: StateIdle, actions: []action{abandon}},
}

// fire must be called with c.mu held.
func (c *Coordinator) fire(ev event, in *input) error {
	matched := false
	for _, t := range transitions {
		if t.from != c.state || t.event != ev {
			continue
		}
		matched = true
		if !passes(c, in, t.guards) {
			continue
		}
		for _, a := range t.actions {
			a(c, in)
		}
		c.state = t.to
		return nil
	}
	if matched {
		return fmt.Errorf("%w: %s on %s", ErrTransitionRejected, ev, c.state)
	}
	return fmt.Errorf("%w: %s on %s", ErrNoTransition, ev, c.state)
}

func passes(c *Coordinator, in *input, guards []guard) bool {
	for _, g := range guards {
		if !g(c, in) {
			return false
		}
	}
	return true
}

func differentPlan(c *Coordinator, in *input) bool {
	return c.current != nil && c.current.attempt.PlanID != in.run.attempt.PlanID
}

// isCurrent is the stale-resolution guard.
func isCurrent(c *Coordinator, in *input) bool {
	return c.current != nil && c.current.attempt.Seq == in.seq
}
