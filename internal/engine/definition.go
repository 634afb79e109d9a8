// Package engine implements a hierarchical state machine driven by a
// declarative transition table. Flow definitions are data: states with
// parent/child structure, guarded transitions, and actions that mutate the
// session context or invoke remote actors.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// StateID identifies a state. Nested states use dotted paths
// ("guest.otp.enteringCode"); the path encodes the ancestor chain.
type StateID string

// EventType names a machine input.
type EventType string

// Advance is the internal event evaluated on entry to passthrough states.
const Advance EventType = "__advance__"

// ActorDone is the settlement event for a successful actor invocation.
func ActorDone(actor string) EventType { return EventType("__done__:" + actor) }

// ActorFailed is the settlement event for a failed actor invocation.
func ActorFailed(actor string) EventType { return EventType("__failed__:" + actor) }

// State describes one node of the topology.
type State struct {
	ID StateID
	// Parent is empty for top-level states.
	Parent StateID
	// Initial is the child entered when this composite state is targeted.
	Initial StateID
	// Passthrough states evaluate their Advance transitions immediately on
	// entry instead of waiting for an event. The last Advance transition
	// must be guardless so the decision is total.
	Passthrough bool
	// Terminal states accept no events, not even globals.
	Terminal bool

	children []StateID
}

// ActionFunc mutates the session context during a transition. A non-nil
// error aborts the transition: the state is unchanged and the error message
// becomes the context's visible error.
type ActionFunc func(m *Machine, ev Event) error

// Transition is one row of the table. An empty Target keeps the current
// state (internal transition).
type Transition struct {
	Guard  string
	Target StateID
	Action ActionFunc
}

// TransitionKey addresses the transitions of one state/event pair.
type TransitionKey struct {
	State StateID
	Event EventType
}

// Definition is a built, read-only machine topology.
type Definition struct {
	Name        string
	Initial     StateID
	States      map[StateID]*State
	Transitions map[TransitionKey][]Transition
	Globals     map[EventType][]Transition
}

// Parent returns the parent state id of s, or "" at the top.
func (d *Definition) Parent(s StateID) StateID {
	st := d.States[s]
	if st == nil {
		return ""
	}
	return st.Parent
}

// leafOf descends through initial children until it reaches a leaf.
func (d *Definition) leafOf(s StateID) (StateID, error) {
	seen := 0
	for {
		st := d.States[s]
		if st == nil {
			return "", fmt.Errorf("unknown state %q", s)
		}
		if st.Initial == "" {
			return s, nil
		}
		s = st.Initial
		seen++
		if seen > 32 {
			return "", fmt.Errorf("initial-child chain too deep at %q", s)
		}
	}
}

// Validate checks the topology: the initial state resolves to a leaf, every
// transition source and target exists, composite initials are children of
// their composite, passthrough decisions are total, and every state is
// reachable.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("definition name is required")
	}
	if d.Initial == "" {
		return errors.New("initial state is required")
	}
	if len(d.States) == 0 {
		return errors.New("states are required")
	}

	for id, st := range d.States {
		if id != st.ID {
			return fmt.Errorf("state %q registered under key %q", st.ID, id)
		}
		if st.Parent != "" {
			parent := d.States[st.Parent]
			if parent == nil {
				return fmt.Errorf("state %q: unknown parent %q", id, st.Parent)
			}
			if !strings.HasPrefix(string(id), string(st.Parent)+".") {
				return fmt.Errorf("state %q: id must be prefixed by parent %q", id, st.Parent)
			}
		}
		if st.Initial != "" {
			child := d.States[st.Initial]
			if child == nil {
				return fmt.Errorf("state %q: unknown initial child %q", id, st.Initial)
			}
			if child.Parent != id {
				return fmt.Errorf("state %q: initial %q is not a child", id, st.Initial)
			}
		}
		if len(st.children) > 0 && st.Initial == "" {
			return fmt.Errorf("composite state %q has no initial child", id)
		}
	}

	if _, err := d.leafOf(d.Initial); err != nil {
		return fmt.Errorf("initial: %w", err)
	}

	for key, transitions := range d.Transitions {
		if d.States[key.State] == nil {
			return fmt.Errorf("transition source %q does not exist", key.State)
		}
		if d.States[key.State].Terminal {
			return fmt.Errorf("terminal state %q has outgoing transitions", key.State)
		}
		for i, t := range transitions {
			if t.Target != "" && d.States[t.Target] == nil {
				return fmt.Errorf("transition %q/%q[%d]: unknown target %q", key.State, key.Event, i, t.Target)
			}
		}
	}
	for ev, transitions := range d.Globals {
		for i, t := range transitions {
			if t.Target != "" && d.States[t.Target] == nil {
				return fmt.Errorf("global %q[%d]: unknown target %q", ev, i, t.Target)
			}
		}
	}

	for id, st := range d.States {
		if !st.Passthrough {
			continue
		}
		rows := d.Transitions[TransitionKey{State: id, Event: Advance}]
		if len(rows) == 0 {
			return fmt.Errorf("passthrough state %q has no advance transitions", id)
		}
		if rows[len(rows)-1].Guard != "" {
			return fmt.Errorf("passthrough state %q: final advance transition must be unconditional", id)
		}
	}

	return d.checkReachability()
}

// checkReachability flags states that can never become active: not on the
// initial entry path and not targeted by any transition.
func (d *Definition) checkReachability() error {
	reach := make(map[StateID]bool, len(d.States))
	var mark func(StateID)
	mark = func(s StateID) {
		for s != "" && !reach[s] {
			reach[s] = true
			st := d.States[s]
			if st == nil {
				return
			}
			if st.Initial != "" {
				mark(st.Initial)
			}
			s = st.Parent
		}
	}

	mark(d.Initial)
	for _, transitions := range d.Globals {
		for _, t := range transitions {
			if t.Target != "" {
				mark(t.Target)
			}
		}
	}
	for changed := true; changed; {
		changed = false
		for key, transitions := range d.Transitions {
			if !reach[key.State] {
				continue
			}
			for _, t := range transitions {
				if t.Target != "" && !reach[t.Target] {
					mark(t.Target)
					changed = true
				}
			}
		}
	}

	for id := range d.States {
		if !reach[id] {
			return fmt.Errorf("state %q is unreachable", id)
		}
	}
	return nil
}

// Builder assembles a Definition. The first error sticks and is returned by
// Build.
type Builder struct {
	def *Definition
	err error
}

// NewDefinition starts a builder.
func NewDefinition(name string, initial StateID) *Builder {
	return &Builder{def: &Definition{
		Name:        name,
		Initial:     initial,
		States:      make(map[StateID]*State),
		Transitions: make(map[TransitionKey][]Transition),
		Globals:     make(map[EventType][]Transition),
	}}
}

// StateOption configures a state at registration.
type StateOption func(*State)

// WithParent nests the state under a composite parent.
func WithParent(parent StateID) StateOption {
	return func(s *State) { s.Parent = parent }
}

// WithInitial marks the composite's entry child.
func WithInitial(child StateID) StateOption {
	return func(s *State) { s.Initial = child }
}

// AsPassthrough marks a decision pseudo-state.
func AsPassthrough() StateOption {
	return func(s *State) { s.Passthrough = true }
}

// AsTerminal marks a dead-end state.
func AsTerminal() StateOption {
	return func(s *State) { s.Terminal = true }
}

// State registers a state.
func (b *Builder) State(id StateID, opts ...StateOption) *Builder {
	if b.err != nil {
		return b
	}
	if _, dup := b.def.States[id]; dup {
		b.err = fmt.Errorf("duplicate state %q", id)
		return b
	}
	st := &State{ID: id}
	for _, opt := range opts {
		opt(st)
	}
	b.def.States[id] = st
	return b
}

// On appends a transition row for a state/event pair. Rows are evaluated in
// declaration order; the first row whose guard passes fires.
func (b *Builder) On(state StateID, ev EventType, t Transition) *Builder {
	if b.err != nil {
		return b
	}
	key := TransitionKey{State: state, Event: ev}
	b.def.Transitions[key] = append(b.def.Transitions[key], t)
	return b
}

// Global appends a cross-cutting transition handled when no active state
// claims the event.
func (b *Builder) Global(ev EventType, t Transition) *Builder {
	if b.err != nil {
		return b
	}
	b.def.Globals[ev] = append(b.def.Globals[ev], t)
	return b
}

// Build finalizes and validates the definition.
func (b *Builder) Build() (*Definition, error) {
	if b.err != nil {
		return nil, b.err
	}
	for id, st := range b.def.States {
		if st.Parent != "" {
			parent := b.def.States[st.Parent]
			if parent == nil {
				return nil, fmt.Errorf("state %q: unknown parent %q", id, st.Parent)
			}
			parent.children = append(parent.children, id)
		}
	}
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return b.def, nil
}
