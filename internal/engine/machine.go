package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/gateway"
)

// Policy holds the named behavior knobs of a flow.
type Policy struct {
	// TrustNewAccounts marks freshly created accounts verified without an
	// OTP challenge: the user just proved the channels by supplying them.
	// Disabling it routes creation through the OTP sub-machine.
	TrustNewAccounts bool
	// OTPMaxAttempts bounds invalid-code retries per verification session.
	OTPMaxAttempts int
	// ActorTimeout bounds every remote actor invocation.
	ActorTimeout time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{TrustNewAccounts: true, OTPMaxAttempts: 5, ActorTimeout: 30 * time.Second}
}

func (p Policy) withDefaults() Policy {
	if p.OTPMaxAttempts <= 0 {
		p.OTPMaxAttempts = 5
	}
	if p.ActorTimeout <= 0 {
		p.ActorTimeout = 30 * time.Second
	}
	return p
}

var (
	// ErrNoTransition is returned when no active state handles the event or
	// no guard passes.
	ErrNoTransition = errors.New("no transition matched")
	// ErrTerminal is returned for events sent to a terminal state.
	ErrTerminal = errors.New("machine is in a terminal state")
)

// TransitionHook observes committed transitions. The context is a snapshot;
// hooks must not retain it across calls expecting live state.
type TransitionHook func(leaf StateID, ctx *session.Context)

// Machine executes one flow definition for one session. All context writes
// are serialized through Send; exactly one leaf state is active at any time.
type Machine struct {
	mu   sync.Mutex
	cond *sync.Cond

	def    *Definition
	policy Policy
	gw     gateway.Gateway
	sctx   *session.Context
	state  StateID
	logger zerolog.Logger

	hooks   []TransitionHook
	catalog *gateway.Catalog

	gens    map[string]uint64
	cancels map[string]context.CancelFunc
	pending int
	started bool
}

// New creates a machine over a validated definition.
func New(def *Definition, gw gateway.Gateway, sctx *session.Context, policy Policy, logger zerolog.Logger) *Machine {
	m := &Machine{
		def:     def,
		policy:  policy.withDefaults(),
		gw:      gw,
		sctx:    sctx,
		logger:  logger.With().Str("service", "engine").Str("flow", def.Name).Str("session_id", sctx.SessionID.String()).Logger(),
		gens:    make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// OnTransition registers a hook called after every committed transition.
// Hooks registered after Start are not supported.
func (m *Machine) OnTransition(hook TransitionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Start enters the initial state and runs any entry passthroughs.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("machine already started")
	}
	m.started = true
	leaf, err := m.def.leafOf(m.def.Initial)
	if err != nil {
		return err
	}
	m.state = leaf
	m.logger.Info().Str("state", string(leaf)).Msg("machine started")
	if err := m.runPassthroughs(); err != nil {
		return err
	}
	m.notify()
	return nil
}

// State returns the active leaf path.
func (m *Machine) State() StateID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Context returns a snapshot of the session context.
func (m *Machine) Context() *session.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sctx.Clone()
}

// Catalog returns the loaded catalog, nil before load completes. Takes the
// lock; actions read through LiveCatalog instead.
func (m *Machine) Catalog() *gateway.Catalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog
}

// LiveCatalog exposes the catalog to transition actions. Like Session, it
// runs under the dispatch lock already held; never call it outside a
// transition.
func (m *Machine) LiveCatalog() *gateway.Catalog { return m.catalog }

// SetCatalog stores the loaded catalog. Called from transition actions.
func (m *Machine) SetCatalog(c *gateway.Catalog) { m.catalog = c }

// Gateway exposes the remote actor gateway to transition actions.
func (m *Machine) Gateway() gateway.Gateway { return m.gw }

// Policy exposes the flow policy to transition actions.
func (m *Machine) Policy() Policy { return m.policy }

// Session exposes the live context to transition actions. Never hand it to
// code outside a transition.
func (m *Machine) Session() *session.Context { return m.sctx }

// Send dispatches a domain event. It returns ErrNoTransition when nothing
// handles the event, and the action's error when a transition aborts.
func (m *Machine) Send(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errors.New("machine not started")
	}
	return m.dispatch(ev)
}

// dispatch runs with the lock held.
func (m *Machine) dispatch(ev Event) error {
	if st := m.def.States[m.state]; st != nil && st.Terminal {
		return ErrTerminal
	}

	// The leaf handles the event if it can, then each ancestor in turn, so
	// at most one active state handles any event.
	for s := m.state; s != ""; s = m.def.Parent(s) {
		rows, ok := m.def.Transitions[TransitionKey{State: s, Event: ev.Type}]
		if !ok {
			continue
		}
		return m.fire(rows, ev)
	}

	if rows, ok := m.def.Globals[ev.Type]; ok {
		return m.fire(rows, ev)
	}

	m.logger.Debug().Str("state", string(m.state)).Str("event", string(ev.Type)).Msg("event not handled")
	return ErrNoTransition
}

// fire evaluates rows in order and commits the first whose guard passes.
func (m *Machine) fire(rows []Transition, ev Event) error {
	params := guardParams(m.sctx, m.policy, ev)
	for _, t := range rows {
		ok, err := EvaluateGuard(t.Guard, params)
		if err != nil {
			m.logger.Warn().Err(err).Str("guard", t.Guard).Msg("guard evaluation failed; skipping row")
			continue
		}
		if !ok {
			continue
		}
		return m.commit(t, ev)
	}
	return ErrNoTransition
}

func (m *Machine) commit(t Transition, ev Event) error {
	// A successful transition out of a state clears its error message.
	m.sctx.ClearError()

	if t.Action != nil {
		if err := t.Action(m, ev); err != nil {
			// Recoverable-local: stay put, surface the message.
			m.sctx.SetError(err.Error())
			return err
		}
	}

	from := m.state
	if t.Target != "" {
		leaf, err := m.def.leafOf(t.Target)
		if err != nil {
			return err
		}
		m.state = leaf
	}
	m.logger.Info().
		Str("from", string(from)).
		Str("to", string(m.state)).
		Str("event", string(ev.Type)).
		Msg("transition")

	if err := m.runPassthroughs(); err != nil {
		return err
	}
	m.notify()
	return nil
}

// runPassthroughs advances through decision pseudo-states until the machine
// rests on a waiting leaf. Bounded to catch definition cycles.
func (m *Machine) runPassthroughs() error {
	for i := 0; i < 16; i++ {
		st := m.def.States[m.state]
		if st == nil || !st.Passthrough {
			return nil
		}
		ev := Event{Type: Advance}
		rows := m.def.Transitions[TransitionKey{State: m.state, Event: Advance}]
		params := guardParams(m.sctx, m.policy, ev)
		fired := false
		for _, t := range rows {
			ok, err := EvaluateGuard(t.Guard, params)
			if err != nil {
				m.logger.Warn().Err(err).Str("guard", t.Guard).Msg("advance guard failed; skipping row")
				continue
			}
			if !ok {
				continue
			}
			if t.Action != nil {
				if err := t.Action(m, ev); err != nil {
					m.sctx.SetError(err.Error())
					return err
				}
			}
			if t.Target != "" {
				leaf, err := m.def.leafOf(t.Target)
				if err != nil {
					return err
				}
				from := m.state
				m.state = leaf
				m.logger.Info().Str("from", string(from)).Str("to", string(leaf)).Msg("passthrough advance")
			}
			fired = true
			break
		}
		if !fired {
			return fmt.Errorf("passthrough state %q made no decision", m.state)
		}
		if m.def.States[m.state] == st {
			// internal advance; nothing left to decide
			return nil
		}
	}
	return errors.New("passthrough chain exceeded depth limit")
}

// notify runs transition hooks with a context snapshot.
func (m *Machine) notify() {
	if len(m.hooks) == 0 {
		return
	}
	leaf := m.state
	snap := m.sctx.Clone()
	for _, hook := range m.hooks {
		hook(leaf, snap)
	}
}

// Invoke starts a remote actor call without blocking the machine. The call
// runs under a bounded deadline; its settlement re-enters the machine as an
// internal event. Re-invoking the same actor cancels the predecessor, and a
// stale settlement is discarded.
func (m *Machine) Invoke(actor string, call func(ctx context.Context) (interface{}, error)) {
	m.gens[actor]++
	gen := m.gens[actor]
	if cancel := m.cancels[actor]; cancel != nil {
		cancel()
	}
	cctx, cancel := context.WithTimeout(context.Background(), m.policy.ActorTimeout)
	m.cancels[actor] = cancel
	m.pending++
	m.logger.Debug().Str("actor", actor).Uint64("gen", gen).Msg("actor invoked")

	go func() {
		result, err := call(cctx)
		cancel()
		m.settle(actor, gen, result, err)
	}()
}

func (m *Machine) settle(actor string, gen uint64, result interface{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if m.pending == 0 {
		m.cond.Broadcast()
	}
	if m.gens[actor] != gen {
		m.logger.Debug().Str("actor", actor).Uint64("gen", gen).Msg("stale actor settlement discarded")
		return
	}
	ev := Event{Actor: actor, Result: result, Err: err}
	if err != nil {
		ev.Type = ActorFailed(actor)
	} else {
		ev.Type = ActorDone(actor)
	}
	if derr := m.dispatch(ev); derr != nil && !errors.Is(derr, ErrNoTransition) && !errors.Is(derr, ErrTerminal) {
		m.logger.Warn().Err(derr).Str("actor", actor).Msg("actor settlement dispatch failed")
	}
}

// WaitIdle blocks until no actor invocation is pending or ctx is done.
func (m *Machine) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	abandoned := false
	go func() {
		m.mu.Lock()
		for m.pending > 0 && !abandoned {
			m.cond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		abandoned = true
		m.mu.Unlock()
		m.cond.Broadcast()
		return ctx.Err()
	}
}

// Stop cancels all in-flight actors.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for actor, cancel := range m.cancels {
		cancel()
		delete(m.cancels, actor)
		m.gens[actor]++
	}
}
