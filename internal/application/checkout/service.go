// Package checkout owns the live checkout sessions: it boots one state
// machine per session, persists its position after every transition and fans
// state changes out to stream subscribers.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orderflow/orderflow/internal/domain/session"
	"github.com/orderflow/orderflow/internal/engine"
	"github.com/orderflow/orderflow/internal/flows"
	"github.com/orderflow/orderflow/internal/gateway"
	"github.com/orderflow/orderflow/internal/infrastructure/sse"
	"github.com/orderflow/orderflow/internal/persist"
)

// ErrSessionNotFound is returned for ids with no live machine.
var ErrSessionNotFound = errors.New("session not found")

// SessionView is the read model handed to API clients.
type SessionView struct {
	SessionID string           `json:"sessionId"`
	Flow      string           `json:"flow"`
	State     string           `json:"state"`
	Context   *session.Context `json:"context"`
	Catalog   *gateway.Catalog `json:"catalog,omitempty"`
}

// Service manages the session registry.
type Service struct {
	store  persist.Store
	gw     gateway.Gateway
	hub    *sse.Hub
	policy engine.Policy
	logger zerolog.Logger

	mu       sync.RWMutex
	machines map[uuid.UUID]*engine.Machine
}

func NewService(store persist.Store, gw gateway.Gateway, hub *sse.Hub, policy engine.Policy, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		gw:       gw,
		hub:      hub,
		policy:   policy,
		logger:   logger.With().Str("service", "checkout").Logger(),
		machines: make(map[uuid.UUID]*engine.Machine),
	}
}

// StartSession boots a machine for the named flow. When resume is non-nil
// and a persisted snapshot of the same flow exists, the session rehydrates
// from it and the machine re-enters the persisted position.
func (s *Service) StartSession(flow string, resume uuid.UUID) (*SessionView, error) {
	def, err := flows.ByName(flow)
	if err != nil {
		return nil, err
	}

	sctx := session.New(flow)
	if resume != uuid.Nil {
		if snap := s.loadSnapshot(resume, flow); snap != nil {
			sctx.SessionID = resume
			persist.Rehydrate(sctx, snap)
			sctx.ResumeState = snap.State
		}
	}

	m := engine.New(def, s.gw, sctx, s.policy, s.logger)
	sid := sctx.SessionID
	m.OnTransition(func(leaf engine.StateID, snap *session.Context) {
		s.persistAndBroadcast(sid, leaf, snap)
	})

	s.mu.Lock()
	if _, exists := s.machines[sid]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s already running", sid)
	}
	s.machines[sid] = m
	s.mu.Unlock()

	if err := m.Start(); err != nil {
		s.mu.Lock()
		delete(s.machines, sid)
		s.mu.Unlock()
		m.Stop()
		return nil, err
	}
	s.logger.Info().Str("session_id", sid.String()).Str("flow", flow).Msg("session started")
	return s.view(m), nil
}

// Get returns the current view of a live session.
func (s *Service) Get(id uuid.UUID) (*SessionView, error) {
	m, err := s.machine(id)
	if err != nil {
		return nil, err
	}
	return s.view(m), nil
}

// Dispatch feeds one domain event into a session's machine. Internal event
// types are rejected; they belong to the machine alone.
func (s *Service) Dispatch(id uuid.UUID, ev engine.Event) (*SessionView, error) {
	if strings.HasPrefix(string(ev.Type), "__") {
		return nil, fmt.Errorf("event type %q is not accepted", ev.Type)
	}
	m, err := s.machine(id)
	if err != nil {
		return nil, err
	}
	if err := m.Send(ev); err != nil {
		return nil, err
	}
	return s.view(m), nil
}

// WaitIdle blocks until no remote call is pending on the session.
func (s *Service) WaitIdle(ctx context.Context, id uuid.UUID) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	return m.WaitIdle(ctx)
}

// EndSession stops the machine, deletes the persisted snapshot and drops
// stream subscribers.
func (s *Service) EndSession(id uuid.UUID) error {
	s.mu.Lock()
	m, ok := s.machines[id]
	delete(s.machines, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.Stop()
	if err := s.store.Delete(id.String()); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("snapshot delete failed")
	}
	s.hub.CloseSession(id.String())
	s.logger.Info().Str("session_id", id.String()).Msg("session ended")
	return nil
}

// Shutdown stops every live machine. Snapshots stay behind for rehydration.
func (s *Service) Shutdown() {
	s.mu.Lock()
	machines := make([]*engine.Machine, 0, len(s.machines))
	for id, m := range s.machines {
		machines = append(machines, m)
		delete(s.machines, id)
	}
	s.mu.Unlock()
	for _, m := range machines {
		m.Stop()
	}
}

func (s *Service) machine(id uuid.UUID) (*engine.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

func (s *Service) view(m *engine.Machine) *SessionView {
	c := m.Context()
	return &SessionView{
		SessionID: c.SessionID.String(),
		Flow:      c.Flow,
		State:     string(m.State()),
		Context:   c,
		Catalog:   m.Catalog(),
	}
}

// loadSnapshot returns a decoded snapshot only when it exists, decodes and
// belongs to the same flow; anything else starts the session fresh.
func (s *Service) loadSnapshot(id uuid.UUID, flow string) *persist.Snapshot {
	raw, ok, err := s.store.Load(id.String())
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("snapshot load failed")
		return nil
	}
	if !ok {
		return nil
	}
	snap, err := persist.Decode(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("snapshot discarded")
		return nil
	}
	if snap.Flow != flow {
		s.logger.Warn().Str("session_id", id.String()).Str("have", snap.Flow).Str("want", flow).Msg("snapshot flow mismatch")
		return nil
	}
	return snap
}

func (s *Service) persistAndBroadcast(id uuid.UUID, leaf engine.StateID, snap *session.Context) {
	raw, err := persist.Encode(snap, string(leaf))
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id.String()).Msg("snapshot encode failed")
	} else if err := s.store.Save(id.String(), raw); err != nil {
		s.logger.Error().Err(err).Str("session_id", id.String()).Msg("snapshot save failed")
	}
	s.hub.BroadcastToSession(id.String(), &sse.Message{
		Event: "state",
		Data: &SessionView{
			SessionID: id.String(),
			Flow:      snap.Flow,
			State:     string(leaf),
			Context:   snap,
		},
	})
}
