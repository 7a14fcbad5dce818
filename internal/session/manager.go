package session

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/ids"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/worker"
)

// DefaultAvailabilityTTL is how long CheckAvailability results are reused.
const DefaultAvailabilityTTL = 30 * time.Second

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Roles maps an agent role to the workers that may serve it.
	Roles           map[string]worker.Selector
	Session         Config
	AvailabilityTTL time.Duration
	IDs             ids.Generator
	Now             func() time.Time
}

// Manager creates sessions and tracks them until Dispose.
type Manager struct {
	cfg      ManagerConfig
	provider worker.Provider
	bus      *event.Bus
	logger   *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	disposed bool

	availMu      sync.Mutex
	availability map[string]bool
	availAt      time.Time
}

// NewManager creates a Manager. A nil bus gets a private one.
func NewManager(cfg ManagerConfig, provider worker.Provider, bus *event.Bus, logger *logging.Logger) *Manager {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if cfg.IDs == nil {
		cfg.IDs = ids.NewSequence()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Session.Now == nil {
		cfg.Session.Now = cfg.Now
	}
	if bus == nil {
		bus = event.NewBus(logger)
	}
	return &Manager{
		cfg:      cfg,
		provider: provider,
		bus:      bus,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Bus returns the bus sessions publish on.
func (m *Manager) Bus() *event.Bus { return m.bus }

// Roles returns the configured role names, sorted.
func (m *Manager) Roles() []string {
	return slices.Sorted(maps.Keys(m.cfg.Roles))
}

// Create resolves role to a worker and registers a pending session for task.
// The session's prompt is the task's prompt.
func (m *Manager) Create(ctx context.Context, role string, task plan.Task) (*Session, error) {
	m.mu.RLock()
	disposed := m.disposed
	m.mu.RUnlock()
	if disposed {
		return nil, errors.ErrManagerDisposed
	}

	sel, ok := m.cfg.Roles[role]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrAgentNotFound, "agent", role)
	}
	workers, err := m.provider.SelectWorkers(ctx, sel)
	if err != nil {
		return nil, errors.Wrapf(err, "select worker for role %q", role)
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: role %q selector %s", errors.ErrNoWorkerAvailable, role, sel)
	}

	id := m.cfg.IDs.Next(role)
	s := newSession(id, role, task.ID, task.Prompt, workers[0], m.cfg.Session, m.bus, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return nil, errors.ErrManagerDisposed
	}
	m.sessions[id] = s
	m.order = append(m.order, id)
	m.logger.Debug("session created", "session_id", id, "agent", role, "task_id", task.ID, "worker", workers[0].ID())
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrSessionNotFound, "session", id)
	}
	return s, nil
}

// Pause pauses the session with the given id.
func (m *Manager) Pause(id string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.Pause(), nil
}

// Resume resumes the session with the given id.
func (m *Manager) Resume(id string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.Resume(), nil
}

// Cancel cancels the session with the given id.
func (m *Manager) Cancel(id string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.Cancel(), nil
}

// Sessions returns every tracked session in creation order.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// ActiveSessions returns the sessions not yet in a terminal state.
func (m *Manager) ActiveSessions() []*Session {
	var active []*Session
	for _, s := range m.Sessions() {
		if !s.Status().State.IsTerminal() {
			active = append(active, s)
		}
	}
	return active
}

// CheckAvailability reports, for every configured role, whether the provider
// currently offers a worker for it. Results are cached for AvailabilityTTL.
func (m *Manager) CheckAvailability(ctx context.Context) map[string]bool {
	m.availMu.Lock()
	defer m.availMu.Unlock()

	now := m.cfg.Now()
	if m.availability != nil && now.Sub(m.availAt) < m.cfg.AvailabilityTTL {
		return maps.Clone(m.availability)
	}

	result := make(map[string]bool, len(m.cfg.Roles))
	for _, role := range m.Roles() {
		workers, err := m.provider.SelectWorkers(ctx, m.cfg.Roles[role])
		if err != nil {
			m.logger.Warn("availability probe failed", "agent", role, "error", err.Error())
		}
		result[role] = err == nil && len(workers) > 0
	}
	m.availability = result
	m.availAt = now
	return maps.Clone(result)
}

// Subscribe registers handler for eventType on the manager's bus.
func (m *Manager) Subscribe(eventType string, handler event.Handler) string {
	return m.bus.Subscribe(eventType, handler)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id string) bool {
	return m.bus.Unsubscribe(id)
}

// Dispose cancels every outstanding session and clears the bus. Later Create
// calls fail with ErrManagerDisposed.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	sessions := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id])
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
	m.bus.Clear()
	m.logger.Debug("session manager disposed", "sessions", len(sessions))
}
