package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/history"
	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// ErrSessionNotFound is returned for unknown or expired session ids
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionLimit is returned by Create when MaxSessions sessions are live
var ErrSessionLimit = errors.New("session limit reached")

const (
	// DefaultIdleTTL is how long an unused session lives
	DefaultIdleTTL = 30 * time.Minute
	// DefaultSweepInterval is how often Run expires idle sessions
	DefaultSweepInterval = time.Minute

	historyTimeout = 5 * time.Second
)

// ManagerConfig configures a Manager
type ManagerConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// MaxSessions caps live sessions; zero means unlimited
	MaxSessions int
	History     history.Recorder
	Logger      *zap.Logger
}

// Manager creates, looks up and expires sessions
type Manager struct {
	catalog *views.Catalog
	fetcher *fetch.Fetcher
	cfg     ManagerConfig
	logger  *zap.Logger
	history history.Recorder
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager over catalog
func NewManager(catalog *views.Catalog, fetcher *fetch.Fetcher, cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.History == nil {
		cfg.History = history.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		catalog:  catalog,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   cfg.Logger,
		history:  cfg.History,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Catalog returns the views the manager mounts
func (m *Manager) Catalog() *views.Catalog {
	return m.catalog
}

// Fetcher returns the fetcher sessions load resources with
func (m *Manager) Fetcher() *fetch.Fetcher {
	return m.fetcher
}

// History returns the navigation recorder
func (m *Manager) History() history.Recorder {
	return m.history
}

// Create mounts viewName at query in a new session
func (m *Manager) Create(ctx context.Context, viewName string, query url.Values) (*Session, error) {
	view, err := m.catalog.Get(viewName)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrSessionLimit, m.cfg.MaxSessions)
	}
	id := uuid.NewString()
	s := NewSession(id, view, query, m.fetcher, m.logger)
	s.now = m.now
	s.lastUsed = m.now()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.GaugeSessions.Inc()

	m.record(s, s.nav.Current())
	s.OnNavigate(func(e selection.Entry) {
		m.record(s, e)
	})

	if err := s.Mount(ctx); err != nil {
		m.Close(id)
		return nil, err
	}

	m.logger.Debug("session created", zap.String("session", id), zap.String("view", view.Name))
	return s, nil
}

func newRecord(s *Session, e selection.Entry) history.Record {
	return history.Record{
		SessionID: s.id,
		Version:   e.Version,
		View:      s.view.Name,
		Kind:      string(e.Kind),
		Query:     e.Query,
		CreatedAt: e.At,
	}
}

// Records returns the in-memory navigation log as history records
func (s *Session) Records() []history.Record {
	log := s.Log()
	records := make([]history.Record, 0, len(log))
	for _, e := range log {
		records = append(records, newRecord(s, e))
	}
	return records
}

func (m *Manager) record(s *Session, e selection.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := m.history.Append(ctx, newRecord(s, e)); err != nil {
		m.logger.Warn("record navigation",
			zap.String("session", s.id),
			zap.Uint64("version", e.Version),
			zap.Error(err),
		)
	}
}

// Get returns the live session with id and marks it used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch()
	return s, nil
}

// IDs returns the live session ids, sorted
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sessions returns the live sessions ordered by id without marking them used
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes and forgets the session with id
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.Close()
	metrics.GaugeSessions.Dec()
	return nil
}

// Sweep closes every session idle since before now minus the TTL and
// returns how many were closed
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		metrics.GaugeSessions.Dec()
		m.logger.Debug("session expired", zap.String("session", s.id))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.logger.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session and rejects new ones
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		metrics.GaugeSessions.Dec()
	}
}
