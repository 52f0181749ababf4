// Package portal runs mounted views: it ties a view's navigator to its
// resource fetches and exposes snapshots and change events to consumers.
package portal

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/payload"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// ErrSessionClosed is returned when navigating a closed session
var ErrSessionClosed = errors.New("session closed")

// EventType distinguishes session events
type EventType string

const (
	// EventNavigate is published after every navigation entry
	EventNavigate EventType = "navigate"
	// EventResource is published when a resource fetch is applied
	EventResource EventType = "resource"
	// EventClosed is the last event a subscriber receives
	EventClosed EventType = "closed"
)

// Event is a change pushed to subscribers
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Version   uint64         `json:"version"`
	Kind      selection.Kind `json:"kind,omitempty"`
	Query     string         `json:"query"`
	Resource  string         `json:"resource,omitempty"`
	State     *ResourceState `json:"state,omitempty"`
}

// ResourceState is the derived display state of one resource
type ResourceState struct {
	// Ready is true when every template field is set in the current key
	Ready bool `json:"ready"`
	// Path is the path of the shown payload
	Path    string           `json:"path,omitempty"`
	Pending bool             `json:"pending"`
	Payload *payload.Payload `json:"payload,omitempty"`
	// Available is the gate over the resource's plot ids
	Available map[string]bool `json:"available,omitempty"`
	Laminar   payload.Laminar `json:"laminar,omitempty"`
}

// Snapshot is a consistent read of a session
type Snapshot struct {
	ID         string                   `json:"id,omitempty"`
	View       string                   `json:"view"`
	Version    uint64                   `json:"version"`
	Query      string                   `json:"query"`
	Key        map[string]string        `json:"key"`
	Options    map[string][]string      `json:"options"`
	Complete   bool                     `json:"complete"`
	CanBack    bool                     `json:"can_back"`
	CanForward bool                     `json:"can_forward"`
	Resources  map[string]ResourceState `json:"resources"`
}

type slot struct {
	fetch.Slot
	path    string
	payload *payload.Payload
	// signature the payload was fetched for
	loaded string
}

func (sl *slot) clear() {
	sl.path = ""
	sl.payload = nil
	sl.loaded = ""
}

// Session is one mounted view. Navigation is synchronous; fetches run in the
// background and only the latest fetch of each resource is applied.
type Session struct {
	id      string
	view    *views.View
	fetcher *fetch.Fetcher
	nav     *selection.Navigator
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mount  sync.Once

	// navMu serialises navigation so listeners see entries in version order
	navMu sync.Mutex

	mu        sync.Mutex
	slots     map[string]*slot
	scheduled uint64
	inflight  int
	idle      chan struct{}
	subs      map[int]func(Event)
	nextSub   int
	closed    bool
	lastUsed  time.Time
	now       func() time.Time
}

// NewSession creates an unmounted session for view starting at query
func NewSession(id string, view *views.View, query url.Values, fetcher *fetch.Fetcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	idle := make(chan struct{})
	close(idle)

	s := &Session{
		id:      id,
		view:    view,
		fetcher: fetcher,
		nav:     selection.NewNavigator(view.Key(query)),
		logger:  logger.With(zap.String("session", id), zap.String("view", view.Name)),
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(map[string]*slot, len(view.Resources)),
		idle:    idle,
		subs:    make(map[int]func(Event)),
		now:     time.Now,
	}
	for _, r := range view.Resources {
		s.slots[r.Name] = &slot{}
	}
	s.lastUsed = s.now()
	s.nav.OnChange(s.onNavigate)
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// View returns the mounted view
func (s *Session) View() *views.View {
	return s.view
}

// OnNavigate registers fn for every navigation entry after the initial one
func (s *Session) OnNavigate(fn selection.Listener) {
	s.nav.OnChange(fn)
}

// Log returns every navigation entry so far
func (s *Session) Log() []selection.Entry {
	return s.nav.Log()
}

// Mount applies the view's preselection and schedules the initial fetches.
// Only the first call has an effect.
func (s *Session) Mount(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.navMu.Lock()
	defer s.navMu.Unlock()
	s.mount.Do(func() {
		if !s.view.Preselection.Apply(s.nav) {
			s.schedule(s.nav.Current())
		}
	})
	return nil
}

// SetField sets field to value, clearing every field after it, and pushes
// the result as a new history step
func (s *Session) SetField(ctx context.Context, field, value string) (selection.Entry, error) {
	if err := s.usable(ctx); err != nil {
		return selection.Entry{}, err
	}
	s.navMu.Lock()
	defer s.navMu.Unlock()
	return s.nav.SetField(field, value)
}

// Back moves one history step back. It reports false at the first step.
func (s *Session) Back(ctx context.Context) (selection.Entry, bool, error) {
	if err := s.usable(ctx); err != nil {
		return selection.Entry{}, false, err
	}
	s.navMu.Lock()
	defer s.navMu.Unlock()
	e, ok := s.nav.Back()
	return e, ok, nil
}

// Forward moves one history step forward. It reports false at the last step.
func (s *Session) Forward(ctx context.Context) (selection.Entry, bool, error) {
	if err := s.usable(ctx); err != nil {
		return selection.Entry{}, false, err
	}
	s.navMu.Lock()
	defer s.navMu.Unlock()
	e, ok := s.nav.Forward()
	return e, ok, nil
}

func (s *Session) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastUsed = s.now()
	return nil
}

func (s *Session) onNavigate(e selection.Entry) {
	metrics.CounterNavigation.WithLabelValues(s.view.Name, string(e.Kind)).Inc()
	s.schedule(e)
	s.publish(Event{
		Type:      EventNavigate,
		SessionID: s.id,
		Version:   e.Version,
		Kind:      e.Kind,
		Query:     e.Query,
	})
}

// schedule starts a fetch for every resource whose dependency values
// changed. Resources whose fields are no longer all set are cleared.
// Entries older than the last scheduled one are ignored.
func (s *Session) schedule(e selection.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || e.Version <= s.scheduled {
		return
	}
	s.scheduled = e.Version
	key := e.Key

	for i := range s.view.Resources {
		r := &s.view.Resources[i]
		sl := s.slots[r.Name]

		if !r.Template.Ready(key) {
			sl.Reset()
			sl.clear()
			continue
		}

		sig := r.Template.Signature(key)
		if sig == sl.Signature() {
			continue
		}

		path, err := r.Template.Expand(key)
		if err != nil {
			s.logger.Warn("resource path", zap.String("resource", r.Name), zap.Error(err))
			sl.Reset()
			sl.clear()
			continue
		}

		ctx, gen := sl.Begin(s.ctx, sig)
		req := fetch.Request{View: s.view.Name, Resource: r.Name, Path: path, Kind: r.Kind}
		s.begin()
		go s.run(ctx, r, gen, req)
	}
}

// begin and end track in-flight fetches for Settle; callers hold s.mu
func (s *Session) begin() {
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Session) end() {
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

func (s *Session) run(ctx context.Context, r *views.Resource, gen uint64, req fetch.Request) {
	res := s.fetcher.Fetch(ctx, req)

	s.mu.Lock()
	sl := s.slots[r.Name]
	if !sl.Finish(gen) {
		s.end()
		s.mu.Unlock()
		metrics.CounterFetchStale.WithLabelValues(s.view.Name, r.Name).Inc()
		s.logger.Debug("discarded stale response", zap.String("resource", r.Name), zap.String("path", req.Path))
		return
	}
	if res.Err == nil {
		sl.payload = res.Payload
		sl.path = req.Path
		sl.loaded = sl.Signature()
	} else {
		sl.clear()
	}
	current := s.nav.Current()
	state := s.resourceState(r, sl, current.Key)
	s.end()
	s.mu.Unlock()

	s.publish(Event{
		Type:      EventResource,
		SessionID: s.id,
		Version:   current.Version,
		Query:     current.Query,
		Resource:  r.Name,
		State:     &state,
	})
}

// Settle waits until no fetch is in flight
func (s *Session) Settle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns the current key, options and resource states
func (s *Session) Snapshot() Snapshot {
	e := s.nav.Current()

	s.mu.Lock()
	resources := make(map[string]ResourceState, len(s.view.Resources))
	for i := range s.view.Resources {
		r := &s.view.Resources[i]
		resources[r.Name] = s.resourceState(r, s.slots[r.Name], e.Key)
	}
	s.mu.Unlock()

	return Snapshot{
		ID:         s.id,
		View:       s.view.Name,
		Version:    e.Version,
		Query:      e.Query,
		Key:        e.Key.Values(),
		Options:    s.view.Resolver.ResolveAll(e.Key),
		Complete:   s.view.Complete(e.Key),
		CanBack:    s.nav.CanGoBack(),
		CanForward: s.nav.CanGoForward(),
		Resources:  resources,
	}
}

// resourceState derives the display state of r at key; callers hold s.mu.
// A payload fetched for other dependency values is never shown.
func (s *Session) resourceState(r *views.Resource, sl *slot, key selection.Key) ResourceState {
	ready := r.Template.Ready(key)
	p, path := sl.payload, sl.path
	if !ready || sl.loaded != r.Template.Signature(key) {
		p, path = nil, ""
	}
	return deriveState(r, p, path, ready, sl.Pending(), s.logger)
}

func deriveState(r *views.Resource, p *payload.Payload, path string, ready, pending bool, logger *zap.Logger) ResourceState {
	st := ResourceState{
		Ready:   ready,
		Path:    path,
		Pending: pending,
		Payload: p,
	}
	if len(r.PlotIDs) > 0 {
		st.Available = r.Availability(p)
	}
	if r.Laminar && p != nil {
		l, ok, err := payload.LaminarByID(p.Bundle, payload.LaminarDistributionID)
		if err != nil {
			logger.Warn("laminar distribution", zap.String("resource", r.Name), zap.Error(err))
		}
		if ok {
			st.Laminar = l
		}
	}
	return st
}

// Subscribe registers fn for session events. Events are delivered outside
// the session lock, possibly from fetch goroutines. The returned func
// removes the subscription.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) publish(e Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last navigated
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Close cancels in-flight fetches, tells subscribers and drops them
func (s *Session) Close() {
	version := s.nav.Current().Version
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	for _, sl := range s.slots {
		sl.Reset()
	}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subs = map[int]func(Event){}
	s.mu.Unlock()

	e := Event{Type: EventClosed, SessionID: s.id, Version: version}
	for _, fn := range subs {
		fn(e)
	}
}
