package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/learnpath/internal/curriculum"
	"github.com/p-n-ai/learnpath/internal/events"
	"github.com/p-n-ai/learnpath/internal/wizard"
)

const (
	defaultIdleTimeout = 2 * time.Hour
	storeTimeout       = 3 * time.Second
	subscriberBuffer   = 4
)

// Config holds dependencies for a Manager.
type Config struct {
	Store     Store
	Generator wizard.Generator
	Catalog   *curriculum.Catalog
	Events    events.Logger
	// IdleTimeout evicts controllers not touched for this long from memory.
	// Their state stays in the store until it expires there (default: 2h).
	IdleTimeout time.Duration
}

// Manager maps session IDs to live controllers. Controllers are created on
// session start, restored from the store after eviction or restart, and
// discarded on session end.
type Manager struct {
	store       Store
	generator   wizard.Generator
	catalog     *curriculum.Catalog
	events      events.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	ctrl *wizard.Controller

	mu       sync.Mutex
	lastSeen time.Time
	ended    bool
	version  int
	nextSub  int
	subs     map[int]chan wizard.View
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(0)
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = curriculum.DefaultCatalog()
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Manager{
		store:       store,
		generator:   cfg.Generator,
		catalog:     catalog,
		events:      cfg.Events,
		idleTimeout: idle,
		now:         time.Now,
		sessions:    make(map[string]*entry),
	}
}

// Create starts a new session and returns its controller.
func (m *Manager) Create(ctx context.Context) (*wizard.Controller, error) {
	id := uuid.NewString()
	e := &entry{subs: make(map[int]chan wizard.View), lastSeen: m.now()}
	e.ctrl = wizard.New(m.controllerConfig(id, e))

	if err := m.store.Save(ctx, id, e.ctrl.State()); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	slog.Info("session started", "session_id", id)
	return e.ctrl, nil
}

// Get returns the controller for id, restoring it from the store if it is
// not in memory.
func (m *Manager) Get(ctx context.Context, id string) (*wizard.Controller, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.ctrl, nil
}

func (m *Manager) entry(ctx context.Context, id string) (*entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.touch(m.now())
		return e, nil
	}

	st, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	e := &entry{subs: make(map[int]chan wizard.View), lastSeen: m.now()}
	e.ctrl = wizard.Restore(m.controllerConfig(id, e), st)
	m.sessions[id] = e
	if st.Loading {
		// Restore turned the unfinished request into an error.
		m.save(id, e.ctrl.State())
	}

	slog.Info("session restored", "session_id", id, "step", st.Step.String())
	return e, nil
}

// End discards the session's controller and stored state and closes its
// subscriptions.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		// A request still running on the controller must not write the
		// session back once it is deleted.
		e.end()
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	slog.Info("session ended", "session_id", id)
	return nil
}

// Subscribe returns a channel that receives the session's view after every
// change, starting with the current one. The channel is closed by cancel or
// when the session ends. Slow readers only see the latest views.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan wizard.View, func(), error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan wizard.View, subscriberBuffer)
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	subID := e.nextSub
	e.nextSub++
	e.subs[subID] = ch
	version := e.version
	e.mu.Unlock()

	// View takes the controller lock, which OnChange holds while taking
	// e.mu, so it must run outside e.mu. A broadcast in between already
	// delivered a newer view.
	v := e.ctrl.View()
	e.mu.Lock()
	if c, ok := e.subs[subID]; ok && e.version == version {
		offer(c, v)
	}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[subID]; ok {
				delete(e.subs, subID)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops idle sessions from memory. Sessions with a request in flight
// or live subscribers are kept. It returns how many were evicted.
func (m *Manager) Evict() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if !e.idleSince(cutoff) || e.ctrl.State().Loading {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	if n > 0 {
		slog.Debug("evicted idle sessions", "count", n, "remaining", len(m.sessions))
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
			if ms, ok := m.store.(*MemoryStore); ok {
				ms.Sweep()
			}
		}
	}
}

// Catalog returns the grade-level catalog sessions are created with.
func (m *Manager) Catalog() *curriculum.Catalog {
	return m.catalog
}

func (m *Manager) controllerConfig(id string, e *entry) wizard.Config {
	return wizard.Config{
		SessionID: id,
		Generator: m.generator,
		Catalog:   m.catalog,
		Events:    m.events,
		OnChange: func(st wizard.State) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.ended {
				return
			}
			m.save(id, st)
			e.lastSeen = m.now()
			e.broadcastLocked(wizard.ViewOf(st, m.catalog.Levels()))
		},
	}
}

// save runs under the controller's lock and the entry's lock, so it gets its own short deadline.
func (m *Manager) save(id string, st wizard.State) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := m.store.Save(ctx, id, st); err != nil {
		slog.Error("failed to save session state",
			"session_id", id,
			"step", st.Step.String(),
			"error", err,
		)
	}
}

func (e *entry) touch(t time.Time) {
	e.mu.Lock()
	e.lastSeen = t
	e.mu.Unlock()
}

func (e *entry) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs) == 0 && e.lastSeen.Before(cutoff)
}

func (e *entry) broadcastLocked(v wizard.View) {
	e.version++
	for _, ch := range e.subs {
		offer(ch, v)
	}
}

// end marks the entry ended and closes its subscriptions.
func (e *entry) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// offer sends v without blocking, dropping the oldest queued view when the
// buffer is full.
func offer(ch chan wizard.View, v wizard.View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
