package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// State is the connection state of a Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Dialer opens a new backend connection.
type Dialer func(ctx context.Context) (Store, error)

// Backoff is an exponential retry schedule capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Manager owns the process-wide store connection. It dials the backend,
// health-checks it with periodic pings and redials with backoff after a
// failure. Manager itself satisfies Store: calls made while it is not
// connected fail immediately with ErrUnavailable.
type Manager struct {
	dial         Dialer
	backoff      Backoff
	pingInterval time.Duration
	pingTimeout  time.Duration
	logger       *slog.Logger

	state atomic.Int32
	lost  chan struct{}

	mu    sync.RWMutex
	store Store
}

// ManagerConfig carries the tunables of a Manager.
type ManagerConfig struct {
	Backoff      Backoff
	PingInterval time.Duration
	PingTimeout  time.Duration
}

func NewManager(dial Dialer, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dial:         dial,
		backoff:      cfg.Backoff,
		pingInterval: cfg.PingInterval,
		pingTimeout:  cfg.PingTimeout,
		logger:       logger,
		lost:         make(chan struct{}, 1),
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Available reports whether the store can currently serve requests.
func (m *Manager) Available() bool {
	return m.State() == Connected
}

// Connect makes one dial attempt and, on success, installs the new store.
func (m *Manager) Connect(ctx context.Context) error {
	m.state.Store(int32(Connecting))

	s, err := m.dial(ctx)
	if err != nil {
		m.state.Store(int32(Disconnected))
		return err
	}

	m.mu.Lock()
	old := m.store
	m.store = s
	m.mu.Unlock()

	if old != nil && old != s {
		_ = old.Close(ctx)
	}

	m.state.Store(int32(Connected))
	m.logger.Info("connected to document store")
	return nil
}

// Run keeps the store connected until ctx is cancelled. It returns nil on
// cancellation after closing the current store.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		if !m.Available() {
			if !m.reconnect(ctx) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.lost:
			continue
		case <-time.After(m.pingInterval):
		}

		if err := m.ping(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("document store health check failed", "error", err)
			m.state.Store(int32(Disconnected))
		}
	}
}

// reconnect dials until it succeeds or ctx is cancelled.
func (m *Manager) reconnect(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		err := m.Connect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		delay := m.backoff.Delay(attempt)
		m.logger.Error("error connecting to document store",
			"error", err,
			"attempt", attempt+1,
			"retry_in", delay.String(),
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

func (m *Manager) ping(ctx context.Context) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()
	return s.Ping(ctx)
}

func (m *Manager) shutdown() {
	m.state.Store(int32(Disconnected))

	m.mu.Lock()
	s := m.store
	m.store = nil
	m.mu.Unlock()

	if s != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			m.logger.Error("closing document store", "error", err)
		}
	}
}

func (m *Manager) current() (Store, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return nil, ErrUnavailable
	}
	return m.store, nil
}

// observe marks the manager disconnected when a backend reports a
// connectivity failure, and wakes Run so it redials without waiting for
// the next ping.
func (m *Manager) observe(err error) error {
	if errors.Is(err, ErrUnavailable) && m.state.CompareAndSwap(int32(Connected), int32(Disconnected)) {
		m.logger.Error("lost connection to document store", "error", err)
		select {
		case m.lost <- struct{}{}:
		default:
		}
	}
	return err
}

func (m *Manager) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	s, err := m.current()
	if err != nil {
		return nil, err
	}
	docs, err := s.Find(ctx, collection, q)
	return docs, m.observe(err)
}

func (m *Manager) FindByID(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, error) {
	s, err := m.current()
	if err != nil {
		return nil, err
	}
	doc, err := s.FindByID(ctx, collection, id)
	return doc, m.observe(err)
}

func (m *Manager) Insert(ctx context.Context, collection string, doc any) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return m.observe(s.Insert(ctx, collection, doc))
}

func (m *Manager) DeleteByID(ctx context.Context, collection string, id primitive.ObjectID) error {
	s, err := m.current()
	if err != nil {
		return err
	}
	return m.observe(s.DeleteByID(ctx, collection, id))
}

func (m *Manager) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	s, err := m.current()
	if err != nil {
		return 0, err
	}
	n, err := s.DeleteMany(ctx, collection, filter)
	return n, m.observe(err)
}

func (m *Manager) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	s, err := m.current()
	if err != nil {
		return 0, err
	}
	n, err := s.Count(ctx, collection, filter)
	return n, m.observe(err)
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.observe(m.ping(ctx))
}

// Close releases the current store. Run must not be active.
func (m *Manager) Close(ctx context.Context) error {
	m.shutdown()
	return nil
}
