package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/geometry"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
	ErrManagerShutdown = errors.New("session manager is shut down")
)

// SessionLimiter caps concurrently open sessions. Zero or less means no cap.
type SessionLimiter interface {
	MaxSessions(ctx context.Context) int
}

// ManagerConfig holds configuration for the session manager.
type ManagerConfig struct {
	// Dataset supplies the snapshot new sessions are built on.
	Dataset dataset.SnapshotSource

	// Details loads detail panels (default: read from the session snapshot).
	Details dataset.DetailFetcher

	Scene   geometry.Config
	Camera  *camera.Config
	Flags   Flags
	Limiter SessionLimiter
	Metrics *Metrics
	Logger  zerolog.Logger

	FrameInterval time.Duration
	PlayInterval  time.Duration

	// IdleTTL closes sessions with no control call for this long (default: 15m).
	IdleTTL time.Duration
}

// SessionOptions are the per-session choices made at creation.
type SessionOptions struct {
	Toggles *geometry.Toggles
	Mode    compositor.VisualMode
	Year    int
}

// Manager creates sessions, runs their loops and closes idle ones.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Details == nil && cfg.Dataset != nil {
		cfg.Details = dataset.NewSnapshotDetails(cfg.Dataset)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create builds a session on the current dataset snapshot and starts its
// loop. The loop runs until the session is closed or the manager shuts down.
func (m *Manager) Create(ctx context.Context, opts SessionOptions) (*Session, error) {
	if m.cfg.Dataset == nil {
		return nil, ErrNoSnapshotProvided
	}

	limit := 0
	if m.cfg.Limiter != nil {
		limit = m.cfg.Limiter.MaxSessions(ctx)
	}

	m.mu.RLock()
	closed, open := m.closed, len(m.sessions)
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerShutdown
	}
	if limit > 0 && open >= limit {
		return nil, ErrTooManySessions
	}

	snapshot, err := m.cfg.Dataset.GetSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	s, err := NewSession(SessionConfig{
		ID:            uuid.New().String(),
		Snapshot:      snapshot,
		Scene:         m.cfg.Scene,
		Camera:        m.cfg.Camera,
		Details:       m.cfg.Details,
		Flags:         m.cfg.Flags,
		Metrics:       m.cfg.Metrics,
		Logger:        m.logger,
		FrameInterval: m.cfg.FrameInterval,
		PlayInterval:  m.cfg.PlayInterval,
		Toggles:       opts.Toggles,
		Mode:          opts.Mode,
	})
	if err != nil {
		return nil, err
	}
	if opts.Year != 0 {
		if _, err := s.SetYear(opts.Year, false); err != nil {
			s.Close()
			return nil, err
		}
	}

	// Concurrent creates may have filled the cap since the check above.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, ErrManagerShutdown
	}
	if limit > 0 && len(m.sessions) >= limit {
		m.mu.Unlock()
		s.Close()
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		s.Run(m.ctx)
		m.remove(s.ID())
	}()

	m.logger.Info().
		Str("session_id", s.ID()).
		Str("provider", snapshot.Provider).
		Msg("session opened")

	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes one session.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	m.remove(id)
	return nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes every session idle since before now minus the idle TTL and
// returns how many it closed.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		s.Close()
		m.remove(s.ID())
	}
	if len(idle) > 0 {
		m.logger.Info().Int("closed", len(idle)).Msg("closed idle sessions")
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done, then shuts the manager down.
func (m *Manager) Run(ctx context.Context) {
	interval := max(m.cfg.IdleTTL/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Shutdown closes every session and waits for their loops to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info().Msg("session manager stopped")
}
