package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for dataset sources.
type Provider interface {
	// FetchSnapshot loads a complete, validated snapshot.
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// ServiceConfig holds configuration for the dataset service.
type ServiceConfig struct {
	// Provider is the dataset source.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache the snapshot (default: 1 hour).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 24 hours).
	StaleIfErrorTTL time.Duration
}

// Service provides dataset snapshots with caching.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
}

// NewService creates a new dataset service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 24 * time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
	}
}

// GetSnapshot returns the current snapshot, using the cache when fresh.
func (s *Service) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		snapshot := s.snapshot
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	return s.refreshSnapshot(ctx, false)
}

// RefreshSnapshot forces a provider fetch.
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	_, err := s.refreshSnapshot(ctx, true)
	return err
}

// InvalidateCache clears the cached snapshot.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.cacheExpiry = time.Time{}
}

// CacheStatus represents the current state of the cache.
type CacheStatus struct {
	HasData   bool      `json:"hasData"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	IsExpired bool      `json:"isExpired"`
	IsStale   bool      `json:"isStale"`
	CellCount int       `json:"cellCount"`
	Provider  string    `json:"provider,omitempty"`
}

// CacheStatus returns information about the current cache state.
func (s *Service) CacheStatus() CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return CacheStatus{}
	}

	now := time.Now()
	return CacheStatus{
		HasData:   true,
		FetchedAt: s.snapshot.FetchedAt,
		ExpiresAt: s.cacheExpiry,
		IsExpired: now.After(s.cacheExpiry),
		IsStale:   now.After(s.snapshot.FetchedAt.Add(s.staleIfErrorTTL)),
		CellCount: len(s.snapshot.Cells),
		Provider:  s.snapshot.Provider,
	}
}

func (s *Service) refreshSnapshot(ctx context.Context, force bool) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if !force && s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		return s.snapshot, nil
	}

	s.logger.Debug().Msg("refreshing dataset snapshot")

	snapshot, err := s.provider.FetchSnapshot(ctx)
	if err == nil {
		err = snapshot.Series.Validate()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch dataset snapshot")

		if s.snapshot != nil && time.Now().Before(s.snapshot.FetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", s.snapshot.FetchedAt).
				Msg("serving stale dataset due to provider error")
			return s.snapshot, nil
		}

		return nil, ErrProviderUnavailable
	}

	s.snapshot = snapshot
	s.cacheExpiry = time.Now().Add(s.cacheTTL)

	s.logger.Info().
		Str("provider", snapshot.Provider).
		Int("cells", len(snapshot.Cells)).
		Int("rivers", len(snapshot.Rivers)).
		Int("risk_zones", len(snapshot.RiskZones)).
		Time("expires_at", s.cacheExpiry).
		Msg("dataset snapshot refreshed")

	return snapshot, nil
}
