package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a loaded view of the switches is reused.
const DefaultCacheTTL = 30 * time.Second

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	// Repository defaults to an empty MemoryRepository.
	Repository Repository
	Logger     zerolog.Logger
	CacheTTL   time.Duration
}

// Service evaluates switches from stored overrides merged over the
// registry defaults. Sessions read switches every frame, so the merged
// view is cached and reloaded at most once per CacheTTL.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	ttl    time.Duration

	mu       sync.Mutex
	view     map[string]*Flag
	loadedAt time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Repository == nil {
		cfg.Repository = NewMemoryRepository()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		ttl:    cfg.CacheTTL,
	}
}

// current returns the merged view, reloading it when expired. A failed
// reload keeps the previous view; with none loaded yet the defaults serve.
func (s *Service) current(ctx context.Context) map[string]*Flag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view != nil && time.Since(s.loadedAt) < s.ttl {
		return s.view
	}

	stored, err := s.repo.List(ctx)
	if err != nil {
		if s.view != nil {
			s.logger.Warn().Err(err).Msg("feature flag reload failed, keeping last values")
			s.loadedAt = time.Now()
			return s.view
		}
		s.logger.Warn().Err(err).Msg("feature flag load failed, using defaults")
		return DefaultFlags()
	}

	view := DefaultFlags()
	for key, f := range stored {
		if _, known := Lookup(key); !known {
			s.logger.Debug().Str("flag", key).Msg("ignoring unknown stored flag")
			continue
		}
		view[key] = f
	}
	s.view = view
	s.loadedAt = time.Now()
	return view
}

// Get returns the current value of key, or nil for unknown keys.
func (s *Service) Get(ctx context.Context, key string) *Flag {
	f, ok := s.current(ctx)[key]
	if !ok {
		return nil
	}
	cp := *f
	return &cp
}

// GetAllFlags returns a copy of every switch.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	view := s.current(ctx)
	out := make(map[string]*Flag, len(view))
	for k, f := range view {
		cp := *f
		out[k] = &cp
	}
	return out
}

// Set validates and stores one override.
func (s *Service) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetFlags(ctx, FlagUpdate{Key: key, Value: value})
}

// SetFlags validates every update, then stores them together. Nothing is
// stored if any update is invalid.
func (s *Service) SetFlags(ctx context.Context, updates ...FlagUpdate) error {
	flags := make([]*Flag, 0, len(updates))
	for _, u := range updates {
		f, err := NewFlag(u.Key, u.Value)
		if err != nil {
			return err
		}
		flags = append(flags, f)
	}
	if err := s.repo.Upsert(ctx, flags...); err != nil {
		return fmt.Errorf("store feature flags: %w", err)
	}
	s.InvalidateCache()
	return nil
}

// Reset drops the override for key so it reads its default again.
func (s *Service) Reset(ctx context.Context, key string) error {
	if _, ok := Lookup(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFlag, key)
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, ErrFlagNotFound) {
		return fmt.Errorf("reset feature flag: %w", err)
	}
	s.InvalidateCache()
	return nil
}

// InvalidateCache forces a reload on next read.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Time{}
}

// IsEnabled reports whether a boolean switch is on.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.Get(ctx, key).BoolValue(false)
}

// IsPollutionFieldDisabled reports whether the pollution layers are switched off.
func (s *Service) IsPollutionFieldDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisablePollutionField)
}

// IsForecastDisabled reports whether prediction mode is blocked.
func (s *Service) IsForecastDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableForecast)
}

// IsWaterModeDisabled reports whether water-family layers are switched off.
func (s *Service) IsWaterModeDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableWaterMode)
}

// IsCachedOnlyDataset reports whether background refreshes must not call the provider.
func (s *Service) IsCachedOnlyDataset(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagCachedOnlyDataset)
}

// MaxSessions returns the session cap; zero or less means unlimited.
func (s *Service) MaxSessions(ctx context.Context) int {
	return s.Get(ctx, FlagMaxSessions).IntValue(0)
}
