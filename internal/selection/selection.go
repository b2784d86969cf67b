// Package selection tracks hover and click picks and the detail panel
// of the selected entity. Detail fetches run in the background; a newer
// click supersedes any fetch still in flight.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/geo"
)

// ErrNothingToRetry is returned by Retry when the panel is not in the
// error state.
var ErrNothingToRetry = errors.New("no failed detail fetch to retry")

// Pick is a renderer pick result.
type Pick struct {
	Layer    string             `json:"layer"`
	Index    int                `json:"index"`
	Position geo.LonLat         `json:"position"`
	Ref      *dataset.EntityRef `json:"ref,omitempty"`
}

func (p *Pick) empty() bool {
	return p == nil || (p.Layer == "" && p.Ref == nil)
}

func (p *Pick) fetchable() bool {
	return p != nil && p.Ref != nil && p.Ref.Valid()
}

// DetailStatus is the detail panel state.
type DetailStatus string

const (
	DetailIdle    DetailStatus = "idle"
	DetailLoading DetailStatus = "loading"
	DetailReady   DetailStatus = "ready"
	DetailError   DetailStatus = "error"
)

// DetailState is the detail panel content.
type DetailState struct {
	Status DetailStatus       `json:"status"`
	Ref    *dataset.EntityRef `json:"ref,omitempty"`
	Detail *dataset.Detail    `json:"detail,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// State is the published selection value.
type State struct {
	Hovered  *Pick       `json:"hovered"`
	Selected *Pick       `json:"selected"`
	Detail   DetailState `json:"detail"`
}

// Config holds configuration for the selection state.
type Config struct {
	// Fetcher loads detail records.
	Fetcher dataset.DetailFetcher

	// Logger for fetch outcomes.
	Logger zerolog.Logger

	// FetchTimeout bounds one detail fetch (default: 10s).
	FetchTimeout time.Duration

	// OnChange is called after a background fetch updates the state.
	OnChange func()
}

// Selection is safe for concurrent use.
type Selection struct {
	fetcher  dataset.DetailFetcher
	logger   zerolog.Logger
	timeout  time.Duration
	onChange func()

	mu         sync.Mutex
	hovered    *Pick
	selected   *Pick
	detail     DetailState
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

// New creates an empty selection.
func New(cfg Config) *Selection {
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Selection{
		fetcher:  cfg.Fetcher,
		logger:   cfg.Logger,
		timeout:  timeout,
		onChange: cfg.OnChange,
		detail:   DetailState{Status: DetailIdle},
	}
}

// State returns a copy of the current state.
func (s *Selection) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Hovered:  clonePick(s.hovered),
		Selected: clonePick(s.selected),
		Detail:   s.detail,
	}
}

// Hover replaces the hovered pick. An empty pick clears it.
func (s *Selection) Hover(p *Pick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.empty() {
		s.hovered = nil
		return
	}
	s.hovered = clonePick(p)
}

// Click replaces the selection. Picks that reference an entity start a
// detail fetch and return immediately. An empty pick is ignored.
func (s *Selection) Click(p *Pick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || p.empty() {
		return
	}
	s.selected = clonePick(p)
	s.abandonLocked()
	if !p.fetchable() {
		s.detail = DetailState{Status: DetailIdle}
		return
	}
	s.startFetchLocked(*p.Ref)
}

// Retry refetches a failed detail. It is only ever user-initiated.
func (s *Selection) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.detail.Status != DetailError || !s.selected.fetchable() {
		return ErrNothingToRetry
	}
	s.startFetchLocked(*s.selected.Ref)
	return nil
}

// Clear drops the selection and any in-flight fetch.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.abandonLocked()
	s.detail = DetailState{Status: DetailIdle}
}

// Close abandons in-flight fetches and waits for them to return. Later
// clicks are ignored.
func (s *Selection) Close() {
	s.mu.Lock()
	s.closed = true
	s.abandonLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until no fetch is in flight.
func (s *Selection) Wait() {
	s.wg.Wait()
}

// abandonLocked cancels the running fetch and invalidates its result.
func (s *Selection) abandonLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Selection) startFetchLocked(ref dataset.EntityRef) {
	s.abandonLocked()
	gen := s.generation
	r := ref
	s.detail = DetailState{Status: DetailLoading, Ref: &r}

	if s.fetcher == nil {
		s.detail = DetailState{Status: DetailError, Ref: &r, Error: "no detail source configured"}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		detail, err := s.fetcher.FetchDetail(ctx, ref)
		s.complete(gen, ref, detail, err)
	}()
}

func (s *Selection) complete(gen uint64, ref dataset.EntityRef, detail *dataset.Detail, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Str("ref", ref.Key()).Msg("discarding stale detail result")
		return
	}
	s.cancel = nil
	r := ref
	if err == nil && detail == nil {
		err = fmt.Errorf("%w: empty detail for %s", dataset.ErrEntityNotFound, ref.Key())
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", ref.Key()).Msg("detail fetch failed")
		s.detail = DetailState{Status: DetailError, Ref: &r, Error: err.Error()}
	} else {
		s.detail = DetailState{Status: DetailReady, Ref: &r, Detail: detail}
	}
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func clonePick(p *Pick) *Pick {
	if p == nil {
		return nil
	}
	c := *p
	if p.Ref != nil {
		r := *p.Ref
		c.Ref = &r
	}
	return &c
}
