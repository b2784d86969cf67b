package selection_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/selection"
)

// gatedFetcher blocks each fetch until its ref is released. It ignores
// cancellation so tests can prove stale results are discarded.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan error
	calls []string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[string]chan error)}
}

func (f *gatedFetcher) gate(key string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.gates[key]
	if !ok {
		ch = make(chan error, 1)
		f.gates[key] = ch
	}
	return ch
}

func (f *gatedFetcher) FetchDetail(_ context.Context, ref dataset.EntityRef) (*dataset.Detail, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ref.Key())
	f.mu.Unlock()

	if err := <-f.gate(ref.Key()); err != nil {
		return nil, err
	}
	return &dataset.Detail{Ref: ref, Title: ref.Key()}, nil
}

func (f *gatedFetcher) release(key string, err error) {
	f.gate(key) <- err
}

func cellPick(id int) *selection.Pick {
	ref := dataset.CellRef(id)
	return &selection.Pick{Layer: "opportunity-cells", Index: id - 1, Ref: &ref}
}

func waitForStatus(t *testing.T, s *selection.Selection, want selection.DetailStatus) selection.State {
	t.Helper()
	var state selection.State
	require.Eventually(t, func() bool {
		state = s.State()
		return state.Detail.Status == want
	}, time.Second, 5*time.Millisecond)
	return state
}

func TestHover(t *testing.T) {
	s := selection.New(selection.Config{Logger: zerolog.Nop()})

	s.Hover(cellPick(3))
	require.NotNil(t, s.State().Hovered)
	assert.Equal(t, 3, s.State().Hovered.Ref.CellID)

	s.Hover(cellPick(4))
	assert.Equal(t, 4, s.State().Hovered.Ref.CellID)

	s.Hover(nil)
	assert.Nil(t, s.State().Hovered)

	s.Hover(cellPick(5))
	s.Hover(&selection.Pick{})
	assert.Nil(t, s.State().Hovered)
}

func TestClick_FetchesDetail(t *testing.T) {
	f := newGatedFetcher()
	changed := make(chan struct{}, 4)
	s := selection.New(selection.Config{
		Fetcher:  f,
		Logger:   zerolog.Nop(),
		OnChange: func() { changed <- struct{}{} },
	})
	defer s.Close()

	s.Click(cellPick(7))
	state := s.State()
	assert.Equal(t, 7, state.Selected.Ref.CellID)
	assert.Equal(t, selection.DetailLoading, state.Detail.Status)

	f.release("cell:7", nil)
	state = waitForStatus(t, s, selection.DetailReady)
	assert.Equal(t, "cell:7", state.Detail.Detail.Title)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("OnChange not called")
	}
}

func TestClick_NewerFetchSupersedes(t *testing.T) {
	f := newGatedFetcher()
	s := selection.New(selection.Config{Fetcher: f, Logger: zerolog.Nop()})
	defer s.Close()

	s.Click(cellPick(7))
	s.Click(cellPick(12))

	f.release("cell:7", nil)
	time.Sleep(20 * time.Millisecond)

	state := s.State()
	assert.Equal(t, 12, state.Selected.Ref.CellID)
	assert.Equal(t, selection.DetailLoading, state.Detail.Status, "stale result for 7 must be discarded")

	f.release("cell:12", nil)
	state = waitForStatus(t, s, selection.DetailReady)
	assert.Equal(t, 12, state.Selected.Ref.CellID)
	assert.Equal(t, "cell:12", state.Detail.Detail.Title)
	assert.Equal(t, 12, state.Detail.Ref.CellID)
}

func TestClick_ErrorAndRetry(t *testing.T) {
	f := newGatedFetcher()
	s := selection.New(selection.Config{Fetcher: f, Logger: zerolog.Nop()})
	defer s.Close()

	assert.ErrorIs(t, s.Retry(), selection.ErrNothingToRetry)

	s.Click(cellPick(7))
	f.release("cell:7", errors.New("connection reset"))
	state := waitForStatus(t, s, selection.DetailError)
	assert.Equal(t, "connection reset", state.Detail.Error)

	// No automatic retry.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, selection.DetailError, s.State().Detail.Status)

	require.NoError(t, s.Retry())
	assert.Equal(t, selection.DetailLoading, s.State().Detail.Status)
	f.release("cell:7", nil)
	waitForStatus(t, s, selection.DetailReady)
}

func TestClick_PickWithoutRef(t *testing.T) {
	f := newGatedFetcher()
	s := selection.New(selection.Config{Fetcher: f, Logger: zerolog.Nop()})
	defer s.Close()

	s.Click(&selection.Pick{Layer: "pollution-columns", Index: 4})
	state := s.State()
	require.NotNil(t, state.Selected)
	assert.Equal(t, "pollution-columns", state.Selected.Layer)
	assert.Equal(t, selection.DetailIdle, state.Detail.Status)
	assert.Empty(t, f.calls)

	s.Click(nil)
	assert.NotNil(t, s.State().Selected, "empty clicks keep the selection")
}

func TestClear_AbandonsFetch(t *testing.T) {
	f := newGatedFetcher()
	s := selection.New(selection.Config{Fetcher: f, Logger: zerolog.Nop()})
	defer s.Close()

	s.Click(cellPick(7))
	s.Clear()
	f.release("cell:7", nil)
	s.Wait()

	state := s.State()
	assert.Nil(t, state.Selected)
	assert.Equal(t, selection.DetailIdle, state.Detail.Status)
}

func TestClose_IgnoresLaterClicks(t *testing.T) {
	f := newGatedFetcher()
	s := selection.New(selection.Config{Fetcher: f, Logger: zerolog.Nop()})

	s.Click(cellPick(7))
	f.release("cell:7", nil)
	s.Close()

	s.Click(cellPick(12))
	state := s.State()
	assert.Equal(t, 7, state.Selected.Ref.CellID)
}

func TestClick_NoFetcher(t *testing.T) {
	s := selection.New(selection.Config{Logger: zerolog.Nop()})
	s.Click(cellPick(7))
	assert.Equal(t, selection.DetailError, s.State().Detail.Status)
}

type emptyFetcher struct{}

func (emptyFetcher) FetchDetail(context.Context, dataset.EntityRef) (*dataset.Detail, error) {
	return nil, nil
}

func TestClick_EmptyDetailIsError(t *testing.T) {
	s := selection.New(selection.Config{Fetcher: emptyFetcher{}, Logger: zerolog.Nop()})
	defer s.Close()

	s.Click(cellPick(7))
	state := waitForStatus(t, s, selection.DetailError)
	assert.Nil(t, state.Detail.Detail)
	assert.Contains(t, state.Detail.Error, "cell:7")
	assert.Contains(t, state.Detail.Error, dataset.ErrEntityNotFound.Error())
}
