// Package engine runs view sessions. A session owns the per-viewer state
// (clock, timeline, camera, selection, overlay switches) and turns it into
// a Frame of layer descriptors once per tick.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/selection"
	"github.com/urbanscope/urbanscope/internal/timeline"
	"github.com/urbanscope/urbanscope/pkg/geo"
)

// Session errors.
var (
	ErrSessionClosed      = errors.New("session is closed")
	ErrForecastDisabled   = errors.New("forecast mode is disabled")
	ErrWaterModeDisabled  = errors.New("water mode is disabled")
	ErrRendererHealthy    = errors.New("renderer is not in a failed state")
	ErrInvalidVisualMode  = errors.New("invalid visual mode")
	ErrNoSnapshotProvided = errors.New("session needs a dataset snapshot")
)

// Default loop timing.
const (
	DefaultFrameInterval    = 50 * time.Millisecond
	DefaultPlayInterval     = time.Second
	DefaultSubscriberBuffer = 4
)

// Flags are the runtime kill switches a session consults every frame.
type Flags interface {
	IsPollutionFieldDisabled(ctx context.Context) bool
	IsForecastDisabled(ctx context.Context) bool
	IsWaterModeDisabled(ctx context.Context) bool
}

type noFlags struct{}

func (noFlags) IsPollutionFieldDisabled(context.Context) bool { return false }
func (noFlags) IsForecastDisabled(context.Context) bool       { return false }
func (noFlags) IsWaterModeDisabled(context.Context) bool      { return false }

// SessionConfig holds configuration for one session.
type SessionConfig struct {
	ID       string
	Snapshot *dataset.Snapshot
	Scene    geometry.Config

	// Camera defaults to an overview over the snapshot center.
	Camera *camera.Config

	Details dataset.DetailFetcher
	Flags   Flags
	Metrics *Metrics
	Logger  zerolog.Logger

	FrameInterval    time.Duration
	PlayInterval     time.Duration
	ClockDelta       float64
	BlendStep        float64
	SubscriberBuffer int

	// Toggles defaults to geometry.DefaultToggles.
	Toggles *geometry.Toggles

	// Mode defaults to dual.
	Mode compositor.VisualMode
}

type subscriber struct {
	ch      chan *Frame
	dropped int
}

// Session is safe for concurrent use. Control methods take effect on the
// next frame.
type Session struct {
	id            string
	logger        zerolog.Logger
	flags         Flags
	metrics       *Metrics
	frameInterval time.Duration
	playInterval  time.Duration
	bufferSize    int

	generators *geometry.Generators
	selection  *selection.Selection
	wake       chan struct{}
	done       chan struct{}

	mu          sync.Mutex
	clock       *timeline.Clock
	blender     *timeline.Blender
	timeline    *timeline.Controller
	camera      *camera.Controller
	toggles     geometry.Toggles
	mode        compositor.VisualMode
	rendererErr string
	seq         uint64
	last        *Frame
	lastActive  time.Time
	closed      bool
	subs        map[uint64]*subscriber
	nextSub     uint64
}

// snapshotCells resolves camera focus targets against the dataset.
type snapshotCells struct {
	snapshot *dataset.Snapshot
}

func (c snapshotCells) CellCentroid(id int) (geo.LonLat, bool) {
	cell, ok := c.snapshot.Cell(id)
	if !ok {
		return geo.LonLat{}, false
	}
	return cell.Centroid(), true
}

// NewSession creates a paused session on the first historical year.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Snapshot == nil {
		return nil, ErrNoSnapshotProvided
	}
	if cfg.Flags == nil {
		cfg.Flags = noFlags{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.PlayInterval <= 0 {
		cfg.PlayInterval = DefaultPlayInterval
	}
	if cfg.ClockDelta <= 0 {
		cfg.ClockDelta = timeline.DefaultTickDelta
	}
	if cfg.BlendStep <= 0 {
		cfg.BlendStep = timeline.DefaultStepSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if cfg.Mode == "" {
		cfg.Mode = compositor.ModeDual
	}
	if _, err := compositor.ParseVisualMode(string(cfg.Mode)); err != nil {
		return nil, ErrInvalidVisualMode
	}
	toggles := geometry.DefaultToggles()
	if cfg.Toggles != nil {
		toggles = *cfg.Toggles
	}
	camCfg := camera.DefaultConfig(cfg.Snapshot.Center)
	if cfg.Camera != nil {
		camCfg = *cfg.Camera
	}

	blender := timeline.NewBlender(cfg.BlendStep)
	s := &Session{
		id:            cfg.ID,
		logger:        cfg.Logger.With().Str("session_id", cfg.ID).Logger(),
		flags:         cfg.Flags,
		metrics:       cfg.Metrics,
		frameInterval: cfg.FrameInterval,
		playInterval:  cfg.PlayInterval,
		bufferSize:    cfg.SubscriberBuffer,
		generators:    geometry.New(cfg.Scene, cfg.Snapshot),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		clock:         timeline.NewClock(cfg.ClockDelta),
		blender:       blender,
		timeline:      timeline.NewController(cfg.Snapshot.Series, blender),
		camera:        camera.NewController(camCfg, snapshotCells{snapshot: cfg.Snapshot}),
		toggles:       toggles,
		mode:          cfg.Mode,
		lastActive:    time.Now(),
		subs:          make(map[uint64]*subscriber),
	}
	s.selection = selection.New(selection.Config{
		Fetcher:  cfg.Details,
		Logger:   s.logger,
		OnChange: s.poke,
	})
	s.metrics.sessionOpened()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// poke asks the run loop to publish a frame without advancing the clock.
func (s *Session) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the frame and play loops until ctx is done or the session
// is closed. Closing ctx closes the session.
func (s *Session) Run(ctx context.Context) {
	frames := time.NewTicker(s.frameInterval)
	defer frames.Stop()
	play := time.NewTicker(s.playInterval)
	defer play.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-frames.C:
			s.NextFrame()
		case <-play.C:
			s.advancePlayback()
		case <-s.wake:
			s.Publish()
		}
	}
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// NextFrame ticks the visual clock and the prediction blend, builds a
// frame and publishes it. Domain time only moves on the play interval.
func (s *Session) NextFrame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.last
	}
	s.clock.Tick()
	s.blender.Advance()
	return s.publishLocked(s.buildLocked())
}

// Publish builds and publishes a frame from the current state without
// ticking.
func (s *Session) Publish() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.last
	}
	return s.publishLocked(s.buildLocked())
}

// Current builds a frame from the current state without ticking or
// publishing it.
func (s *Session) Current() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.last
	}
	return s.buildLocked()
}

func (s *Session) advancePlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.timeline.Advance()
	}
}

// effectiveLocked applies the kill switches to the requested toggles and mode.
func (s *Session) effectiveLocked(ctx context.Context) (geometry.Toggles, compositor.VisualMode) {
	toggles, mode := s.toggles, s.mode
	if s.flags.IsPollutionFieldDisabled(ctx) {
		toggles.PollutionField = false
		toggles.PollutionColumns = false
	}
	if mode != compositor.ModeAir && s.flags.IsWaterModeDisabled(ctx) {
		mode = compositor.ModeAir
	}
	return toggles, mode
}

func (s *Session) buildLocked() *Frame {
	start := time.Now()
	s.seq++

	camMode := s.camera.Mode()
	f := &Frame{
		SessionID:     s.id,
		Seq:           s.seq,
		Status:        StatusOK,
		VisualTime:    s.clock.VisualTime(),
		Domain:        s.timeline.Snapshot(),
		Camera:        s.camera.Pose(),
		ViewMode:      camMode.String(),
		FocusedCellID: camMode.CellID(),
		Selection:     s.selection.State(),
		GeneratedAt:   start.UTC(),
	}

	if s.rendererErr != "" {
		f.Status = StatusRendererUnavailable
		f.Message = s.rendererErr
		f.Toggles = s.toggles
		f.VisualMode = s.mode
		f.Layers = []compositor.LayerDescriptor{}
		s.metrics.recordFrame(f.Status, time.Since(start), 0)
		return f
	}

	f.Toggles, f.VisualMode = s.effectiveLocked(context.Background())
	layers := compositor.ActiveLayers(f.Toggles, camMode.IsFocused(), f.VisualMode)
	f.Layers = compositor.Compose(layers, s.generators, geometry.Input{
		Domain:     f.Domain,
		VisualTime: f.VisualTime,
		Toggles:    f.Toggles,
	})

	s.metrics.recordFrame(f.Status, time.Since(start), f.PrimitiveCount())
	return f
}

// publishLocked fans the frame out. A subscriber whose buffer is full
// misses the frame; the loop never blocks on a slow reader.
func (s *Session) publishLocked(f *Frame) *Frame {
	s.last = f
	for id, sub := range s.subs {
		select {
		case sub.ch <- f:
		default:
			sub.dropped++
			s.metrics.recordDropped()
			if sub.dropped%100 == 1 {
				s.logger.Debug().Uint64("subscriber", id).Int("dropped", sub.dropped).Msg("subscriber is behind, dropping frames")
			}
		}
	}
	return f
}

// Subscribe returns a channel of published frames and a function that
// cancels the subscription. The channel is closed when the session
// closes or the subscription is cancelled.
func (s *Session) Subscribe() (<-chan *Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *Frame, s.bufferSize)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscriber{ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Close stops the clock, abandons detail fetches and closes every
// subscriber. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.clock.Stop()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
	if s.last != nil {
		last := *s.last
		last.Status = StatusClosed
		s.last = &last
	}
	close(s.done)
	s.mu.Unlock()

	s.selection.Close()
	s.metrics.sessionClosed()
	s.logger.Debug().Msg("session closed")
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastActive is the time of the most recent control call.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// control runs fn under the session lock and marks the session active.
func (s *Session) control(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = time.Now()
	return fn()
}

// Touch marks the session active.
func (s *Session) Touch() error {
	return s.control(func() error { return nil })
}

// Play starts playback.
func (s *Session) Play() error {
	return s.control(func() error {
		s.timeline.Play()
		return nil
	})
}

// Pause stops playback.
func (s *Session) Pause() error {
	return s.control(func() error {
		s.timeline.Pause()
		return nil
	})
}

// SetSpeed sets the playback speed and returns the clamped value.
func (s *Session) SetSpeed(n int) (int, error) {
	var speed int
	err := s.control(func() error {
		speed = s.timeline.SetSpeed(n)
		return nil
	})
	return speed, err
}

// SetYear selects the sample nearest to year. A scrub pauses playback.
func (s *Session) SetYear(year int, scrub bool) (dataset.TimeSample, error) {
	origin := timeline.External
	if scrub {
		origin = timeline.Scrub
	}
	var sample dataset.TimeSample
	err := s.control(func() error {
		sample = s.timeline.SetYear(year, origin)
		return nil
	})
	return sample, err
}

// Step moves one sample forward and reports whether it moved.
func (s *Session) Step() (bool, error) {
	var moved bool
	err := s.control(func() error {
		moved = s.timeline.Step()
		return nil
	})
	return moved, err
}

// SetForecastPlayback arms or disarms playing from history into the forecast.
func (s *Session) SetForecastPlayback(on bool) error {
	return s.control(func() error {
		if on && s.flags.IsForecastDisabled(context.Background()) {
			return ErrForecastDisabled
		}
		s.timeline.SetForecastPlayback(on)
		return nil
	})
}

// EnterPrediction switches to the forecast series and restarts the blend.
func (s *Session) EnterPrediction() error {
	return s.control(func() error {
		if s.flags.IsForecastDisabled(context.Background()) {
			return ErrForecastDisabled
		}
		return s.timeline.EnterPrediction()
	})
}

// ExitPrediction returns to the last historical year.
func (s *Session) ExitPrediction() error {
	return s.control(func() error {
		s.timeline.ExitPrediction()
		return nil
	})
}

// SetToggles replaces the overlay switches.
func (s *Session) SetToggles(t geometry.Toggles) error {
	return s.control(func() error {
		s.toggles = t
		return nil
	})
}

// Toggles returns the requested overlay switches.
func (s *Session) Toggles() geometry.Toggles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggles
}

// SetVisualMode selects the air, water or dual view.
func (s *Session) SetVisualMode(m compositor.VisualMode) error {
	if _, err := compositor.ParseVisualMode(string(m)); err != nil {
		return ErrInvalidVisualMode
	}
	return s.control(func() error {
		if m != compositor.ModeAir && s.flags.IsWaterModeDisabled(context.Background()) {
			return ErrWaterModeDisabled
		}
		s.mode = m
		return nil
	})
}

// FlyTo moves the camera to target.
func (s *Session) FlyTo(target camera.Pose, durationMs int) (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.FlyTo(target, durationMs), nil
	})
}

// ResetCamera returns to the overview pose.
func (s *Session) ResetCamera() (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.ResetToOverview(), nil
	})
}

// ZoomIn zooms one step in.
func (s *Session) ZoomIn() (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.ZoomIn(), nil
	})
}

// ZoomOut zooms one step out.
func (s *Session) ZoomOut() (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.ZoomOut(), nil
	})
}

// EnterFocus flies to a cell and suppresses the aggregate layers.
func (s *Session) EnterFocus(cellID int) (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.EnterFocus(cellID)
	})
}

// ExitFocus returns to the pose held before focusing.
func (s *Session) ExitFocus() (camera.Pose, error) {
	return s.cameraCall(func() (camera.Pose, error) {
		return s.camera.ExitFocus(), nil
	})
}

func (s *Session) cameraCall(fn func() (camera.Pose, error)) (camera.Pose, error) {
	var pose camera.Pose
	err := s.control(func() error {
		var err error
		pose, err = fn()
		return err
	})
	return pose, err
}

// Hover records the pick under the pointer.
func (s *Session) Hover(p *selection.Pick) error {
	return s.control(func() error {
		s.selection.Hover(p)
		return nil
	})
}

// Click selects the picked entity and starts loading its detail.
func (s *Session) Click(p *selection.Pick) error {
	return s.control(func() error {
		s.selection.Click(p)
		return nil
	})
}

// ClearSelection closes the detail panel.
func (s *Session) ClearSelection() error {
	return s.control(func() error {
		s.selection.Clear()
		return nil
	})
}

// RetryDetail refetches a failed detail.
func (s *Session) RetryDetail() error {
	return s.control(s.selection.Retry)
}

// Selection returns the selection state.
func (s *Session) Selection() selection.State {
	return s.selection.State()
}

// WaitDetail blocks until no detail fetch is in flight.
func (s *Session) WaitDetail() {
	s.selection.Wait()
}

// ReportRendererFailure switches the session to the fallback frame. The
// clocks keep running so the view resumes in step after a retry.
func (s *Session) ReportRendererFailure(reason string) error {
	if reason == "" {
		reason = "renderer unavailable"
	}
	return s.control(func() error {
		if s.rendererErr == "" {
			s.logger.Warn().Str("reason", reason).Msg("renderer failed")
		}
		s.rendererErr = reason
		return nil
	})
}

// RetryRenderer leaves the fallback state. Retries are only ever user-initiated.
func (s *Session) RetryRenderer() error {
	return s.control(func() error {
		if s.rendererErr == "" {
			return ErrRendererHealthy
		}
		s.rendererErr = ""
		s.logger.Info().Msg("renderer retry requested")
		return nil
	})
}
