package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/engine"
	"github.com/urbanscope/urbanscope/internal/selection"
	"github.com/urbanscope/urbanscope/internal/timeline"
)

// SessionsHandler handles view session endpoints.
type SessionsHandler struct {
	manager *engine.Manager
	logger  zerolog.Logger
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(manager *engine.Manager, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{manager: manager, logger: logger}
}

func sessionPath(id string) string {
	return "/v1/sessions/" + id
}

// CreateSession handles POST /v1/sessions - open a view session.
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}

	opts := engine.SessionOptions{Toggles: req.Toggles, Year: req.Year}
	if req.Mode != "" {
		mode, err := compositor.ParseVisualMode(req.Mode)
		if err != nil {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "mode", Message: "must be air, water or dual", Code: models.CodeInvalid},
			})
			return
		}
		opts.Mode = mode
	}

	s, err := h.manager.Create(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	location := sessionPath(s.ID())
	response.Created(w, r, location, models.SessionCreated{
		ID:        s.ID(),
		StreamURL: location + "/stream",
		Frame:     s.Current(),
	})
}

// GetSession handles GET /v1/sessions/{sessionID} - the current frame.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, s.Current())
}

// CloseSession handles DELETE /v1/sessions/{sessionID}.
func (h *SessionsHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Play handles POST /v1/sessions/{sessionID}/play.
func (h *SessionsHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).Play)
}

// Pause handles POST /v1/sessions/{sessionID}/pause.
func (h *SessionsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).Pause)
}

// SetSpeed handles PUT /v1/sessions/{sessionID}/speed.
func (h *SessionsHandler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.SpeedRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	speed, err := s.SetSpeed(req.Speed)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.SpeedResponse{Speed: speed})
}

// SetYear handles PUT /v1/sessions/{sessionID}/year. Years outside the
// series select the nearest sample rather than failing.
func (h *SessionsHandler) SetYear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.YearRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	sample, err := s.SetYear(req.Year, req.Scrub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.YearResponse{Sample: sample})
}

// Step handles POST /v1/sessions/{sessionID}/step.
func (h *SessionsHandler) Step(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	moved, err := s.Step()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.StepResponse{Moved: moved})
}

// SetForecastPlayback handles PUT /v1/sessions/{sessionID}/forecast-playback.
func (h *SessionsHandler) SetForecastPlayback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.ForecastPlaybackRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	if err := s.SetForecastPlayback(req.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// EnterPrediction handles POST /v1/sessions/{sessionID}/prediction.
func (h *SessionsHandler) EnterPrediction(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).EnterPrediction)
}

// ExitPrediction handles DELETE /v1/sessions/{sessionID}/prediction.
func (h *SessionsHandler) ExitPrediction(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).ExitPrediction)
}

// SetToggles handles PATCH /v1/sessions/{sessionID}/toggles. Switches left
// out of the body keep their current value.
func (h *SessionsHandler) SetToggles(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	toggles := s.Toggles()
	if !response.DecodeOrBadRequest(w, r, &toggles) {
		return
	}
	if err := s.SetToggles(toggles); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toggles)
}

// SetVisualMode handles PUT /v1/sessions/{sessionID}/mode.
func (h *SessionsHandler) SetVisualMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.ModeRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	if err := s.SetVisualMode(compositor.VisualMode(req.Mode)); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// FlyTo handles POST /v1/sessions/{sessionID}/camera/fly-to.
func (h *SessionsHandler) FlyTo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.FlyToRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	if req.DurationMs < 0 {
		response.BadRequest(w, r, "invalid duration", []models.FieldError{
			{Field: "durationMs", Message: "must not be negative", Code: models.CodeOutOfRange},
		})
		return
	}
	h.cameraControl(w, r, s, func() (camera.Pose, error) { return s.FlyTo(req.Target, req.DurationMs) })
}

// ResetCamera handles POST /v1/sessions/{sessionID}/camera/reset.
func (h *SessionsHandler) ResetCamera(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.cameraControl(w, r, s, s.ResetCamera)
}

// Zoom handles POST /v1/sessions/{sessionID}/camera/zoom.
func (h *SessionsHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.ZoomRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	switch req.Direction {
	case models.ZoomIn:
		h.cameraControl(w, r, s, s.ZoomIn)
	case models.ZoomOut:
		h.cameraControl(w, r, s, s.ZoomOut)
	default:
		response.BadRequest(w, r, "invalid zoom direction", []models.FieldError{
			{Field: "direction", Message: "must be in or out", Code: models.CodeInvalid},
		})
	}
}

// EnterFocus handles POST /v1/sessions/{sessionID}/focus.
func (h *SessionsHandler) EnterFocus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.FocusRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	h.cameraControl(w, r, s, func() (camera.Pose, error) { return s.EnterFocus(req.CellID) })
}

// ExitFocus handles DELETE /v1/sessions/{sessionID}/focus.
func (h *SessionsHandler) ExitFocus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.cameraControl(w, r, s, s.ExitFocus)
}

// Hover handles POST /v1/sessions/{sessionID}/pick/hover.
func (h *SessionsHandler) Hover(w http.ResponseWriter, r *http.Request) {
	h.pick(w, r, (*engine.Session).Hover)
}

// Click handles POST /v1/sessions/{sessionID}/pick/click. The detail
// loads in the background and arrives on the frame stream.
func (h *SessionsHandler) Click(w http.ResponseWriter, r *http.Request) {
	h.pick(w, r, (*engine.Session).Click)
}

// GetSelection handles GET /v1/sessions/{sessionID}/selection.
func (h *SessionsHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, s.Selection())
}

// ClearSelection handles DELETE /v1/sessions/{sessionID}/selection.
func (h *SessionsHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).ClearSelection)
}

// RetryDetail handles POST /v1/sessions/{sessionID}/selection/retry.
func (h *SessionsHandler) RetryDetail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RetryDetail(); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusAccepted, s.Selection())
}

// ReportRendererFailure handles POST /v1/sessions/{sessionID}/renderer.
func (h *SessionsHandler) ReportRendererFailure(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.RendererFailureRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	if err := s.ReportRendererFailure(req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// RetryRenderer handles DELETE /v1/sessions/{sessionID}/renderer.
func (h *SessionsHandler) RetryRenderer(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, (*engine.Session).RetryRenderer)
}

func (h *SessionsHandler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

// control runs a bodiless control and answers 204.
func (h *SessionsHandler) control(w http.ResponseWriter, r *http.Request, fn func(*engine.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *SessionsHandler) pick(w http.ResponseWriter, r *http.Request, fn func(*engine.Session, *selection.Pick) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req models.PickRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}
	if err := fn(s, req.Pick); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, s.Selection())
}

func (h *SessionsHandler) cameraControl(w http.ResponseWriter, r *http.Request, s *engine.Session, fn func() (camera.Pose, error)) {
	pose, err := fn()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := models.CameraResponse{Camera: pose}
	if frame := s.Current(); frame != nil {
		resp.ViewMode = frame.ViewMode
		resp.FocusedCellID = frame.FocusedCellID
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// writeError maps engine errors onto problem responses.
func (h *SessionsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		response.NotFound(w, r, "session not found")
	case errors.Is(err, camera.ErrUnknownCell):
		response.NotFound(w, r, "cell not found")
	case errors.Is(err, engine.ErrInvalidVisualMode):
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "mode", Message: "must be air, water or dual", Code: models.CodeInvalid},
		})
	case errors.Is(err, engine.ErrForecastDisabled), errors.Is(err, engine.ErrWaterModeDisabled):
		response.FeatureDisabled(w, r, err.Error())
	case errors.Is(err, engine.ErrSessionClosed),
		errors.Is(err, engine.ErrRendererHealthy),
		errors.Is(err, selection.ErrNothingToRetry),
		errors.Is(err, timeline.ErrNoForecast):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, engine.ErrTooManySessions):
		response.TooManyRequests(w, r, "too many open sessions")
	case errors.Is(err, engine.ErrManagerShutdown):
		response.ServiceUnavailable(w, r, "server is shutting down")
	case errors.Is(err, engine.ErrNoSnapshotProvided), errors.Is(err, dataset.ErrProviderUnavailable):
		h.logger.Warn().Err(err).Msg("dataset unavailable")
		response.ServiceUnavailable(w, r, "dataset is not available")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("session control failed")
		response.InternalError(w, r, "internal error")
	}
}
