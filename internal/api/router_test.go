package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/api"
	"github.com/urbanscope/urbanscope/internal/api/handler"
	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/engine"
	"github.com/urbanscope/urbanscope/internal/featureflags"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/selection"
)

type testEnv struct {
	server   *httptest.Server
	dataset  *dataset.Service
	flags    *featureflags.Service
	sessions *engine.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	ds := dataset.NewService(dataset.ServiceConfig{
		Provider: dataset.NewBundledProvider(),
		Logger:   logger,
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewMemoryRepository(),
		Logger:     logger,
	})
	sessions := engine.NewManager(engine.ManagerConfig{
		Dataset:       ds,
		Scene:         geometry.Default(),
		Flags:         flags,
		Limiter:       flags,
		Logger:        logger,
		FrameInterval: 20 * time.Millisecond,
		PlayInterval:  time.Hour,
	})
	t.Cleanup(sessions.Shutdown)

	router := api.NewRouter(api.RouterConfig{
		Version:        "test",
		BuildTime:      "now",
		Logger:         logger,
		Sessions:       sessions,
		Dataset:        ds,
		Flags:          flags,
		AllowAnyOrigin: true,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, dataset: ds, flags: flags, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// frameView is the part of a frame the tests look at.
type frameView struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	ViewMode      string `json:"viewMode"`
	FocusedCellID int    `json:"focusedCellId"`
	VisualMode    string `json:"visualMode"`
	Domain        struct {
		Current   dataset.TimeSample `json:"current"`
		Predicted bool               `json:"predicted"`
		State     string             `json:"state"`
		Speed     int                `json:"speed"`
	} `json:"domain"`
	Toggles geometry.Toggles `json:"toggles"`
	Layers  []struct {
		ID string `json:"id"`
	} `json:"layers"`
}

type createdView struct {
	ID        string    `json:"id"`
	StreamURL string    `json:"streamUrl"`
	Frame     frameView `json:"frame"`
}

func (e *testEnv) createSession(t *testing.T, req models.CreateSessionRequest) createdView {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/sessions", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[createdView](t, resp)
}

func TestOpsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("health", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/ops/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

		health := decode[models.Health](t, resp)
		assert.Equal(t, models.HealthStatusOK, health.Status)
		assert.Equal(t, "test", health.Details["version"])
	})

	t.Run("not ready before the dataset loads", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/ops/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("ready after the dataset loads", func(t *testing.T) {
		env.createSession(t, models.CreateSessionRequest{})

		resp := env.do(t, http.MethodGet, "/v1/ops/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("status", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/ops/status", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		status := decode[models.SystemStatus](t, resp)
		assert.Equal(t, models.HealthStatusOK, status.Status)
		assert.True(t, status.Dataset.HasData)
		assert.Equal(t, dataset.BundledProviderName, status.Dataset.Provider)
		assert.Equal(t, 1, status.Sessions.Open)
		assert.Equal(t, 500, status.Sessions.Limit)
		assert.Empty(t, status.ActiveDegradationFlags)
		assert.Contains(t, status.Refresh, "total_runs")
	})
}

func TestMetadataEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("layers", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/metadata/layers", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotEmpty(t, body.Items)
	})

	t.Run("series", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/metadata/series", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var series models.Series
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&series))
		require.NotEmpty(t, series.Historical)
		require.NotEmpty(t, series.Forecast)
		assert.Equal(t, 2000, series.Historical[0].Year)
		assert.Equal(t, dataset.BundledProviderName, series.Provider)
	})

	t.Run("enums", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/v1/metadata/enums", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		enums := decode[models.Enums](t, resp)
		assert.Len(t, enums.VisualModes, 3)
		assert.Equal(t, models.SpeedRange{Min: 1, Max: 8}, enums.Speed)
	})
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.createSession(t, models.CreateSessionRequest{Mode: "air", Year: 2010})
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/v1/sessions/"+created.ID+"/stream", created.StreamURL)
	assert.Equal(t, created.ID, created.Frame.SessionID)
	assert.Equal(t, "air", created.Frame.VisualMode)
	assert.Equal(t, 2010, created.Frame.Domain.Current.Year)
	assert.Equal(t, "overview", created.Frame.ViewMode)

	path := "/v1/sessions/" + created.ID

	resp := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decode[frameView](t, resp).SessionID)

	resp = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, models.ProblemTypeNotFound, decode[models.Problem](t, resp).Type)
}

func TestCreateSession_Validation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unknown mode", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/v1/sessions", models.CreateSessionRequest{Mode: "fire"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		problem := decode[models.Problem](t, resp)
		require.Len(t, problem.Errors, 1)
		assert.Equal(t, "mode", problem.Errors[0].Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/sessions", strings.NewReader(`{"mode":`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong content type", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/sessions", strings.NewReader(`mode=air`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("session limit", func(t *testing.T) {
		require.NoError(t, env.flags.Set(t.Context(), featureflags.FlagMaxSessions, 1))
		env.createSession(t, models.CreateSessionRequest{})

		resp := env.do(t, http.MethodPost, "/v1/sessions", models.CreateSessionRequest{})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})
}

func TestTimelineControls(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/sessions/" + env.createSession(t, models.CreateSessionRequest{}).ID

	t.Run("speed is clamped", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path+"/speed", models.SpeedRequest{Speed: 99})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 8, decode[models.SpeedResponse](t, resp).Speed)
	})

	t.Run("year out of range selects the nearest sample", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path+"/year", models.YearRequest{Year: 1900, Scrub: true})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2000, decode[models.YearResponse](t, resp).Sample.Year)
	})

	t.Run("step", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, path+"/step", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[models.StepResponse](t, resp).Moved)
	})

	t.Run("play and pause", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, path+"/play", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "playing", decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Domain.State)

		resp = env.do(t, http.MethodPost, path+"/pause", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "paused", decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Domain.State)
	})

	t.Run("prediction", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, path+"/prediction", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.True(t, decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Domain.Predicted)

		resp = env.do(t, http.MethodDelete, path+"/prediction", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.False(t, decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Domain.Predicted)
	})

	t.Run("forecast switched off", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
			Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagDisableForecast, Value: true}},
			Reason:  "test",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodPost, path+"/prediction", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, models.ProblemTypeFeatureDisabled, decode[models.Problem](t, resp).Type)

		resp = env.do(t, http.MethodPut, path+"/forecast-playback", models.ForecastPlaybackRequest{Enabled: true})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestLayerControls(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/sessions/" + env.createSession(t, models.CreateSessionRequest{}).ID

	t.Run("toggles keep unspecified switches", func(t *testing.T) {
		before := decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Toggles

		resp := env.do(t, http.MethodPatch, path+"/toggles", map[string]bool{"rivers": !before.Rivers})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		after := decode[geometry.Toggles](t, resp)
		assert.Equal(t, !before.Rivers, after.Rivers)
		assert.Equal(t, before.Density, after.Density)
	})

	t.Run("mode", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path+"/mode", models.ModeRequest{Mode: "water"})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "water", decode[frameView](t, env.do(t, http.MethodGet, path, nil)).VisualMode)

		resp = env.do(t, http.MethodPut, path+"/mode", models.ModeRequest{Mode: "fire"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCameraControls(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/sessions/" + env.createSession(t, models.CreateSessionRequest{}).ID

	resp := env.do(t, http.MethodPost, path+"/camera/zoom", models.ZoomRequest{Direction: models.ZoomIn})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	zoomed := decode[models.CameraResponse](t, resp)

	resp = env.do(t, http.MethodPost, path+"/camera/zoom", models.ZoomRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/camera/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, decode[models.CameraResponse](t, resp).Camera.Zoom, zoomed.Camera.Zoom)

	resp = env.do(t, http.MethodPost, path+"/focus", models.FocusRequest{CellID: 7})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	focused := decode[models.CameraResponse](t, resp)
	assert.Equal(t, "focused", focused.ViewMode)
	assert.Equal(t, 7, focused.FocusedCellID)
	assert.Zero(t, focused.Camera.Pitch)

	resp = env.do(t, http.MethodPost, path+"/focus", models.FocusRequest{CellID: 9999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path+"/focus", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "overview", decode[models.CameraResponse](t, resp).ViewMode)

	resp = env.do(t, http.MethodPost, path+"/camera/fly-to", models.FlyToRequest{DurationMs: -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectionControls(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/sessions/" + env.createSession(t, models.CreateSessionRequest{}).ID
	ref := dataset.CellRef(7)

	resp := env.do(t, http.MethodPost, path+"/pick/hover", models.PickRequest{
		Pick: &selection.Pick{Layer: "opportunity-cells", Index: 3, Ref: &ref},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[selection.State](t, resp)
	require.NotNil(t, state.Hovered)
	assert.Equal(t, 3, state.Hovered.Index)

	resp = env.do(t, http.MethodPost, path+"/pick/click", models.PickRequest{
		Pick: &selection.Pick{Layer: "opportunity-cells", Index: 3, Ref: &ref},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		resp := env.do(t, http.MethodGet, path+"/selection", nil)
		return decode[selection.State](t, resp).Detail.Status == selection.DetailReady
	}, 2*time.Second, 10*time.Millisecond)

	resp = env.do(t, http.MethodPost, path+"/selection/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path+"/selection", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, decode[selection.State](t, env.do(t, http.MethodGet, path+"/selection", nil)).Selected)
}

func TestRendererFallback(t *testing.T) {
	env := newTestEnv(t)
	path := "/v1/sessions/" + env.createSession(t, models.CreateSessionRequest{}).ID

	resp := env.do(t, http.MethodDelete, path+"/renderer", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/renderer", models.RendererFailureRequest{Reason: "webgl context lost"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	frame := decode[frameView](t, env.do(t, http.MethodGet, path, nil))
	assert.Equal(t, string(engine.StatusRendererUnavailable), frame.Status)
	assert.Empty(t, frame.Layers)

	resp = env.do(t, http.MethodDelete, path+"/renderer", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, string(engine.StatusOK), decode[frameView](t, env.do(t, http.MethodGet, path, nil)).Status)
}

func TestFeatureFlagAdmin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/admin/feature-flags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[featureflags.FlagList](t, resp)
	assert.Len(t, list.Items, len(featureflags.DefaultFlags()))

	resp = env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagDisableWaterMode, Value: true}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.flags.IsWaterModeDisabled(t.Context()))

	resp = env.do(t, http.MethodGet, "/v1/ops/status", nil)
	status := decode[models.SystemStatus](t, resp)
	assert.Contains(t, status.ActiveDegradationFlags, featureflags.FlagDisableWaterMode)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)

	resp = env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagMaxSessions, Value: "lots"}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	problem := decode[models.Problem](t, resp)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "updates[0].value", problem.Errors[0].Field)

	resp = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagDisableWaterMode, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, env.flags.IsWaterModeDisabled(t.Context()))

	resp = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/disable_everything", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDatasetRefreshAdmin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/admin/dataset/refresh?invalidate=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[models.DatasetRefreshResult](t, resp)
	assert.Equal(t, 1, result.Successful)
	assert.Zero(t, result.Failed)
	assert.True(t, result.Dataset.HasData)
	assert.True(t, env.dataset.CacheStatus().HasData)
}

func TestFrameStream(t *testing.T) {
	env := newTestEnv(t)
	created := env.createSession(t, models.CreateSessionRequest{})

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + created.StreamURL
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	readMessage := func() (string, frameView) {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type    string    `json:"type"`
			Payload frameView `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg.Type, msg.Payload
	}

	typ, frame := readMessage()
	assert.Equal(t, handler.MessageFrame, typ)
	assert.Equal(t, created.ID, frame.SessionID)

	// Frames keep arriving from the session loop.
	typ, _ = readMessage()
	assert.Equal(t, handler.MessageFrame, typ)

	closeResp := env.do(t, http.MethodDelete, "/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, closeResp.StatusCode)

	for {
		typ, _ := readMessage()
		if typ == handler.MessageClosed {
			break
		}
	}
}

func TestFrameStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/sessions/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
