package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/worker"
)

// DatasetAdmin is the part of the dataset service driven by admin calls.
type DatasetAdmin interface {
	DatasetStatus
	InvalidateCache()
}

// AdminHandler handles dataset maintenance endpoints.
type AdminHandler struct {
	refresh *worker.RefreshJob
	dataset DatasetAdmin
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(refresh *worker.RefreshJob, ds DatasetAdmin, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{refresh: refresh, dataset: ds, logger: logger}
}

// RefreshDataset handles POST /v1/admin/dataset/refresh. With
// ?invalidate=true the cached snapshot is dropped first, so a failing
// provider is reported instead of masked by stale data. Open sessions keep
// the snapshot they were created with.
func (h *AdminHandler) RefreshDataset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("invalidate") == "true" {
		h.dataset.InvalidateCache()
	}

	result := h.refresh.RunTarget(r.Context(), worker.DatasetTargetName)

	body := models.DatasetRefreshResult{
		Successful: result.Successful,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Dataset:    h.dataset.CacheStatus(),
	}
	for _, e := range result.Errors {
		body.Errors = append(body.Errors, e.Target+": "+e.Error)
	}

	h.logger.Info().
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Strs("skipped", result.Skipped).
		Msg("dataset refresh requested")

	status := http.StatusOK
	if result.Failed > 0 {
		status = http.StatusBadGateway
	}
	response.JSON(w, r, status, body)
}
