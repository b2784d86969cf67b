package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/timeline"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	dataset dataset.SnapshotSource
	logger  zerolog.Logger
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(source dataset.SnapshotSource, logger zerolog.Logger) *MetadataHandler {
	return &MetadataHandler{dataset: source, logger: logger}
}

// ListLayers handles GET /v1/metadata/layers - the layer catalog in paint order.
func (h *MetadataHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.LayerList{Items: compositor.Catalog()})
}

// GetSeries handles GET /v1/metadata/series - the historical and forecast samples.
func (h *MetadataHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.dataset.GetSnapshot(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("series unavailable")
		response.ServiceUnavailable(w, r, "dataset is not available")
		return
	}
	response.JSON(w, r, http.StatusOK, models.Series{
		Historical: snapshot.Series.Historical,
		Forecast:   snapshot.Series.Forecast,
		Provider:   snapshot.Provider,
		FetchedAt:  models.Timestamp(snapshot.FetchedAt),
	})
}

// GetEnums handles GET /v1/metadata/enums - get enum values used by the API.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		VisualModes: []compositor.VisualMode{
			compositor.ModeAir,
			compositor.ModeWater,
			compositor.ModeDual,
		},
		PlayStates: []timeline.PlayState{
			timeline.Paused,
			timeline.Playing,
		},
		EntityKinds: []dataset.EntityKind{
			dataset.EntityCell,
			dataset.EntityRiver,
			dataset.EntityZone,
		},
		Speed: models.SpeedRange{Min: timeline.MinSpeed, Max: timeline.MaxSpeed},
	}
	response.JSON(w, r, http.StatusOK, enums)
}
