package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !response.DecodeOrBadRequest(w, r, &req) {
		return
	}

	if len(req.Updates) == 0 {
		response.BadRequest(w, r, "no flag updates given", []models.FieldError{
			{Field: "updates", Message: "at least one update is required", Code: models.CodeRequired},
		})
		return
	}

	var fieldErrors []models.FieldError
	for i, u := range req.Updates {
		field := fmt.Sprintf("updates[%d]", i)
		switch {
		case u.Key == "":
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".key", Message: "key is required", Code: models.CodeRequired})
		case u.Value == nil:
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".value", Message: "value is required", Code: models.CodeRequired})
		default:
			if _, err := featureflags.NewFlag(u.Key, u.Value); err != nil {
				f := field + ".value"
				if errors.Is(err, featureflags.ErrUnknownFlag) {
					f = field + ".key"
				}
				fieldErrors = append(fieldErrors, models.FieldError{Field: f, Message: err.Error(), Code: models.CodeInvalid})
			}
		}
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid flag updates", fieldErrors)
		return
	}

	if err := h.service.SetFlags(r.Context(), req.Updates...); err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	keys := make([]string, len(req.Updates))
	for i, u := range req.Updates {
		keys[i] = u.Key
	}
	h.logger.Info().
		Strs("keys", keys).
		Str("reason", req.Reason).
		Msg("feature flags updated")

	response.JSON(w, r, http.StatusOK, h.list(r))
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key} - revert a flag to its default.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.Reset(r.Context(), key); err != nil {
		if errors.Is(err, featureflags.ErrUnknownFlag) {
			response.NotFound(w, r, "feature flag not found")
			return
		}
		h.logger.Error().Err(err).Str("flag", key).Msg("failed to reset feature flag")
		response.InternalError(w, r, "failed to reset feature flag")
		return
	}

	h.logger.Info().Str("flag", key).Msg("feature flag reset to default")
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) list(r *http.Request) featureflags.FlagList {
	all := h.service.GetAllFlags(r.Context())
	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(all))}
	for _, f := range all {
		list.Items = append(list.Items, *f)
	}
	sort.Slice(list.Items, func(i, k int) bool {
		return list.Items[i].Key < list.Items[k].Key
	})
	return list
}
