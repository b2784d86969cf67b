package urbanapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/dataset/urbanapi"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/polyline"
)

func fixtureServer(t *testing.T, overrides map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	river := polyline.Encode([]geo.LonLat{geo.Pt(77.20, 28.70), geo.Pt(77.25, 28.60), geo.Pt(77.30, 28.50)})

	fixtures := map[string]any{
		"/v1/metro": map[string]any{"name": "Delhi NCR", "center": []float64{77.209, 28.6139}},
		"/v1/series": map[string]any{
			"historical": []map[string]any{
				{"year": 2015, "population": 20.5e6, "builtUpArea": 790, "nightLightIndex": 0.63, "growthBuiltUp": 0.48},
				{"year": 2020, "population": 22.8e6, "builtUpArea": 880, "nightLightIndex": 0.71, "growthBuiltUp": 0.54},
			},
			"forecast": []map[string]any{
				{"year": 2030, "population": 28e6, "builtUpArea": 1100, "nightLightIndex": 0.86, "growthBuiltUp": 0.68, "confidence": 0.82},
			},
		},
		"/v1/cells": map[string]any{
			"type": "FeatureCollection",
			"features": []map[string]any{
				{
					"id":         1,
					"geometry":   map[string]any{"type": "Polygon", "coordinates": [][][]float64{{{77.1, 28.5}, {77.2, 28.5}, {77.2, 28.6}, {77.1, 28.5}}}},
					"properties": map[string]any{"name": "Ward 01", "opportunityScore": 0.35, "housingPressure": 0.7, "populationDensity": 21000},
				},
				{
					"id":         2,
					"geometry":   map[string]any{"type": "Polygon", "coordinates": [][][]float64{{{77.3, 28.5}, {77.4, 28.5}, {77.4, 28.6}}}},
					"properties": map[string]any{"name": "Ward 02", "opportunityScore": nil},
				},
				{"id": 3, "geometry": nil, "properties": map[string]any{"name": "No geometry"}},
				{"geometry": map[string]any{"type": "Polygon", "coordinates": [][][]float64{{{0, 0}, {1, 0}, {0, 1}}}}},
				{"id": 5, "geometry": map[string]any{"type": "Point", "coordinates": [][][]float64{}}},
			},
		},
		"/v1/reference": map[string]any{
			"rivers": []map[string]any{
				{"name": "Yamuna", "polyline": river, "pollutionLevel": 32},
				{"name": "Dry", "polyline": "", "pollutionLevel": 1},
			},
			"catchments": []map[string]any{{"name": "Okhla Basin", "river": "Yamuna", "center": []float64{77.295, 28.535}, "radiusMeters": 3800}},
			"riskZones": []map[string]any{
				{"name": "Floodplain", "center": []float64{77.26, 28.62}, "radiusMeters": 2500, "population": 410000, "urgency": "IMMEDIATE", "interventions": []string{"Relocation"}},
			},
		},
		"/v1/entities/cell/1": map[string]any{
			"title":   "Ward 01",
			"summary": "medium opportunity",
			"metrics": map[string]any{"opportunityScore": 0.35, "schools": nil},
		},
		"/v1/entities/zone/Yamuna Floodplain": map[string]any{"title": "Yamuna Floodplain", "interventions": []string{"Relocation"}},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		if h, ok := overrides[r.URL.Path]; ok {
			h(w, r)
			return
		}
		body, ok := fixtures[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func newClient(t *testing.T, server *httptest.Server) *urbanapi.Client {
	t.Helper()
	c, err := urbanapi.NewClient(urbanapi.Config{
		BaseURL:    server.URL,
		APIKey:     "secret",
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestClient_FetchSnapshot(t *testing.T) {
	server := fixtureServer(t, nil)
	defer server.Close()

	snapshot, err := newClient(t, server).FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, urbanapi.ProviderName, snapshot.Provider)
	assert.Equal(t, geo.Pt(77.209, 28.6139), snapshot.Center)

	require.Len(t, snapshot.Series.Historical, 2)
	require.Len(t, snapshot.Series.Forecast, 1)
	assert.Equal(t, dataset.KindPredicted, snapshot.Series.Forecast[0].Kind)
	assert.Equal(t, dataset.Known(0.82), snapshot.Series.Forecast[0].Confidence)
	assert.False(t, snapshot.Series.Historical[0].Confidence.Known)

	require.Len(t, snapshot.Cells, 2, "features without id or polygon are skipped")
	assert.Equal(t, "Ward 01", snapshot.Cells[0].Name)
	assert.Len(t, snapshot.Cells[0].Polygon, 3)
	assert.Equal(t, dataset.Known(21000), snapshot.Cells[0].PopulationDensity)
	assert.False(t, snapshot.Cells[1].OpportunityScore.Known)
	assert.False(t, snapshot.Cells[1].HousingPressure.Known)
	assert.Equal(t, dataset.CategoryUnknown, snapshot.Cells[1].Category())

	require.Len(t, snapshot.Rivers, 1, "river without a path is skipped")
	assert.Len(t, snapshot.Rivers[0].Path, 3)
	assert.InDelta(t, 77.25, snapshot.Rivers[0].Path[1].Lon, 1e-5)
	assert.Equal(t, dataset.StatusCritical, snapshot.Rivers[0].Status())

	require.Len(t, snapshot.Catchments, 1)
	require.Len(t, snapshot.RiskZones, 1)
	assert.Equal(t, dataset.UrgencyImmediate, snapshot.RiskZones[0].Urgency)
}

func TestClient_FetchSnapshot_SkipsMalformedFeatures(t *testing.T) {
	server := fixtureServer(t, map[string]http.HandlerFunc{
		"/v1/cells": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
				{"id":1,"geometry":{"type":"Polygon","coordinates":[[[77.1,28.5],[77.2,28.5],[77.2,28.6],[77.1,28.5]]]},"properties":{"name":"Ward 01"}},
				{"id":2,"geometry":{"type":"MultiPolygon","coordinates":[[[[77.3,28.5],[77.4,28.5],[77.4,28.6]]]]},"properties":{"name":"Islands"}},
				{"id":"ward-3","geometry":{"type":"Polygon","coordinates":[[[77.5,28.5],[77.6,28.5],[77.6,28.6]]]}},
				{"id":4,"geometry":{"type":"Polygon","coordinates":"not coordinates"}},
				{"id":5,"geometry":{"type":"Polygon","coordinates":[[[77.7,28.5],[77.8,28.5],[77.8,28.6]]]},"properties":{"name":"Ward 05"}}
			]}`))
		},
	})
	defer server.Close()

	snapshot, err := newClient(t, server).FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Cells, 2)
	assert.Equal(t, 1, snapshot.Cells[0].ID)
	assert.Equal(t, 5, snapshot.Cells[1].ID)
	assert.Equal(t, "Ward 05", snapshot.Cells[1].Name)
}

func TestClient_FetchSnapshot_InvalidSeries(t *testing.T) {
	server := fixtureServer(t, map[string]http.HandlerFunc{
		"/v1/series": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"historical":[{"year":2020},{"year":2010}],"forecast":[]}`))
		},
	})
	defer server.Close()

	_, err := newClient(t, server).FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, dataset.ErrInvalidSeries)
}

func TestClient_FetchSnapshot_UpstreamError(t *testing.T) {
	server := fixtureServer(t, map[string]http.HandlerFunc{
		"/v1/cells": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		},
	})
	defer server.Close()

	_, err := newClient(t, server).FetchSnapshot(context.Background())
	require.ErrorIs(t, err, urbanapi.ErrUpstream)
	assert.Contains(t, err.Error(), "/v1/cells")
	assert.Contains(t, err.Error(), "503")
}

func TestClient_FetchSnapshot_MalformedBody(t *testing.T) {
	server := fixtureServer(t, map[string]http.HandlerFunc{
		"/v1/metro": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"center":`))
		},
	})
	defer server.Close()

	_, err := newClient(t, server).FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, urbanapi.ErrUpstream)
}

func TestClient_FetchDetail(t *testing.T) {
	server := fixtureServer(t, nil)
	defer server.Close()
	c := newClient(t, server)

	detail, err := c.FetchDetail(context.Background(), dataset.CellRef(1))
	require.NoError(t, err)
	assert.Equal(t, "Ward 01", detail.Title)
	assert.Equal(t, dataset.Known(0.35), detail.Metrics["opportunityScore"])
	assert.False(t, detail.Metrics["schools"].Known)

	detail, err = c.FetchDetail(context.Background(), dataset.ZoneRef("Yamuna Floodplain"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Relocation"}, detail.Interventions)

	_, err = c.FetchDetail(context.Background(), dataset.RiverRef("Unknown"))
	assert.ErrorIs(t, err, dataset.ErrEntityNotFound)

	_, err = c.FetchDetail(context.Background(), dataset.EntityRef{})
	assert.ErrorIs(t, err, dataset.ErrEntityNotFound)
}

func TestNewClient_DefaultsToResilienceClient(t *testing.T) {
	registry := resilience.NewRegistry()
	_, err := urbanapi.NewClient(urbanapi.Config{BaseURL: "https://urban.example.com", Registry: registry})
	require.NoError(t, err)
	assert.NotNil(t, registry.GetHealth(urbanapi.ProviderName))

	_, err = urbanapi.NewClient(urbanapi.Config{BaseURL: "not a url"})
	assert.Error(t, err)
}
