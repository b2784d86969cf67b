// Package urbanapi loads the dataset from an HTTP indicator service: a
// cell FeatureCollection, the yearly series, reference layers with
// encoded-polyline rivers, and per-entity detail records.
package urbanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
	"github.com/urbanscope/urbanscope/pkg/geo"
)

// ProviderName identifies snapshots and the resilience client.
const ProviderName = "urban-api"

// ErrUpstream wraps non-success responses.
var ErrUpstream = errors.New("urban api request failed")

// HTTPDoer is satisfied by *resilience.Client and *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the urban API client.
type Config struct {
	BaseURL string
	APIKey  string

	// HTTPClient defaults to a resilience client registered in Registry.
	HTTPClient HTTPDoer
	Registry   *resilience.Registry

	Logger zerolog.Logger
}

// Client implements dataset.Provider and dataset.DetailFetcher.
type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
	logger  zerolog.Logger
	now     func() time.Time
}

// NewClient creates an urban API client.
func NewClient(cfg Config) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("urban api base url: %w", err)
	}
	doer := cfg.HTTPClient
	if doer == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		doer = resilience.NewClient(rc)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    doer,
		logger:  cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:     time.Now,
	}, nil
}

// FetchSnapshot loads every collection and assembles a snapshot. Cells
// without usable geometry are skipped; missing optional fields are unknown.
func (c *Client) FetchSnapshot(ctx context.Context) (*dataset.Snapshot, error) {
	var metro metroResponse
	if err := c.getJSON(ctx, "/v1/metro", &metro); err != nil {
		return nil, err
	}
	var series seriesResponse
	if err := c.getJSON(ctx, "/v1/series", &series); err != nil {
		return nil, err
	}
	var cells featureCollection
	if err := c.getJSON(ctx, "/v1/cells", &cells); err != nil {
		return nil, err
	}
	var ref referenceResponse
	if err := c.getJSON(ctx, "/v1/reference", &ref); err != nil {
		return nil, err
	}

	s := series.toSeries()
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &dataset.Snapshot{
		Center:     geo.Pt(metro.Center[0], metro.Center[1]),
		Series:     s,
		Cells:      c.toCells(cells),
		Rivers:     c.toRivers(ref.Rivers),
		Catchments: ref.toCatchments(),
		RiskZones:  ref.toRiskZones(),
		FetchedAt:  c.now(),
		Provider:   ProviderName,
	}, nil
}

// FetchDetail loads one entity's detail record.
func (c *Client) FetchDetail(ctx context.Context, ref dataset.EntityRef) (*dataset.Detail, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %s", dataset.ErrEntityNotFound, ref.Key())
	}
	id := ref.Name
	if ref.Kind == dataset.EntityCell {
		id = strconv.Itoa(ref.CellID)
	}
	path := "/v1/entities/" + url.PathEscape(string(ref.Kind)) + "/" + url.PathEscape(id)

	var body detailResponse
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return &dataset.Detail{
		Ref:           ref,
		Title:         body.Title,
		Summary:       body.Summary,
		Metrics:       body.Metrics,
		Interventions: body.Interventions,
		FetchedAt:     c.now(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", dataset.ErrEntityNotFound, path)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", ErrUpstream, path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrUpstream, path, err)
	}
	return nil
}

var (
	_ dataset.Provider      = (*Client)(nil)
	_ dataset.DetailFetcher = (*Client)(nil)
)
