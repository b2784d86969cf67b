// Package pgstore reads the dataset snapshot from PostgreSQL. Grid cells
// and time samples come from the database; rivers, catchments and risk
// zones are reference data bundled with the binary.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/geo"
)

// ProviderName identifies snapshots read from PostgreSQL.
const ProviderName = "postgres"

const (
	selectCellsSQL = `
		SELECT id, name, polygon, opportunity_score, housing_pressure, population_density
		FROM grid_cells
		ORDER BY id
	`

	selectSamplesSQL = `
		SELECT year, kind, population, built_up_area, night_light_index, growth_built_up, confidence
		FROM time_samples
		ORDER BY year
	`
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Provider implements dataset.Provider over PostgreSQL.
type Provider struct {
	db        Querier
	reference dataset.Provider
	logger    zerolog.Logger
	now       func() time.Time
}

// NewProvider creates a postgres-backed provider. Reference layers come
// from the bundled dataset.
func NewProvider(db Querier, logger zerolog.Logger) *Provider {
	return &Provider{
		db:        db,
		reference: dataset.NewBundledProvider(),
		logger:    logger,
		now:       time.Now,
	}
}

// CellRow is one grid_cells row. Nullable metrics are pointers.
type CellRow struct {
	ID                int
	Name              string
	Polygon           []byte
	OpportunityScore  *float64
	HousingPressure   *float64
	PopulationDensity *float64
}

// SampleRow is one time_samples row.
type SampleRow struct {
	Year            int
	Kind            string
	Population      float64
	BuiltUpArea     float64
	NightLightIndex float64
	GrowthBuiltUp   float64
	Confidence      *float64
}

// FetchSnapshot reads cells and samples and merges them with the
// reference layers.
func (p *Provider) FetchSnapshot(ctx context.Context) (*dataset.Snapshot, error) {
	cellRows, err := p.queryCells(ctx)
	if err != nil {
		return nil, fmt.Errorf("query grid cells: %w", err)
	}
	sampleRows, err := p.querySamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("query time samples: %w", err)
	}

	ref, err := p.reference.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	cells := make([]dataset.SpatialCell, 0, len(cellRows))
	for _, row := range cellRows {
		cell, err := CellFromRow(row)
		if err != nil {
			p.logger.Warn().Err(err).Int("cell_id", row.ID).Msg("skipping grid cell")
			continue
		}
		cells = append(cells, cell)
	}

	series, err := SeriesFromRows(sampleRows)
	if err != nil {
		return nil, err
	}

	return &dataset.Snapshot{
		Center:     ref.Center,
		Series:     series,
		Cells:      cells,
		Rivers:     ref.Rivers,
		Catchments: ref.Catchments,
		RiskZones:  ref.RiskZones,
		FetchedAt:  p.now(),
		Provider:   ProviderName,
	}, nil
}

func (p *Provider) queryCells(ctx context.Context) ([]CellRow, error) {
	rows, err := p.db.Query(ctx, selectCellsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CellRow, error) {
		var c CellRow
		err := row.Scan(&c.ID, &c.Name, &c.Polygon, &c.OpportunityScore, &c.HousingPressure, &c.PopulationDensity)
		return c, err
	})
}

func (p *Provider) querySamples(ctx context.Context) ([]SampleRow, error) {
	rows, err := p.db.Query(ctx, selectSamplesSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SampleRow, error) {
		var s SampleRow
		err := row.Scan(&s.Year, &s.Kind, &s.Population, &s.BuiltUpArea, &s.NightLightIndex, &s.GrowthBuiltUp, &s.Confidence)
		return s, err
	})
}

// CellFromRow converts a row. A cell without a usable polygon is an
// error; missing metrics become unknown.
func CellFromRow(row CellRow) (dataset.SpatialCell, error) {
	if len(row.Polygon) == 0 {
		return dataset.SpatialCell{}, fmt.Errorf("%w: cell %d has no polygon", dataset.ErrInvalidGeometry, row.ID)
	}
	var coords [][2]float64
	if err := json.Unmarshal(row.Polygon, &coords); err != nil {
		return dataset.SpatialCell{}, fmt.Errorf("%w: cell %d: %w", dataset.ErrInvalidGeometry, row.ID, err)
	}
	ring := make(geo.Ring, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, geo.Pt(c[0], c[1]))
	}
	// Stored rings may repeat the first vertex at the end.
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return dataset.SpatialCell{}, fmt.Errorf("%w: cell %d has %d vertices", dataset.ErrInvalidGeometry, row.ID, len(ring))
	}

	return dataset.SpatialCell{
		ID:                row.ID,
		Name:              row.Name,
		Polygon:           ring,
		OpportunityScore:  measure(row.OpportunityScore),
		HousingPressure:   measure(row.HousingPressure),
		PopulationDensity: measure(row.PopulationDensity),
	}, nil
}

// SeriesFromRows splits year-ordered rows into historical and forecast
// samples and validates the result.
func SeriesFromRows(rows []SampleRow) (dataset.Series, error) {
	var series dataset.Series
	for _, row := range rows {
		sample := dataset.TimeSample{
			Year:            row.Year,
			Population:      row.Population,
			BuiltUpArea:     row.BuiltUpArea,
			NightLightIndex: row.NightLightIndex,
			GrowthBuiltUp:   row.GrowthBuiltUp,
			Kind:            dataset.SampleKind(row.Kind),
		}
		switch sample.Kind {
		case dataset.KindHistorical:
			series.Historical = append(series.Historical, sample)
		case dataset.KindPredicted:
			sample.Confidence = measure(row.Confidence)
			series.Forecast = append(series.Forecast, sample)
		default:
			return dataset.Series{}, fmt.Errorf("%w: year %d has kind %q", dataset.ErrInvalidSeries, row.Year, row.Kind)
		}
	}
	if err := series.Validate(); err != nil {
		return dataset.Series{}, err
	}
	return series, nil
}

func measure(v *float64) dataset.Measure {
	if v == nil {
		return dataset.Unknown()
	}
	return dataset.Known(*v)
}

var _ dataset.Provider = (*Provider)(nil)
