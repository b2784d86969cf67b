package geometry_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/timeline"
	"github.com/urbanscope/urbanscope/pkg/geo"
)

func bundled(t *testing.T) *dataset.Snapshot {
	t.Helper()
	snapshot, err := dataset.NewBundledProvider().FetchSnapshot(context.Background())
	require.NoError(t, err)
	return snapshot
}

func inputAt(t *testing.T, snapshot *dataset.Snapshot, year int, vt float64) geometry.Input {
	t.Helper()
	c := timeline.NewController(snapshot.Series, nil)
	c.SetYear(year, timeline.External)
	return geometry.Input{Domain: c.Snapshot(), VisualTime: vt, Toggles: geometry.DefaultToggles()}
}

type generatorFunc func(*geometry.Generators, geometry.Input) []geometry.Primitive

var allGenerators = map[string]generatorFunc{
	"tendrils":          (*geometry.Generators).Tendrils,
	"density":           (*geometry.Generators).DensityColumns,
	"stress":            (*geometry.Generators).StressRings,
	"pollution points":  (*geometry.Generators).PollutionPoints,
	"pollution columns": (*geometry.Generators).PollutionColumns,
	"river paths":       (*geometry.Generators).RiverPaths,
	"river flow":        (*geometry.Generators).RiverFlow,
	"river labels":      (*geometry.Generators).RiverLabels,
	"catchments":        (*geometry.Generators).CatchmentHalos,
	"opportunity":       (*geometry.Generators).OpportunityCells,
	"risk rings":        (*geometry.Generators).RiskZoneRings,
	"risk labels":       (*geometry.Generators).RiskZoneLabels,
}

func TestGenerators_Deterministic(t *testing.T) {
	snapshot := bundled(t)
	in := inputAt(t, snapshot, 2020, 12.345)

	for name, gen := range allGenerators {
		t.Run(name, func(t *testing.T) {
			a := gen(geometry.New(geometry.Default(), snapshot), in)
			b := gen(geometry.New(geometry.Default(), snapshot), in)
			assert.Equal(t, a, b)
			assert.NotEmpty(t, a)
		})
	}
}

func TestGenerators_EmptySnapshot(t *testing.T) {
	g := geometry.New(geometry.Default(), &dataset.Snapshot{})
	c := timeline.NewController(dataset.Series{}, nil)
	in := geometry.Input{Domain: c.Snapshot(), VisualTime: 3}

	for name, gen := range allGenerators {
		if name == "pollution points" || name == "pollution columns" {
			// Hotspots come from tuning, not from the dataset.
			continue
		}
		assert.Empty(t, gen(g, in), name)
	}
}

func TestGenerators_NilSnapshot(t *testing.T) {
	g := geometry.New(geometry.Default(), nil)
	assert.Empty(t, g.RiverPaths(geometry.Input{}))
	assert.Empty(t, g.Tendrils(geometry.Input{}))
}

func TestTendrils_LengthFollowsBuiltUp(t *testing.T) {
	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)

	reach := func(year int) float64 {
		prims := g.Tendrils(inputAt(t, snapshot, year, 0))
		require.Len(t, prims, 12)
		path := prims[0].Path
		return geo.Distance(path[0], path[len(path)-1])
	}

	early, late := reach(2000), reach(2025)
	assert.Greater(t, late, early)
	assert.InDelta(t, 18000*0.60, late, 18000*0.60*0.02)
}

func TestTendrils_MoveWithVisualTime(t *testing.T) {
	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)

	a := g.Tendrils(inputAt(t, snapshot, 2010, 0))
	b := g.Tendrils(inputAt(t, snapshot, 2010, 1.5))
	assert.NotEqual(t, a[0].Path, b[0].Path)
	for _, p := range a {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 1.0)
	}
}

func TestDensityColumns_PredictionBlend(t *testing.T) {
	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)
	historical := g.DensityColumns(inputAt(t, snapshot, 2025, 4))

	b := timeline.NewBlender(timeline.DefaultStepSize)
	c := timeline.NewController(snapshot.Series, b)
	c.SetYear(2025, timeline.External)
	require.NoError(t, c.EnterPrediction())

	entered := g.DensityColumns(geometry.Input{Domain: c.Snapshot(), VisualTime: 4})
	assert.Equal(t, historical, entered, "progress 0 must not jump")

	for range 50 {
		b.Advance()
	}
	saturated := g.DensityColumns(geometry.Input{Domain: c.Snapshot(), VisualTime: 4})
	require.Len(t, saturated, len(historical))
	for i := range saturated {
		assert.Greater(t, saturated[i].Elevation, historical[i].Elevation)
	}
}

func TestDensityColumns_FalloffFromCenter(t *testing.T) {
	snapshot := bundled(t)
	cfg := geometry.Default()
	cfg.Density.VariationAmplitude = 0
	cfg.Density.BreathingAmplitude = 0
	g := geometry.New(cfg, snapshot)

	prims := g.DensityColumns(inputAt(t, snapshot, 2025, 0))
	require.NotEmpty(t, prims)

	var center, edge geometry.Primitive
	minD, maxD := math.Inf(1), 0.0
	for _, p := range prims {
		d := geo.Distance(snapshot.Center, p.Position)
		if d < minD {
			minD, center = d, p
		}
		if d > maxD {
			maxD, edge = d, p
		}
	}
	assert.Greater(t, center.Elevation, edge.Elevation)
	assert.LessOrEqual(t, center.Elevation, cfg.Density.PopulationScale)
}

func TestStressRings_OnlyPeriphery(t *testing.T) {
	snapshot := bundled(t)
	cfg := geometry.Default()
	g := geometry.New(cfg, snapshot)

	rings := g.StressRings(inputAt(t, snapshot, 2025, 2))
	require.NotEmpty(t, rings)
	assert.Zero(t, len(rings)%cfg.Stress.Rings)
	for _, r := range rings {
		assert.Equal(t, geometry.KindRing, r.Kind)
		assert.Greater(t, geo.Distance(snapshot.Center, r.Position)/1000, cfg.Stress.PeripheralKm)
		assert.Greater(t, r.Value, cfg.Stress.GrowthThreshold)
		assert.GreaterOrEqual(t, r.Radius, cfg.Stress.BaseRadius)
		assert.Less(t, r.Radius, cfg.Stress.BaseRadius+cfg.Stress.RadiusAmplitude)
	}

	// Rings of one node are out of phase.
	assert.NotEqual(t, rings[0].Radius, rings[1].Radius)

	cfg.Stress.GrowthThreshold = 10
	assert.Empty(t, geometry.New(cfg, snapshot).StressRings(inputAt(t, snapshot, 2025, 2)))
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		c    float64
		want geometry.Severity
	}{
		{0, geometry.SeverityGood},
		{70, geometry.SeverityGood},
		{80, geometry.SeverityGood},
		{90, geometry.SeverityModerate},
		{120, geometry.SeverityModerate},
		{130, geometry.SeverityUnhealthy},
		{190, geometry.SeverityHazardous},
	}
	prev := geometry.SeverityGood
	for _, tt := range tests {
		got := geometry.SeverityFor(tt.c)
		assert.Equal(t, tt.want, got, "concentration %v", tt.c)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, "hazardous", geometry.SeverityHazardous.String())
}

func TestSeverity_Text(t *testing.T) {
	var s geometry.Severity
	require.NoError(t, s.UnmarshalText([]byte("unhealthy")))
	assert.Equal(t, geometry.SeverityUnhealthy, s)
	assert.Error(t, s.UnmarshalText([]byte("smoky")))
}

func TestSeasonalMultiplier(t *testing.T) {
	seasons := geometry.Default().Pollution.Seasons
	tests := []struct {
		day  int
		want float64
	}{
		{1, 1.5},
		{59, 1.5},
		{60, 1.1},
		{200, 0.6},
		{300, 1.3},
		{350, 1.5},
		{400, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, geometry.SeasonalMultiplier(seasons, tt.day), "day %d", tt.day)
	}
}

func TestSimulatedDay(t *testing.T) {
	g := geometry.New(geometry.Default(), &dataset.Snapshot{})
	assert.Equal(t, 1, g.SimulatedDay(0))
	assert.Equal(t, 7, g.SimulatedDay(1))
	assert.Equal(t, 1, g.SimulatedDay(365.0/6+0.01))
	assert.Equal(t, 1, g.SimulatedDay(-5))
}

func TestPollutionField(t *testing.T) {
	snapshot := bundled(t)
	cfg := geometry.Default()
	g := geometry.New(cfg, snapshot)
	in := inputAt(t, snapshot, 2020, 1)

	field := g.Field(in)
	require.Len(t, field, len(cfg.Pollution.Hotspots)*cfg.Pollution.PointsPerHotspot)
	for _, s := range field {
		assert.GreaterOrEqual(t, s.Concentration, 0.0)
		assert.Equal(t, geometry.SeverityFor(s.Concentration), s.Severity)
	}

	sources := g.Sources(in)
	require.Len(t, sources, 5)
	assert.Equal(t, 1.5, sources[0].SeasonalMultiplier)

	// The disc rotates with visual time.
	later := g.Field(inputAt(t, snapshot, 2020, 3))
	assert.NotEqual(t, field[0].Position, later[0].Position)
}

func TestPollutionColumns_SuperLinearHeight(t *testing.T) {
	assert.Equal(t, 0.0, geometry.ColumnHeight(0, 12, 1.35))
	assert.Equal(t, 0.0, geometry.ColumnHeight(-3, 12, 1.35))

	low := geometry.ColumnHeight(100, 1, 1.35)
	high := geometry.ColumnHeight(200, 1, 1.35)
	assert.Greater(t, high/low, 2.0)

	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)
	for _, p := range g.PollutionColumns(inputAt(t, snapshot, 2020, 1)) {
		assert.InDelta(t, geometry.ColumnHeight(p.Value, 12, 1.35), p.Elevation, 1e-9)
		assert.NotEmpty(t, p.Tier)
	}
}

func TestRiverFlow_PerpendicularOffsetBounded(t *testing.T) {
	snapshot := bundled(t)
	cfg := geometry.Default()
	g := geometry.New(cfg, snapshot)

	still := g.RiverFlow(inputAt(t, snapshot, 2020, 0))
	moved := g.RiverFlow(inputAt(t, snapshot, 2020, 0.4))
	require.Equal(t, len(still), len(moved))
	require.NotEmpty(t, still)

	changed := 0
	for i := range still {
		d := geo.Distance(still[i].Position, moved[i].Position)
		assert.LessOrEqual(t, d, 2*cfg.Rivers.OffsetMeters+1)
		if d > 0.01 {
			changed++
		}
		require.NotNil(t, still[i].Ref)
		assert.Equal(t, dataset.EntityRiver, still[i].Ref.Kind)
	}
	assert.Positive(t, changed)
}

func TestRiverPaths_StatusPulse(t *testing.T) {
	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)

	paths := g.RiverPaths(inputAt(t, snapshot, 2020, 0.7))
	require.Len(t, paths, len(snapshot.Rivers))
	assert.Equal(t, "Critical", paths[0].Tier)
	assert.Equal(t, "Moderate", paths[3].Tier)
	assert.GreaterOrEqual(t, paths[0].LineColor.A, uint8(110))
}

func TestOpportunityCells(t *testing.T) {
	snapshot := bundled(t)
	cfg := geometry.Default()
	g := geometry.New(cfg, snapshot)

	cells := g.OpportunityCells(geometry.Input{})
	require.Len(t, cells, len(snapshot.Cells))
	for _, p := range cells {
		require.NotNil(t, p.Ref)
		cell, ok := snapshot.Cell(p.Ref.CellID)
		require.True(t, ok)
		assert.Equal(t, string(cell.Category()), p.Tier)
		assert.Equal(t, geometry.OpportunityHeight(cfg.Opportunity, cell), p.Elevation)
	}

	unknown := cells[35]
	assert.Equal(t, "unknown", unknown.Tier)
	assert.Equal(t, cfg.Opportunity.UnknownColor, unknown.FillColor)
}

func TestOpportunityHeight(t *testing.T) {
	cfg := geometry.OpportunityConfig{W1: 100, W2: 10, W3: 1, DensityReference: 1000}
	cell := dataset.SpatialCell{
		OpportunityScore:  dataset.Known(0.25),
		HousingPressure:   dataset.Known(0.5),
		PopulationDensity: dataset.Known(500),
	}
	assert.InDelta(t, 75+5+0.5, geometry.OpportunityHeight(cfg, cell), 1e-9)

	cell.HousingPressure = dataset.Unknown()
	assert.InDelta(t, 75.5, geometry.OpportunityHeight(cfg, cell), 1e-9)
}

func TestOpportunityGradient_Smooth(t *testing.T) {
	ramp := geometry.Default().Opportunity.Gradient
	mid := ramp.At(0.2)
	lo, hi := ramp.At(0), ramp.At(0.4)
	assert.NotEqual(t, lo, mid)
	assert.NotEqual(t, hi, mid)
	assert.Equal(t, ramp.At(1), ramp[len(ramp)-1].Color)
}

func TestRiskZoneRings_UrgencyDrivesPulse(t *testing.T) {
	snapshot := &dataset.Snapshot{RiskZones: []dataset.RiskZone{
		{Name: "slow", RadiusMeters: 1000, Urgency: dataset.UrgencyHigh},
		{Name: "fast", RadiusMeters: 1000, Urgency: dataset.UrgencyImmediate},
	}}
	cfg := geometry.Default()
	g := geometry.New(cfg, snapshot)

	at := func(vt float64) []geometry.Primitive { return g.RiskZoneRings(geometry.Input{VisualTime: vt}) }
	before, after := at(0), at(0.5)
	require.Len(t, before, 2*cfg.RiskZones.Rings)

	slowGrowth := after[0].Radius - before[0].Radius
	fastGrowth := after[cfg.RiskZones.Rings].Radius - before[cfg.RiskZones.Rings].Radius
	assert.Greater(t, fastGrowth, slowGrowth)
	assert.NotEqual(t, before[0].LineColor, before[cfg.RiskZones.Rings].LineColor)
}

func TestRiskZoneLabels(t *testing.T) {
	snapshot := bundled(t)
	g := geometry.New(geometry.Default(), snapshot)

	labels := g.RiskZoneLabels(geometry.Input{})
	require.Len(t, labels, len(snapshot.RiskZones))
	assert.Equal(t, "Yamuna Floodplain East\n410,000 people", labels[0].Text)
	assert.Equal(t, geometry.KindTextLabel, labels[0].Kind)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, geometry.Default().Validate())

	tests := []struct {
		name   string
		mutate func(*geometry.Config)
	}{
		{"no tendril directions", func(c *geometry.Config) { c.Tendrils.Directions = 0 }},
		{"empty grid", func(c *geometry.Config) { c.Density.GridSize = 0 }},
		{"no seasons", func(c *geometry.Config) { c.Pollution.Seasons = nil }},
		{"unordered seasons", func(c *geometry.Config) {
			c.Pollution.Seasons[1], c.Pollution.Seasons[2] = c.Pollution.Seasons[2], c.Pollution.Seasons[1]
		}},
		{"short year", func(c *geometry.Config) {
			c.Pollution.Seasons = c.Pollution.Seasons[:len(c.Pollution.Seasons)-1]
		}},
		{"empty gradient", func(c *geometry.Config) { c.Opportunity.Gradient = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := geometry.Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), geometry.ErrInvalidConfig)
		})
	}
}
