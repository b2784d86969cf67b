package geometry

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/polyline"
)

// Generators binds the tuning config to one dataset snapshot and
// precomputes the static parts of the scene (density grid, river
// stations). It holds no per-frame state and is safe for concurrent use.
type Generators struct {
	cfg      Config
	snapshot *dataset.Snapshot
	grid     []gridCell
	stations map[string][]polyline.Station
}

// gridCell is one node of the density grid.
type gridCell struct {
	i, j       int
	position   geo.LonLat
	distanceKm float64
	// noise is a deterministic value in [0,1] from the grid indices.
	noise float64
}

// New creates the generators for a snapshot.
func New(cfg Config, snapshot *dataset.Snapshot) *Generators {
	if snapshot == nil {
		snapshot = &dataset.Snapshot{}
	}
	g := &Generators{
		cfg:      cfg,
		snapshot: snapshot,
		stations: make(map[string][]polyline.Station, len(snapshot.Rivers)),
	}
	g.grid = buildGrid(cfg.Density, snapshot.Center)
	for _, river := range snapshot.Rivers {
		g.stations[river.Name] = polyline.Sample(river.Path, cfg.Rivers.ParticleSpacingMeters)
	}
	return g
}

// Config returns the tuning in use.
func (g *Generators) Config() Config {
	return g.cfg
}

// Snapshot returns the dataset snapshot the generators read.
func (g *Generators) Snapshot() *dataset.Snapshot {
	return g.snapshot
}

func buildGrid(cfg DensityConfig, center geo.LonLat) []gridCell {
	if cfg.GridSize <= 0 {
		return nil
	}
	noise := opensimplex.NewNormalized(cfg.NoiseSeed)
	half := float64(cfg.GridSize-1) / 2

	grid := make([]gridCell, 0, cfg.GridSize*cfg.GridSize)
	for i := range cfg.GridSize {
		for j := range cfg.GridSize {
			pos := geo.Pt(
				center.Lon+(float64(i)-half)*cfg.SpacingDegrees,
				center.Lat+(float64(j)-half)*cfg.SpacingDegrees,
			)
			grid = append(grid, gridCell{
				i:          i,
				j:          j,
				position:   pos,
				distanceKm: geo.Distance(center, pos) / 1000,
				noise:      octaveNoise(noise, float64(i), float64(j), 3, cfg.NoiseFrequency, 0.5),
			})
		}
	}
	return grid
}

// octaveNoise layers frequencies of normalized noise; the result stays in [0,1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	if maxVal == 0 {
		return 0
	}
	return total / maxVal
}

// pulse maps an oscillator phase to [0,1].
func pulse(phase float64) float64 {
	return 0.5 + 0.5*math.Sin(phase)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func alpha(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
