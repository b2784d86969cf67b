package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// Config holds every tunable constant of the generators. Defaults come
// from Default; a scene file may override any subset.
type Config struct {
	Tendrils    TendrilConfig     `yaml:"tendrils"`
	Density     DensityConfig     `yaml:"density"`
	Stress      StressConfig      `yaml:"stress"`
	Pollution   PollutionConfig   `yaml:"pollution"`
	Rivers      RiverConfig       `yaml:"rivers"`
	Catchments  CatchmentConfig   `yaml:"catchments"`
	Opportunity OpportunityConfig `yaml:"opportunity"`
	RiskZones   RiskZoneConfig    `yaml:"riskZones"`
}

// TendrilConfig tunes the radiating growth paths.
type TendrilConfig struct {
	Directions      int     `yaml:"directions"`
	Points          int     `yaml:"points"`
	MaxLengthMeters float64 `yaml:"maxLengthMeters"`
	// K1..K4 are the oscillator coefficients of the jitter and intensity terms.
	K1              float64    `yaml:"k1"`
	K2              float64    `yaml:"k2"`
	K3              float64    `yaml:"k3"`
	K4              float64    `yaml:"k4"`
	JitterAmplitude float64    `yaml:"jitterAmplitude"`
	Width           float64    `yaml:"width"`
	DimColor        rgba.Color `yaml:"dimColor"`
	BrightColor     rgba.Color `yaml:"brightColor"`
}

// DensityConfig tunes the population column grid.
type DensityConfig struct {
	GridSize        int     `yaml:"gridSize"`
	SpacingDegrees  float64 `yaml:"spacingDegrees"`
	FalloffPerKm    float64 `yaml:"falloffPerKm"`
	PopulationScale float64 `yaml:"populationScale"`
	// ReferencePopulation is the population at which columns reach
	// PopulationScale at the center.
	ReferencePopulation float64    `yaml:"referencePopulation"`
	NoiseSeed           int64      `yaml:"noiseSeed"`
	NoiseFrequency      float64    `yaml:"noiseFrequency"`
	VariationAmplitude  float64    `yaml:"variationAmplitude"`
	BreathingSpeed      float64    `yaml:"breathingSpeed"`
	BreathingLonFactor  float64    `yaml:"breathingLonFactor"`
	BreathingAmplitude  float64    `yaml:"breathingAmplitude"`
	ColumnRadius        float64    `yaml:"columnRadius"`
	LowColor            rgba.Color `yaml:"lowColor"`
	HighColor           rgba.Color `yaml:"highColor"`
	PredictedColor      rgba.Color `yaml:"predictedColor"`
}

// StressConfig tunes the housing-stress alarm rings.
type StressConfig struct {
	GrowthThreshold float64 `yaml:"growthThreshold"`
	PeripheralKm    float64 `yaml:"peripheralKm"`
	Rings           int     `yaml:"rings"`
	// PhaseOffset is the cycle fraction between consecutive rings.
	PhaseOffset     float64    `yaml:"phaseOffset"`
	PulseSpeed      float64    `yaml:"pulseSpeed"`
	BaseRadius      float64    `yaml:"baseRadius"`
	RadiusAmplitude float64    `yaml:"radiusAmplitude"`
	Width           float64    `yaml:"width"`
	Color           rgba.Color `yaml:"color"`
}

// Hotspot is a fixed pollution origin, placed relative to the metro center.
type Hotspot struct {
	Name              string  `yaml:"name"`
	EastMeters        float64 `yaml:"eastMeters"`
	NorthMeters       float64 `yaml:"northMeters"`
	BaseConcentration float64 `yaml:"baseConcentration"`
}

// Season is a day-of-year range with a pollution multiplier. Seasons are
// evaluated in order; the first whose ThroughDay is not before the day wins.
type Season struct {
	Name       string  `yaml:"name"`
	ThroughDay int     `yaml:"throughDay"`
	Multiplier float64 `yaml:"multiplier"`
}

// PollutionConfig tunes the pollution field.
type PollutionConfig struct {
	Hotspots             []Hotspot      `yaml:"hotspots"`
	PointsPerHotspot     int            `yaml:"pointsPerHotspot"`
	RadiusMeters         float64        `yaml:"radiusMeters"`
	RotationSpeed        float64        `yaml:"rotationSpeed"`
	BreathingSpeed       float64        `yaml:"breathingSpeed"`
	BreathingAmplitude   float64        `yaml:"breathingAmplitude"`
	Falloff              float64        `yaml:"falloff"`
	OscillationSpeed     float64        `yaml:"oscillationSpeed"`
	OscillationAmplitude float64        `yaml:"oscillationAmplitude"`
	HeightScale          float64        `yaml:"heightScale"`
	HeightExponent       float64        `yaml:"heightExponent"`
	PointRadius          float64        `yaml:"pointRadius"`
	ColumnRadius         float64        `yaml:"columnRadius"`
	DaysPerVisualUnit    float64        `yaml:"daysPerVisualUnit"`
	Seasons              []Season       `yaml:"seasons"`
	Severity             []SeverityBand `yaml:"severity"`
}

// RiverConfig tunes river paths and flow particles.
type RiverConfig struct {
	ParticleSpacingMeters float64               `yaml:"particleSpacingMeters"`
	OffsetMeters          float64               `yaml:"offsetMeters"`
	WaveSpeed             float64               `yaml:"waveSpeed"`
	WavesPerKm            float64               `yaml:"wavesPerKm"`
	PulseSpeed            float64               `yaml:"pulseSpeed"`
	MinAlpha              float64               `yaml:"minAlpha"`
	Width                 float64               `yaml:"width"`
	ParticleRadius        float64               `yaml:"particleRadius"`
	StatusColors          map[string]rgba.Color `yaml:"statusColors"`
}

// CatchmentConfig tunes the catchment halos.
type CatchmentConfig struct {
	PulseSpeed     float64    `yaml:"pulseSpeed"`
	PulseAmplitude float64    `yaml:"pulseAmplitude"`
	Color          rgba.Color `yaml:"color"`
}

// OpportunityConfig tunes the extruded opportunity cells.
type OpportunityConfig struct {
	// Height = (1-opportunity)*W1 + pressure*W2 + density/DensityReference*W3.
	W1               float64    `yaml:"w1"`
	W2               float64    `yaml:"w2"`
	W3               float64    `yaml:"w3"`
	DensityReference float64    `yaml:"densityReference"`
	Gradient         rgba.Ramp  `yaml:"gradient"`
	UnknownColor     rgba.Color `yaml:"unknownColor"`
	LineColor        rgba.Color `yaml:"lineColor"`
}

// RiskZoneConfig tunes risk-zone rings and labels.
type RiskZoneConfig struct {
	Rings       int                   `yaml:"rings"`
	PhaseOffset float64               `yaml:"phaseOffset"`
	PulseSpeeds map[string]float64    `yaml:"pulseSpeeds"`
	Colors      map[string]rgba.Color `yaml:"colors"`
	MaxGrowth   float64               `yaml:"maxGrowth"`
	Width       float64               `yaml:"width"`
	LabelColor  rgba.Color            `yaml:"labelColor"`
}

// Default returns the compiled-in tuning.
func Default() Config {
	return Config{
		Tendrils: TendrilConfig{
			Directions:      12,
			Points:          24,
			MaxLengthMeters: 18000,
			K1:              0.8,
			K2:              0.9,
			K3:              0.35,
			K4:              1.3,
			JitterAmplitude: 0.12,
			Width:           3,
			DimColor:        rgba.New(255, 170, 60).WithAlpha(90),
			BrightColor:     rgba.New(255, 236, 170).WithAlpha(235),
		},
		Density: DensityConfig{
			GridSize:            15,
			SpacingDegrees:      0.02,
			FalloffPerKm:        0.045,
			PopulationScale:     4000,
			ReferencePopulation: 25_000_000,
			NoiseSeed:           42,
			NoiseFrequency:      0.35,
			VariationAmplitude:  0.35,
			BreathingSpeed:      0.6,
			BreathingLonFactor:  40,
			BreathingAmplitude:  0.06,
			ColumnRadius:        600,
			LowColor:            rgba.New(65, 182, 196).WithAlpha(200),
			HighColor:           rgba.New(253, 141, 60).WithAlpha(230),
			PredictedColor:      rgba.New(186, 104, 200).WithAlpha(230),
		},
		Stress: StressConfig{
			GrowthThreshold: 0.5,
			PeripheralKm:    8,
			Rings:           3,
			PhaseOffset:     1.0 / 3,
			PulseSpeed:      1.2,
			BaseRadius:      300,
			RadiusAmplitude: 900,
			Width:           2,
			Color:           rgba.New(239, 83, 80).WithAlpha(220),
		},
		Pollution: PollutionConfig{
			Hotspots: []Hotspot{
				{Name: "Anand Vihar", EastMeters: 9000, NorthMeters: 1500, BaseConcentration: 210},
				{Name: "Okhla", EastMeters: 6000, NorthMeters: -9500, BaseConcentration: 160},
				{Name: "Mundka", EastMeters: -17000, NorthMeters: 5500, BaseConcentration: 190},
				{Name: "ITO", EastMeters: 2500, NorthMeters: 1000, BaseConcentration: 140},
				{Name: "Dwarka", EastMeters: -14000, NorthMeters: -6500, BaseConcentration: 110},
			},
			PointsPerHotspot:     60,
			RadiusMeters:         3500,
			RotationSpeed:        0.15,
			BreathingSpeed:       0.8,
			BreathingAmplitude:   0.15,
			Falloff:              0.7,
			OscillationSpeed:     2,
			OscillationAmplitude: 0.1,
			HeightScale:          12,
			HeightExponent:       1.35,
			PointRadius:          180,
			ColumnRadius:         120,
			DaysPerVisualUnit:    6,
			Seasons: []Season{
				{Name: "winter", ThroughDay: 59, Multiplier: 1.5},
				{Name: "summer", ThroughDay: 151, Multiplier: 1.1},
				{Name: "monsoon", ThroughDay: 273, Multiplier: 0.6},
				{Name: "autumn", ThroughDay: 334, Multiplier: 1.3},
				{Name: "winter", ThroughDay: 366, Multiplier: 1.5},
			},
			Severity: DefaultSeverityBands(),
		},
		Rivers: RiverConfig{
			ParticleSpacingMeters: 600,
			OffsetMeters:          60,
			WaveSpeed:             3,
			WavesPerKm:            1.5,
			PulseSpeed:            1.5,
			MinAlpha:              110,
			Width:                 40,
			ParticleRadius:        70,
			StatusColors: map[string]rgba.Color{
				"Moderate": rgba.New(66, 165, 245),
				"Polluted": rgba.New(255, 202, 40),
				"Severe":   rgba.New(255, 112, 67),
				"Critical": rgba.New(198, 40, 40),
			},
		},
		Catchments: CatchmentConfig{
			PulseSpeed:     0.7,
			PulseAmplitude: 0.05,
			Color:          rgba.New(41, 121, 255).WithAlpha(60),
		},
		Opportunity: OpportunityConfig{
			W1:               900,
			W2:               600,
			W3:               500,
			DensityReference: 30000,
			Gradient: rgba.Ramp{
				{At: 0, Color: rgba.New(211, 47, 47).WithAlpha(210)},
				{At: 0.4, Color: rgba.New(245, 124, 0).WithAlpha(210)},
				{At: 0.7, Color: rgba.New(255, 193, 7).WithAlpha(210)},
				{At: 1, Color: rgba.New(56, 142, 60).WithAlpha(210)},
			},
			UnknownColor: rgba.New(158, 158, 158).WithAlpha(160),
			LineColor:    rgba.New(255, 255, 255).WithAlpha(90),
		},
		RiskZones: RiskZoneConfig{
			Rings:       2,
			PhaseOffset: 0.5,
			PulseSpeeds: map[string]float64{
				"HIGH":      0.6,
				"CRITICAL":  1.0,
				"IMMEDIATE": 1.6,
			},
			Colors: map[string]rgba.Color{
				"HIGH":      rgba.New(255, 167, 38),
				"CRITICAL":  rgba.New(239, 83, 80),
				"IMMEDIATE": rgba.New(183, 28, 28),
			},
			MaxGrowth:  0.6,
			Width:      3,
			LabelColor: rgba.New(255, 255, 255),
		},
	}
}

// fract returns the fractional part of v in [0,1).
func fract(v float64) float64 {
	return v - math.Floor(v)
}

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid scene config")

// Validate rejects configurations the generators cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Tendrils.Directions <= 0 || c.Tendrils.Points < 2:
		return fmt.Errorf("%w: tendrils need directions and at least 2 points", ErrInvalidConfig)
	case c.Density.GridSize <= 0 || c.Density.SpacingDegrees <= 0:
		return fmt.Errorf("%w: density grid size and spacing must be positive", ErrInvalidConfig)
	case c.Density.ReferencePopulation <= 0:
		return fmt.Errorf("%w: density reference population must be positive", ErrInvalidConfig)
	case c.Pollution.DaysPerVisualUnit <= 0:
		return fmt.Errorf("%w: pollution daysPerVisualUnit must be positive", ErrInvalidConfig)
	case len(c.Pollution.Seasons) == 0:
		return fmt.Errorf("%w: at least one season is required", ErrInvalidConfig)
	case c.Opportunity.DensityReference <= 0:
		return fmt.Errorf("%w: opportunity densityReference must be positive", ErrInvalidConfig)
	case len(c.Opportunity.Gradient) == 0:
		return fmt.Errorf("%w: opportunity gradient needs at least one stop", ErrInvalidConfig)
	}
	for i := 1; i < len(c.Pollution.Seasons); i++ {
		if c.Pollution.Seasons[i].ThroughDay <= c.Pollution.Seasons[i-1].ThroughDay {
			return fmt.Errorf("%w: seasons must be ordered by throughDay", ErrInvalidConfig)
		}
	}
	if last := c.Pollution.Seasons[len(c.Pollution.Seasons)-1]; last.ThroughDay < 365 {
		return fmt.Errorf("%w: seasons must cover the whole year", ErrInvalidConfig)
	}
	return nil
}
