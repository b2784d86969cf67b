package models

import (
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/timeline"
)

// LayerList is the layer catalog in paint order, for the legend.
type LayerList struct {
	Items []compositor.Layer `json:"items"`
}

// Series is the metro time series served to the timeline slider.
type Series struct {
	Historical []dataset.TimeSample `json:"historical"`
	Forecast   []dataset.TimeSample `json:"forecast"`
	Provider   string               `json:"provider"`
	FetchedAt  Timestamp            `json:"fetchedAt"`
}

// SpeedRange is the inclusive playback speed range.
type SpeedRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Enums represents the enum values used by the API.
type Enums struct {
	VisualModes []compositor.VisualMode `json:"visualModes"`
	PlayStates  []timeline.PlayState    `json:"playStates"`
	EntityKinds []dataset.EntityKind    `json:"entityKinds"`
	Speed       SpeedRange              `json:"speed"`
}
