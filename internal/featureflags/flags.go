// Package featureflags holds the runtime kill switches that degrade scene
// features without a redeploy.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Switch keys.
const (
	// FlagDisablePollutionField hides the pollution heat field and columns.
	FlagDisablePollutionField = "disable_pollution_field"

	// FlagDisableForecast blocks entering prediction mode.
	FlagDisableForecast = "disable_forecast_mode"

	// FlagDisableWaterMode removes the water family from every visual mode.
	FlagDisableWaterMode = "disable_water_mode"

	// FlagCachedOnlyDataset stops background jobs from hitting the dataset provider.
	FlagCachedOnlyDataset = "cached_only_dataset"

	// FlagMaxSessions caps concurrently open view sessions.
	FlagMaxSessions = "max_sessions"
)

var (
	// ErrUnknownFlag is returned for keys outside the switch registry.
	ErrUnknownFlag = errors.New("unknown feature flag")

	// ErrInvalidValue is returned when a value does not match the switch kind.
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Kind is the value type of a switch.
type Kind string

const (
	KindBool Kind = "bool"
	KindInt  Kind = "int"
)

// Definition describes one known switch.
type Definition struct {
	Key         string      `json:"key"`
	Kind        Kind        `json:"kind"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
}

var registry = []Definition{
	{Key: FlagDisablePollutionField, Kind: KindBool, Default: false, Description: "hide pollution layers"},
	{Key: FlagDisableForecast, Kind: KindBool, Default: false, Description: "block prediction mode"},
	{Key: FlagDisableWaterMode, Kind: KindBool, Default: false, Description: "hide water layers and force air mode"},
	{Key: FlagCachedOnlyDataset, Kind: KindBool, Default: false, Description: "skip upstream dataset refreshes"},
	{Key: FlagMaxSessions, Kind: KindInt, Default: 500, Description: "open session cap, 0 for none"},
}

// Definitions returns the switch registry in display order.
func Definitions() []Definition {
	return append([]Definition(nil), registry...)
}

// Lookup finds the definition of key.
func Lookup(key string) (Definition, bool) {
	for _, d := range registry {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Normalize checks value against the switch kind and returns it as a bool
// or int. JSON numbers arrive as float64 and must be whole.
func (d Definition) Normalize(value interface{}) (interface{}, error) {
	switch d.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
				return int(v), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s expects %s", ErrInvalidValue, d.Key, d.Kind)
}

// Flag is the current value of one switch.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewFlag validates key and value against the registry.
func NewFlag(key string, value interface{}) (*Flag, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlag, key)
	}
	v, err := def.Normalize(value)
	if err != nil {
		return nil, err
	}
	return &Flag{Key: key, Value: v}, nil
}

// FlagList is the admin listing.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate is one requested change.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest is the admin update body. Reason is only logged.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the value as a bool, or def when f is nil or holds
// something else. Non-zero numbers read as true.
func (f *Flag) BoolValue(def bool) bool {
	if f == nil {
		return def
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	}
	return def
}

// IntValue returns the value as an int, or def when f is nil or not a number.
func (f *Flag) IntValue(def int) int {
	if f == nil {
		return def
	}
	switch v := f.Value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// DefaultFlags returns every switch at its default value.
func DefaultFlags() map[string]*Flag {
	out := make(map[string]*Flag, len(registry))
	for _, d := range registry {
		out[d.Key] = &Flag{Key: d.Key, Value: d.Default}
	}
	return out
}
