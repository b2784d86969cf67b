package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when deleting a switch with no stored override.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores switch overrides. Switches without an override take
// their registry default.
type Repository interface {
	// List returns every stored override keyed by switch.
	List(ctx context.Context) (map[string]*Flag, error)

	// Upsert stores all flags or none of them.
	Upsert(ctx context.Context, flags ...*Flag) error

	// Delete drops the override for key.
	Delete(ctx context.Context, key string) error
}
