package dataset

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// EntityKind identifies what a pickable primitive refers to.
type EntityKind string

const (
	EntityCell  EntityKind = "cell"
	EntityRiver EntityKind = "river"
	EntityZone  EntityKind = "zone"
)

// EntityRef points at one spatial entity. Cells are keyed by id, rivers
// and risk zones by name.
type EntityRef struct {
	Kind   EntityKind `json:"kind"`
	CellID int        `json:"cellId,omitempty"`
	Name   string     `json:"name,omitempty"`
}

// CellRef references a grid cell.
func CellRef(id int) EntityRef {
	return EntityRef{Kind: EntityCell, CellID: id}
}

// RiverRef references a river segment.
func RiverRef(name string) EntityRef {
	return EntityRef{Kind: EntityRiver, Name: name}
}

// ZoneRef references a risk zone.
func ZoneRef(name string) EntityRef {
	return EntityRef{Kind: EntityZone, Name: name}
}

// Valid reports whether the reference can be resolved.
func (r EntityRef) Valid() bool {
	switch r.Kind {
	case EntityCell:
		return r.CellID > 0
	case EntityRiver, EntityZone:
		return r.Name != ""
	default:
		return false
	}
}

// Key returns a stable string form, e.g. "cell:7" or "river:Yamuna".
func (r EntityRef) Key() string {
	if r.Kind == EntityCell {
		return string(r.Kind) + ":" + strconv.Itoa(r.CellID)
	}
	return string(r.Kind) + ":" + r.Name
}

// Detail is the record shown in the detail panel for a selected entity.
type Detail struct {
	Ref           EntityRef          `json:"ref"`
	Title         string             `json:"title"`
	Summary       string             `json:"summary,omitempty"`
	Metrics       map[string]Measure `json:"metrics"`
	Interventions []string           `json:"interventions,omitempty"`
	FetchedAt     time.Time          `json:"fetchedAt"`
}

// DetailFetcher loads detail records for picked entities.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, ref EntityRef) (*Detail, error)
}

// SnapshotSource is satisfied by Service.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context) (*Snapshot, error)
}

// SnapshotDetails builds detail records from the current snapshot. It is
// the detail fetcher for sources that have no per-entity endpoint.
type SnapshotDetails struct {
	source SnapshotSource
}

// NewSnapshotDetails creates a detail fetcher over a snapshot source.
func NewSnapshotDetails(source SnapshotSource) *SnapshotDetails {
	return &SnapshotDetails{source: source}
}

// FetchDetail resolves ref against the current snapshot.
func (d *SnapshotDetails) FetchDetail(ctx context.Context, ref EntityRef) (*Detail, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref.Key())
	}
	snapshot, err := d.source.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detail, ok := DetailFromSnapshot(snapshot, ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref.Key())
	}
	return detail, nil
}

// DetailFromSnapshot derives a detail record for ref from snapshot.
func DetailFromSnapshot(snapshot *Snapshot, ref EntityRef) (*Detail, bool) {
	switch ref.Kind {
	case EntityCell:
		cell, ok := snapshot.Cell(ref.CellID)
		if !ok {
			return nil, false
		}
		title := cell.Name
		if title == "" {
			title = fmt.Sprintf("Cell %d", cell.ID)
		}
		return &Detail{
			Ref:     ref,
			Title:   title,
			Summary: fmt.Sprintf("%s opportunity", cell.Category()),
			Metrics: map[string]Measure{
				"opportunityScore":  cell.OpportunityScore,
				"housingPressure":   cell.HousingPressure,
				"populationDensity": cell.PopulationDensity,
			},
			FetchedAt: snapshot.FetchedAt,
		}, true

	case EntityRiver:
		river, ok := snapshot.River(ref.Name)
		if !ok {
			return nil, false
		}
		return &Detail{
			Ref:     ref,
			Title:   river.Name,
			Summary: string(river.Status()),
			Metrics: map[string]Measure{
				"pollutionLevel": Known(river.PollutionLevel),
			},
			FetchedAt: snapshot.FetchedAt,
		}, true

	case EntityZone:
		zone, ok := snapshot.RiskZone(ref.Name)
		if !ok {
			return nil, false
		}
		return &Detail{
			Ref:     ref,
			Title:   zone.Name,
			Summary: string(zone.Urgency),
			Metrics: map[string]Measure{
				"population":   Known(float64(zone.Population)),
				"radiusMeters": Known(zone.RadiusMeters),
			},
			Interventions: append([]string(nil), zone.Interventions...),
			FetchedAt:     snapshot.FetchedAt,
		}, true
	}
	return nil, false
}
