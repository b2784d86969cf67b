package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/config"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/timeline"
)

type frameOptions struct {
	Year          int
	VisualTime    float64
	Mode          string
	Toggles       *geometry.Toggles
	Predicted     bool
	ProgressTicks int
	FocusCell     int
	ScenePath     string
}

// dumpedFrame is the printed frame.
type dumpedFrame struct {
	Domain     timeline.DomainTime          `json:"domain"`
	VisualTime float64                      `json:"visualTime"`
	Mode       compositor.VisualMode        `json:"mode"`
	Focused    bool                         `json:"focused"`
	Toggles    geometry.Toggles             `json:"toggles"`
	Layers     []compositor.LayerDescriptor `json:"layers"`
}

func composeFrame(ctx context.Context, opts frameOptions) (*dumpedFrame, error) {
	mode := compositor.ModeDual
	if opts.Mode != "" {
		m, err := compositor.ParseVisualMode(opts.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	if opts.ProgressTicks < 0 {
		return nil, fmt.Errorf("progress-ticks must not be negative")
	}

	scene := config.DefaultScene()
	if opts.ScenePath != "" {
		s, err := config.LoadScene(opts.ScenePath)
		if err != nil {
			return nil, err
		}
		scene = s
	}

	snapshot, err := dataset.NewBundledProvider().FetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bundled dataset: %w", err)
	}

	blender := timeline.NewBlender(timeline.DefaultStepSize)
	tl := timeline.NewController(snapshot.Series, blender)
	if opts.Predicted {
		if err := tl.EnterPrediction(); err != nil {
			return nil, err
		}
	}
	if opts.Year != 0 {
		tl.SetYear(opts.Year, timeline.External)
	}
	for range opts.ProgressTicks {
		blender.Advance()
	}

	toggles := geometry.DefaultToggles()
	if opts.Toggles != nil {
		toggles = *opts.Toggles
	}

	focused := false
	if opts.FocusCell != 0 {
		if _, ok := snapshot.Cell(opts.FocusCell); !ok {
			return nil, fmt.Errorf("unknown cell %d", opts.FocusCell)
		}
		focused = true
	}

	domain := tl.Snapshot()
	layers := compositor.ActiveLayers(toggles, focused, mode)
	return &dumpedFrame{
		Domain:     domain,
		VisualTime: opts.VisualTime,
		Mode:       mode,
		Focused:    focused,
		Toggles:    toggles,
		Layers: compositor.Compose(layers, geometry.New(scene.Geometry, snapshot), geometry.Input{
			Domain:     domain,
			VisualTime: opts.VisualTime,
			Toggles:    toggles,
		}),
	}, nil
}

// parseToggles turns "density,stress" into toggles with only those
// overlays on. Names are the JSON field names of geometry.Toggles.
func parseToggles(list string) (geometry.Toggles, error) {
	on := map[string]bool{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			on[name] = true
		}
	}
	data, err := json.Marshal(on)
	if err != nil {
		return geometry.Toggles{}, err
	}

	var t geometry.Toggles
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return geometry.Toggles{}, fmt.Errorf("invalid toggles %q: %w", list, err)
	}
	return t, nil
}

func writeJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
