package compositor

import (
	"github.com/urbanscope/urbanscope/internal/geometry"
)

// ActiveLayers returns the layers to draw, in paint order. Focused mode
// drops every aggregate layer; the visual mode drops the other family.
func ActiveLayers(toggles geometry.Toggles, focused bool, mode VisualMode) []Layer {
	if mode == "" {
		mode = ModeDual
	}
	var out []Layer
	for _, l := range catalog {
		if focused && l.Aggregate {
			continue
		}
		if !mode.admits(l.Family) || !l.enabled(toggles) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Names returns the ids of layers.
func Names(layers []Layer) []string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.ID
	}
	return names
}

// Accessors names the primitive fields the renderer reads for each
// visual channel. Empty channels are unused by the layer type.
type Accessors struct {
	Position  string `json:"getPosition,omitempty"`
	Path      string `json:"getPath,omitempty"`
	Polygon   string `json:"getPolygon,omitempty"`
	Elevation string `json:"getElevation,omitempty"`
	FillColor string `json:"getFillColor,omitempty"`
	LineColor string `json:"getLineColor,omitempty"`
	Radius    string `json:"getRadius,omitempty"`
	Width     string `json:"getWidth,omitempty"`
	Text      string `json:"getText,omitempty"`
}

// AccessorsFor returns the accessor set for a renderer layer type.
func AccessorsFor(layerType string) Accessors {
	switch layerType {
	case TypePolygon:
		return Accessors{Polygon: "polygon", Elevation: "elevation", FillColor: "fillColor", LineColor: "lineColor"}
	case TypeColumn:
		return Accessors{Position: "position", Elevation: "elevation", FillColor: "fillColor", LineColor: "lineColor", Radius: "radius"}
	case TypePath:
		return Accessors{Path: "path", LineColor: "lineColor", Width: "width"}
	case TypeScatter:
		return Accessors{Position: "position", FillColor: "fillColor", LineColor: "lineColor", Radius: "radius", Width: "width"}
	case TypeText:
		return Accessors{Position: "position", FillColor: "fillColor", Text: "text"}
	}
	return Accessors{}
}

// LayerDescriptor is the declarative layer sent to the renderer.
type LayerDescriptor struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	PrimitiveKind geometry.Kind        `json:"primitiveKind"`
	Family        Family               `json:"family"`
	Data          []geometry.Primitive `json:"data"`
	Accessors     Accessors            `json:"accessors"`
	Pickable      bool                 `json:"pickable"`
	Extruded      bool                 `json:"extruded"`
}

// Compose runs the generator of each layer once and wraps the output.
// Layers keep their order; empty output still yields a descriptor so the
// renderer can drop stale data.
func Compose(layers []Layer, g *geometry.Generators, in geometry.Input) []LayerDescriptor {
	out := make([]LayerDescriptor, 0, len(layers))
	for _, l := range layers {
		data := l.generate(g, in)
		if data == nil {
			data = []geometry.Primitive{}
		}
		out = append(out, LayerDescriptor{
			ID:            l.ID,
			Type:          l.Type,
			PrimitiveKind: l.Kind,
			Family:        l.Family,
			Data:          data,
			Accessors:     AccessorsFor(l.Type),
			Pickable:      l.Pickable,
			Extruded:      l.Extruded,
		})
	}
	return out
}
