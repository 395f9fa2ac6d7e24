package earthengine

import (
	"encoding/json"
	"time"
)

// The expression types below model deferred queries against the imagery
// backend. Building an expression performs no I/O; only Evaluator.Evaluate
// executes it. Each node serializes to a small JSON tree of
// {op, args, inputs} that the backend interprets.

// Expr is one node of a query expression tree.
type Expr struct {
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Inputs []*Expr        `json:"inputs,omitempty"`
}

// Image is a deferred single-raster expression.
type Image struct{ node *Expr }

// Collection is a deferred image-collection expression.
type Collection struct{ node *Expr }

// Geometry is a deferred footprint expression.
type Geometry struct{ node *Expr }

// NewImage refers to a named raster asset in the archive.
func NewImage(assetID string) Image {
	return Image{node: &Expr{Op: "image", Args: map[string]any{"assetID": assetID}}}
}

// NewCollection refers to a named image collection.
func NewCollection(id string) Collection {
	return Collection{node: &Expr{Op: "collection", Args: map[string]any{"id": id}}}
}

// FilterEq keeps images whose property equals value.
func (c Collection) FilterEq(prop string, value any) Collection {
	return Collection{node: &Expr{
		Op:     "filterEq",
		Args:   map[string]any{"property": prop, "value": value},
		Inputs: []*Expr{c.node},
	}}
}

// FilterDate keeps images acquired within [start, end]. Both bounds are
// inclusive calendar dates.
func (c Collection) FilterDate(start, end time.Time) Collection {
	return Collection{node: &Expr{
		Op: "filterDate",
		Args: map[string]any{
			"start": start.Format(time.DateOnly),
			"end":   end.Format(time.DateOnly),
		},
		Inputs: []*Expr{c.node},
	}}
}

// FilterBounds keeps images intersecting the geometry.
func (c Collection) FilterBounds(g Geometry) Collection {
	return Collection{node: &Expr{Op: "filterBounds", Inputs: []*Expr{c.node, g.node}}}
}

// Select narrows every image in the collection to a single band.
func (c Collection) Select(band string) Collection {
	return Collection{node: &Expr{
		Op:     "select",
		Args:   map[string]any{"band": band},
		Inputs: []*Expr{c.node},
	}}
}

// MapEq maps each image to a boolean layer testing per-pixel equality with
// value.
func (c Collection) MapEq(value float64) Collection {
	return Collection{node: &Expr{
		Op:     "mapEq",
		Args:   map[string]any{"value": value},
		Inputs: []*Expr{c.node},
	}}
}

// Max reduces the collection to one image with the per-pixel maximum. The
// identity arg pins the empty-collection result to a constant-0 image, so a
// reduction over zero slices behaves as "false everywhere" when the stack
// encodes a pixel-wise OR.
func (c Collection) Max() Image {
	return Image{node: &Expr{
		Op:     "max",
		Args:   map[string]any{"identity": 0.0},
		Inputs: []*Expr{c.node},
	}}
}

// Mosaic composites the collection into one image. Overlaps resolve
// last-write-wins in collection order: later captures take precedence.
func (c Collection) Mosaic() Image {
	return Image{node: &Expr{
		Op:     "mosaic",
		Args:   map[string]any{"overlap": "last"},
		Inputs: []*Expr{c.node},
	}}
}

// Eq maps the image to a boolean layer testing per-pixel equality with v.
func (i Image) Eq(v float64) Image {
	return Image{node: &Expr{
		Op:     "eq",
		Args:   map[string]any{"value": v},
		Inputs: []*Expr{i.node},
	}}
}

// UpdateMask sets pixels to nodata wherever mask is zero or masked.
func (i Image) UpdateMask(mask Image) Image {
	return Image{node: &Expr{Op: "updateMask", Inputs: []*Expr{i.node, mask.node}}}
}

// Reproject resamples the image into crs at the given linear scale.
func (i Image) Reproject(crs string, scale float64) Image {
	return Image{node: &Expr{
		Op:     "reproject",
		Args:   map[string]any{"crs": crs, "scale": scale},
		Inputs: []*Expr{i.node},
	}}
}

// Geometry returns the image's footprint.
func (i Image) Geometry() Geometry {
	return Geometry{node: &Expr{Op: "geometry", Inputs: []*Expr{i.node}}}
}

// Bounds returns the rectangular envelope of the geometry.
func (g Geometry) Bounds() Geometry {
	return Geometry{node: &Expr{Op: "bounds", Inputs: []*Expr{g.node}}}
}

// Expr exposes the underlying node, mainly for tests inspecting structure.
func (i Image) Expr() *Expr { return i.node }

// Expr exposes the underlying node.
func (c Collection) Expr() *Expr { return c.node }

// Expr exposes the underlying node.
func (g Geometry) Expr() *Expr { return g.node }

// MarshalJSON serializes the deferred expression.
func (i Image) MarshalJSON() ([]byte, error) { return json.Marshal(i.node) }

// Walk visits the expression tree depth-first, root last.
func (e *Expr) Walk(visit func(*Expr)) {
	for _, in := range e.Inputs {
		in.Walk(visit)
	}
	visit(e)
}

// Find returns the first node with the given op in depth-first order, or nil.
func (e *Expr) Find(op string) *Expr {
	var found *Expr
	e.Walk(func(n *Expr) {
		if found == nil && n.Op == op {
			found = n
		}
	})
	return found
}
