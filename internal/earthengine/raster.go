package earthengine

import "fmt"

// Extent is a rectangular footprint in projected coordinates.
type Extent struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Raster is the evaluated result of an image expression: a single band of
// samples on a regular grid, with a validity mask (false = nodata).
type Raster struct {
	CRS    string    `json:"crs"`
	Scale  float64   `json:"scale"`
	Band   string    `json:"band"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Extent Extent    `json:"extent"`
	Values []float64 `json:"values"`
	Mask   []bool    `json:"mask"`
}

// Validate checks that the grid dimensions agree with the sample count.
func (r *Raster) Validate() error {
	n := r.Width * r.Height
	if len(r.Values) != n {
		return fmt.Errorf("raster: %d values for %dx%d grid", len(r.Values), r.Width, r.Height)
	}
	if r.Mask != nil && len(r.Mask) != n {
		return fmt.Errorf("raster: %d mask entries for %dx%d grid", len(r.Mask), r.Width, r.Height)
	}
	return nil
}

// Valid reports whether the pixel at index i carries data.
func (r *Raster) Valid(i int) bool {
	if r.Mask == nil {
		return true
	}
	return r.Mask[i]
}

// AllValid reports whether every pixel carries data.
func (r *Raster) AllValid() bool {
	if r.Mask == nil {
		return true
	}
	for _, ok := range r.Mask {
		if !ok {
			return false
		}
	}
	return true
}
