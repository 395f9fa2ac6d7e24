package dataset

import (
	"context"
	"fmt"

	"canopy/internal/store/tilestore"
)

// Sample is one training example: a channels-last float32 input tile and a
// flattened label raster.
type Sample struct {
	Input []float32
	Label []float32
}

// Augmenter transforms a training sample in place-or-copy fashion. It is
// applied to training samples only, never validation.
type Augmenter interface {
	Name() string
	Apply(s Sample, naipShape [2]int, channels int) Sample
}

// Wrapper exposes a named cached dataset of aligned NAIP/LiDAR tiles.
type Wrapper struct {
	db   *tilestore.DB
	meta tilestore.Meta
}

// FromName opens the named dataset from the tile store.
func FromName(ctx context.Context, db *tilestore.DB, name string) (*Wrapper, error) {
	meta, err := db.LoadMeta(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Wrapper{db: db, meta: meta}, nil
}

// Name returns the dataset name.
func (w *Wrapper) Name() string { return w.meta.Name }

// NAIPShape returns (height, width) of input tiles.
func (w *Wrapper) NAIPShape() [2]int { return w.meta.NAIPShape }

// LidarShape returns (height, width) of label tiles.
func (w *Wrapper) LidarShape() [2]int { return w.meta.LidarShape }

// Bands returns the stored input band order.
func (w *Wrapper) Bands() []string { return append([]string(nil), w.meta.Bands...) }

// LoadTrain loads the training split with the requested bands and derived
// vegetation indices, applying the augmenter if given.
func (w *Wrapper) LoadTrain(ctx context.Context, label string, bands, vegIndices []string, aug Augmenter) (*Pipeline, error) {
	p, err := w.load(ctx, "train", label, bands, vegIndices)
	if err != nil {
		return nil, err
	}
	if aug != nil {
		channels := len(bands) + len(vegIndices)
		for i := range p.samples {
			p.samples[i] = aug.Apply(p.samples[i], w.meta.NAIPShape, channels)
		}
	}
	return p, nil
}

// LoadVal loads the validation split with the requested bands and indices.
func (w *Wrapper) LoadVal(ctx context.Context, label string, bands, vegIndices []string) (*Pipeline, error) {
	return w.load(ctx, "val", label, bands, vegIndices)
}

func (w *Wrapper) load(ctx context.Context, split, label string, bands, vegIndices []string) (*Pipeline, error) {
	tiles, err := w.db.LoadTiles(ctx, w.meta.Name, split, label)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("dataset %s: no %s tiles for label %s", w.meta.Name, split, label)
	}
	sel, err := bandIndices(w.meta.Bands, bands)
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(tiles))
	for _, t := range tiles {
		in, err := w.composeInput(t.Input, sel, vegIndices)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Input: in, Label: t.Label})
	}
	return &Pipeline{samples: samples}, nil
}

// composeInput subsets the stored channels to the requested bands and
// appends derived vegetation-index channels.
func (w *Wrapper) composeInput(stored []float32, sel []int, vegIndices []string) ([]float32, error) {
	h, wid := w.meta.NAIPShape[0], w.meta.NAIPShape[1]
	storedC := len(w.meta.Bands)
	if len(stored) != h*wid*storedC {
		return nil, fmt.Errorf("dataset %s: tile has %d values, want %dx%dx%d", w.meta.Name, len(stored), h, wid, storedC)
	}
	outC := len(sel) + len(vegIndices)
	out := make([]float32, h*wid*outC)
	var ri, ni = -1, -1
	for i, b := range w.meta.Bands {
		switch b {
		case "R":
			ri = i
		case "N":
			ni = i
		}
	}
	for _, vi := range vegIndices {
		if vi != "ndvi" {
			return nil, fmt.Errorf("unknown vegetation index %s", vi)
		}
		if ri < 0 || ni < 0 {
			return nil, fmt.Errorf("ndvi requires stored R and N bands")
		}
	}
	for p := 0; p < h*wid; p++ {
		src := p * storedC
		dst := p * outC
		for j, s := range sel {
			out[dst+j] = stored[src+s]
		}
		for j, vi := range vegIndices {
			if vi == "ndvi" {
				r := stored[src+ri]
				n := stored[src+ni]
				denom := n + r
				var v float32
				if denom != 0 {
					v = (n - r) / denom
				}
				out[dst+len(sel)+j] = v
			}
		}
	}
	return out, nil
}

func bandIndices(stored, want []string) ([]int, error) {
	idx := make([]int, 0, len(want))
	for _, b := range want {
		found := -1
		for i, s := range stored {
			if s == b {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("band %s not in stored bands %v", b, stored)
		}
		idx = append(idx, found)
	}
	return idx, nil
}
