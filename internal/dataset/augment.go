package dataset

import "math/rand"

// FlipRotate is the default training augmenter: each sample is randomly
// flipped horizontally and/or vertically. Input and label tiles transform
// together so the pair stays aligned.
type FlipRotate struct {
	rng *rand.Rand
	// label grid shape, needed to flip labels consistently with inputs
	LidarShape [2]int
}

// NewFlipRotate builds the augmenter with a deterministic seed.
func NewFlipRotate(seed int64, lidarShape [2]int) *FlipRotate {
	return &FlipRotate{rng: rand.New(rand.NewSource(seed)), LidarShape: lidarShape}
}

func (f *FlipRotate) Name() string { return "flip" }

// Apply flips the sample along each axis with probability 1/2.
func (f *FlipRotate) Apply(s Sample, naipShape [2]int, channels int) Sample {
	flipH := f.rng.Intn(2) == 1
	flipV := f.rng.Intn(2) == 1
	if !flipH && !flipV {
		return s
	}
	out := Sample{
		Input: flipGrid(s.Input, naipShape[0], naipShape[1], channels, flipH, flipV),
		Label: flipGrid(s.Label, f.LidarShape[0], f.LidarShape[1], 1, flipH, flipV),
	}
	return out
}

func flipGrid(v []float32, h, w, c int, flipH, flipV bool) []float32 {
	out := make([]float32, len(v))
	for y := 0; y < h; y++ {
		sy := y
		if flipV {
			sy = h - 1 - y
		}
		for x := 0; x < w; x++ {
			sx := x
			if flipH {
				sx = w - 1 - x
			}
			copy(out[(y*w+x)*c:(y*w+x+1)*c], v[(sy*w+sx)*c:(sy*w+sx+1)*c])
		}
	}
	return out
}
