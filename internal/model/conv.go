package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"canopy/internal/dataset"
)

// ConvRegressor regresses each 30 m label pixel from the block of input
// pixels beneath it: per-channel block means feed a shared linear head.
// It is deliberately small; it exists to exercise the full training and
// evaluation path, not to compete with a real convolutional stack.
type ConvRegressor struct {
	inH, inW, channels int
	outH, outW         int
	ratio              int

	weights []float32 // one weight per channel, then bias
	opts    CompileOptions
	rng     *rand.Rand
	ready   bool
}

// NewConvRegressor builds a model for the given input shape (h, w, channels)
// and label shape (h, w). The input grid must tile the label grid evenly.
func NewConvRegressor(naipShape [2]int, channels int, lidarShape [2]int, params map[string]float64, seed int64) (*ConvRegressor, error) {
	if lidarShape[0] == 0 || lidarShape[1] == 0 {
		return nil, errors.New("model: empty label shape")
	}
	if naipShape[0]%lidarShape[0] != 0 || naipShape[1]%lidarShape[1] != 0 {
		return nil, fmt.Errorf("model: input %v does not tile labels %v", naipShape, lidarShape)
	}
	ratio := naipShape[0] / lidarShape[0]
	if naipShape[1]/lidarShape[1] != ratio {
		return nil, fmt.Errorf("model: anisotropic input/label ratio")
	}
	m := &ConvRegressor{
		inH: naipShape[0], inW: naipShape[1], channels: channels,
		outH: lidarShape[0], outW: lidarShape[1],
		ratio: ratio,
		rng:   rand.New(rand.NewSource(seed)),
	}
	m.weights = make([]float32, channels+1)
	for i := 0; i < channels; i++ {
		m.weights[i] = float32(m.rng.NormFloat64() * 0.01)
	}
	_ = params // reserved for architecture knobs; the linear head has none
	return m, nil
}

func (m *ConvRegressor) Compile(opts CompileOptions) error {
	if opts.Loss != "mse" {
		return fmt.Errorf("model: unsupported loss %q", opts.Loss)
	}
	if opts.LearnRate <= 0 {
		return errors.New("model: learn rate must be positive")
	}
	m.opts = opts
	m.ready = true
	return nil
}

func (m *ConvRegressor) MetricNames() []string {
	return append([]string{"loss"}, m.opts.Metrics...)
}

func (m *ConvRegressor) Weights() []float32 {
	out := make([]float32, len(m.weights))
	copy(out, m.weights)
	return out
}

func (m *ConvRegressor) SetWeights(w []float32) error {
	if len(w) != len(m.weights) {
		return fmt.Errorf("model: %d weights, want %d", len(w), len(m.weights))
	}
	copy(m.weights, w)
	return nil
}

// blockMeans pools one sample into per-output-pixel, per-channel means.
func (m *ConvRegressor) blockMeans(input []float32) [][]float32 {
	out := make([][]float32, m.outH*m.outW)
	area := float32(m.ratio * m.ratio)
	for oy := 0; oy < m.outH; oy++ {
		for ox := 0; ox < m.outW; ox++ {
			means := make([]float32, m.channels)
			for dy := 0; dy < m.ratio; dy++ {
				y := oy*m.ratio + dy
				for dx := 0; dx < m.ratio; dx++ {
					x := ox*m.ratio + dx
					base := (y*m.inW + x) * m.channels
					for c := 0; c < m.channels; c++ {
						means[c] += input[base+c]
					}
				}
			}
			for c := range means {
				means[c] /= area
			}
			out[oy*m.outW+ox] = means
		}
	}
	return out
}

func (m *ConvRegressor) forward(input []float32) []float32 {
	means := m.blockMeans(input)
	pred := make([]float32, len(means))
	bias := m.weights[m.channels]
	for i, f := range means {
		var y float32
		for c := 0; c < m.channels; c++ {
			y += m.weights[c] * f[c]
		}
		pred[i] = y + bias
	}
	return pred
}

func (m *ConvRegressor) FitEpoch(ctx context.Context, train *dataset.Batches) (float64, error) {
	if !m.ready {
		return 0, errors.New("model: not compiled")
	}
	var total float64
	var count int
	lr := float32(m.opts.LearnRate)
	for i := 0; i < train.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch := train.At(i)
		grad := make([]float32, len(m.weights))
		var batchLoss float64
		var n int
		for j, input := range batch.Inputs {
			means := m.blockMeans(input)
			label := batch.Labels[j]
			bias := m.weights[m.channels]
			for k, f := range means {
				var y float32
				for c := 0; c < m.channels; c++ {
					y += m.weights[c] * f[c]
				}
				y += bias
				diff := y - label[k]
				batchLoss += float64(diff) * float64(diff)
				for c := 0; c < m.channels; c++ {
					grad[c] += 2 * diff * f[c]
				}
				grad[m.channels] += 2 * diff
				n++
			}
		}
		if n == 0 {
			continue
		}
		for c := range m.weights {
			m.weights[c] -= lr * grad[c] / float32(n)
		}
		total += batchLoss / float64(n)
		count++
	}
	if count == 0 {
		return 0, errors.New("model: no training batches")
	}
	return total / float64(count), nil
}

func (m *ConvRegressor) Predict(ctx context.Context, data *dataset.Batches) ([][]float32, error) {
	out := make([][]float32, 0, data.NumSamples())
	for i := 0; i < data.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := data.At(i)
		for _, input := range batch.Inputs {
			out = append(out, m.forward(input))
		}
	}
	return out, nil
}

func (m *ConvRegressor) Evaluate(ctx context.Context, data *dataset.Batches) ([]float64, error) {
	var sse, sae float64
	var n int
	for i := 0; i < data.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := data.At(i)
		for j, input := range batch.Inputs {
			pred := m.forward(input)
			label := batch.Labels[j]
			for k := range pred {
				d := float64(pred[k]) - float64(label[k])
				sse += d * d
				sae += math.Abs(d)
				n++
			}
		}
	}
	if n == 0 {
		return nil, errors.New("model: no evaluation samples")
	}
	mse := sse / float64(n)
	mae := sae / float64(n)
	out := []float64{mse}
	for _, name := range m.opts.Metrics {
		switch name {
		case "mae":
			out = append(out, mae)
		case "mse":
			out = append(out, mse)
		default:
			return nil, fmt.Errorf("model: unknown metric %q", name)
		}
	}
	return out, nil
}
