package dataset

import (
	"math/rand"
)

// Pipeline is an in-memory sequence of samples with the transform steps the
// trainer applies before batching. Samples are materialized on load, so
// Cache is the natural state of the pipeline; Shuffle and Batch mirror the
// buffered semantics of the streaming pipelines this replaces.
type Pipeline struct {
	samples []Sample
}

// NewPipeline wraps already-materialized samples. Loading from the tile
// store is the usual entry point; this exists for synthetic data.
func NewPipeline(samples []Sample) *Pipeline {
	return &Pipeline{samples: samples}
}

// Len returns the number of samples.
func (p *Pipeline) Len() int { return len(p.samples) }

// Shuffle performs a buffered shuffle with the given buffer size: samples
// stream through a reservoir of bufferSize slots and exit in randomized
// order. With bufferSize >= Len this is a full Fisher-Yates shuffle.
func (p *Pipeline) Shuffle(bufferSize int, seed int64) *Pipeline {
	if bufferSize <= 0 || len(p.samples) < 2 {
		return p
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]Sample, 0, len(p.samples))
	buf := make([]Sample, 0, bufferSize)
	for _, s := range p.samples {
		if len(buf) < bufferSize {
			buf = append(buf, s)
			continue
		}
		i := rng.Intn(len(buf))
		out = append(out, buf[i])
		buf[i] = s
	}
	for len(buf) > 0 {
		i := rng.Intn(len(buf))
		out = append(out, buf[i])
		buf[i] = buf[len(buf)-1]
		buf = buf[:len(buf)-1]
	}
	return &Pipeline{samples: out}
}

// Batch groups samples into fixed-size batches, dropping any remainder
// smaller than batchSize. Remainders are dropped on both train and val
// splits, trading a small data loss for fixed-shape batches.
func (p *Pipeline) Batch(batchSize int) *Batches {
	if batchSize <= 0 {
		return &Batches{batchSize: batchSize}
	}
	n := len(p.samples) / batchSize
	batches := make([]Batch, 0, n)
	for i := 0; i < n; i++ {
		b := Batch{
			Inputs: make([][]float32, batchSize),
			Labels: make([][]float32, batchSize),
		}
		for j := 0; j < batchSize; j++ {
			s := p.samples[i*batchSize+j]
			b.Inputs[j] = s.Input
			b.Labels[j] = s.Label
		}
		batches = append(batches, b)
	}
	return &Batches{batches: batches, batchSize: batchSize}
}

// Batch is one fixed-size group of samples.
type Batch struct {
	Inputs [][]float32
	Labels [][]float32
}

// Batches is a batched dataset ready for fitting or evaluation.
type Batches struct {
	batches   []Batch
	batchSize int
}

// Len returns the number of batches.
func (b *Batches) Len() int { return len(b.batches) }

// BatchSize returns the fixed batch size.
func (b *Batches) BatchSize() int { return b.batchSize }

// At returns batch i.
func (b *Batches) At(i int) Batch { return b.batches[i] }

// NumSamples returns the total sample count across all batches.
func (b *Batches) NumSamples() int { return len(b.batches) * b.batchSize }

// Labels concatenates the true labels of every batch in order.
func (b *Batches) Labels() [][]float32 {
	out := make([][]float32, 0, b.NumSamples())
	for _, batch := range b.batches {
		out = append(out, batch.Labels...)
	}
	return out
}
