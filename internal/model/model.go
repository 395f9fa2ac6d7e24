package model

import (
	"context"
	"fmt"
	"strings"

	"canopy/internal/dataset"
)

// CompileOptions fix the optimizer and tracked metrics before fitting.
type CompileOptions struct {
	LearnRate float64
	Loss      string   // only "mse" is supported
	Metrics   []string // tracked alongside loss, e.g. ["mae","mse"]
}

// Model is the training-framework surface the orchestrator depends on.
// Implementations own their architecture and gradients; the orchestrator
// only compiles, steps epochs, predicts, and moves weights around.
type Model interface {
	Compile(opts CompileOptions) error
	// FitEpoch runs one pass over the training batches and returns the mean
	// training loss. It honors ctx cancellation between batches.
	FitEpoch(ctx context.Context, train *dataset.Batches) (float64, error)
	// Predict returns one prediction per sample across all batches, in order.
	Predict(ctx context.Context, data *dataset.Batches) ([][]float32, error)
	// Evaluate computes the compiled metric values over the batches, aligned
	// with MetricNames.
	Evaluate(ctx context.Context, data *dataset.Batches) ([]float64, error)
	MetricNames() []string
	Weights() []float32
	SetWeights(w []float32) error
}

// Run ties a compiled model to the dataset and hyperparameters of one
// training invocation. Discarded after its summary is published.
type Run struct {
	Model   Model
	Params  map[string]float64
	Dataset string
	Label   string
	Bands   []string
}

// Name derives the run identifier used in checkpoint paths and tracking.
func (r *Run) Name() string {
	bands := strings.Join(r.Bands, "")
	return fmt.Sprintf("%s-%s-%s", r.Dataset, r.Label, bands)
}
