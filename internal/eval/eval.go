package eval

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"canopy/internal/dataset"
	"canopy/internal/model"
)

// RSquared is the coefficient of determination over paired observations.
// A constant truth vector has no variance to explain: the result is 1 for a
// perfect fit and 0 otherwise.
func RSquared(yTrue, yPred []float64) float64 {
	mean := stat.Mean(yTrue, nil)
	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// EvaluateModel scores the restored model over the full validation set. It
// predicts every batch, concatenates the true labels, and refuses to score
// if the prediction and label counts disagree rather than silently
// truncating. Summary metrics carry the final/ prefix to separate one-shot
// end-of-run values from per-epoch series.
func EvaluateModel(ctx context.Context, run *model.Run, val *dataset.Batches, bestEpoch, stoppedEpoch int) (map[string]float64, []float64, []float64, error) {
	preds, err := run.Model.Predict(ctx, val)
	if err != nil {
		return nil, nil, nil, err
	}
	labels := val.Labels()
	if len(preds) != len(labels) {
		return nil, nil, nil, fmt.Errorf("eval: %d predictions for %d validation samples", len(preds), len(labels))
	}

	var yTrue, yPred []float64
	for i := range labels {
		if len(preds[i]) != len(labels[i]) {
			return nil, nil, nil, fmt.Errorf("eval: sample %d: %d predicted pixels for %d label pixels", i, len(preds[i]), len(labels[i]))
		}
		for j := range labels[i] {
			yTrue = append(yTrue, float64(labels[i][j]))
			yPred = append(yPred, float64(preds[i][j]))
		}
	}

	summary := map[string]float64{
		"final/best_epoch":    float64(bestEpoch),
		"final/stopped_epoch": float64(stoppedEpoch),
		"final/r2_score":      RSquared(yTrue, yPred),
	}

	vals, err := run.Model.Evaluate(ctx, val)
	if err != nil {
		return nil, nil, nil, err
	}
	names := run.Model.MetricNames()
	if len(vals) != len(names) {
		return nil, nil, nil, fmt.Errorf("eval: %d metric values for %d names", len(vals), len(names))
	}
	for i, name := range names {
		summary["final/"+name] = vals[i]
	}
	return summary, yTrue, yPred, nil
}
