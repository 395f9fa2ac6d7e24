package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canopy/internal/checkpoint"
	"canopy/internal/dataset"
	"canopy/internal/logging"
	"canopy/internal/metrics"
	"canopy/internal/model"
	"canopy/internal/track"
)

// EarlyStopper halts fitting after Patience consecutive epochs without a
// strict validation-loss improvement. It never restores weights itself;
// restore always goes through the best checkpoint afterward.
type EarlyStopper struct {
	Patience int
	best     float64
	bad      int
	started  bool
}

func NewEarlyStopper(patience int) *EarlyStopper {
	return &EarlyStopper{Patience: patience}
}

// Observe feeds one epoch's validation loss. improved is true on a strict
// improvement over the best seen value; stop is true once Patience
// non-improving epochs have accumulated.
func (e *EarlyStopper) Observe(valLoss float64) (improved, stop bool) {
	if !e.started || valLoss < e.best {
		e.best = valLoss
		e.started = true
		e.bad = 0
		return true, false
	}
	e.bad++
	return false, e.Patience > 0 && e.bad >= e.Patience
}

// EpochResult is the observable outcome of one fitting epoch.
type EpochResult struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	Metrics   map[string]float64
	Improved  bool
	Duration  time.Duration
}

// Result summarizes a finished fit.
type Result struct {
	// BestEpoch is the epoch whose checkpoint recorded the lowest
	// validation loss, as selected at restore time.
	BestEpoch int
	// StoppedEpoch is the last epoch actually executed.
	StoppedEpoch int
	// Interrupted marks a manual cancellation rather than convergence or
	// early stop.
	Interrupted bool
	// Final is the terminal fitting state reached.
	Final State
}

// Fitter runs the explicit epoch loop: checkpoint on strict improvement,
// early stop on stalled validation loss, graceful interrupt on context
// cancellation.
type Fitter struct {
	Run           *model.Run
	Train, Val    *dataset.Batches
	Epochs        int
	Patience      int
	CheckpointDir string
	Tracker       track.Tracker
	// OnEpoch, if set, observes every completed epoch.
	OnEpoch func(EpochResult)
}

// Fit executes the loop and restores the best checkpoint into the live
// model. Cancellation is recovered as an interrupted result; any other
// error aborts with no restore.
func (f *Fitter) Fit(ctx context.Context) (Result, error) {
	stopper := NewEarlyStopper(f.Patience)
	res := Result{Final: StateConverged}

	for epoch := 1; epoch <= f.Epochs; epoch++ {
		if ctx.Err() != nil {
			res.Interrupted = true
			res.Final = StateInterrupted
			break
		}
		start := time.Now()
		trainLoss, err := f.Run.Model.FitEpoch(ctx, f.Train)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.Interrupted = true
				res.Final = StateInterrupted
				break
			}
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		vals, err := f.Run.Model.Evaluate(ctx, f.Val)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.Interrupted = true
				res.Final = StateInterrupted
				break
			}
			return res, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
		valLoss := vals[0]
		res.StoppedEpoch = epoch
		metrics.ObserveEpochDuration(start)

		improved, stop := stopper.Observe(valLoss)
		if improved {
			if err := checkpoint.Save(f.CheckpointDir, f.Run.Name(), epoch, valLoss, f.Run.Model.Weights()); err != nil {
				return res, fmt.Errorf("epoch %d checkpoint: %w", epoch, err)
			}
		}

		er := EpochResult{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			ValLoss:   valLoss,
			Metrics:   map[string]float64{},
			Improved:  improved,
			Duration:  time.Since(start),
		}
		names := f.Run.Model.MetricNames()
		for i, name := range names {
			if i < len(vals) {
				er.Metrics["val_"+name] = vals[i]
			}
		}
		if f.Tracker != nil {
			epochVals := map[string]float64{"epoch/train_loss": trainLoss}
			for k, v := range er.Metrics {
				epochVals["epoch/"+k] = v
			}
			if err := f.Tracker.LogMetrics(ctx, epoch, epochVals); err != nil {
				logging.Warn("track_epoch_failed", map[string]any{"epoch": epoch, "error": err.Error()})
			}
		}
		if f.OnEpoch != nil {
			f.OnEpoch(er)
		}
		logging.Info("epoch", map[string]any{
			"epoch": epoch, "train_loss": trainLoss, "val_loss": valLoss, "improved": improved,
		})

		if stop {
			res.Final = StateEarlyStopped
			logging.Info("early_stop", map[string]any{"epoch": epoch, "patience": f.Patience})
			break
		}
	}

	if res.Interrupted {
		logging.Info("fit_interrupted", map[string]any{"epoch": res.StoppedEpoch})
	}

	// Regardless of how fitting ended, reload the best checkpoint found on
	// disk into the live model.
	best, bestLoss, err := checkpoint.BestEpoch(f.CheckpointDir, f.Run.Name())
	if err != nil {
		return res, fmt.Errorf("restore: %w", err)
	}
	weights, err := checkpoint.LoadWeights(f.CheckpointDir, f.Run.Name(), best)
	if err != nil {
		return res, fmt.Errorf("restore epoch %d: %w", best, err)
	}
	if err := f.Run.Model.SetWeights(weights); err != nil {
		return res, fmt.Errorf("restore epoch %d: %w", best, err)
	}
	res.BestEpoch = best
	logging.Info("best_checkpoint_restored", map[string]any{"epoch": best, "val_loss": bestLoss})
	return res, nil
}
