package train

import (
	"context"
	"errors"
	"fmt"

	"canopy/internal/config"
	"canopy/internal/dataset"
	"canopy/internal/eval"
	"canopy/internal/gpu"
	"canopy/internal/logging"
	"canopy/internal/metrics"
	"canopy/internal/model"
	"canopy/internal/store/tilestore"
	"canopy/internal/track"
)

// Options are the train command's flags.
type Options struct {
	// AllowDuplicateRuns lets the tracking service accept a run whose
	// config matches an existing one.
	AllowDuplicateRuns bool
	// AllowCPU skips the GPU startup assertion.
	AllowCPU bool
}

// Run drives one full training run: load data, build and compile the model,
// fit with checkpointing and early stopping, restore the best epoch,
// evaluate, and publish results to the tracking service. Manual
// interruption (ctx cancellation) during fitting is recovered; the run then
// evaluates with the restored weights but skips the completion alert. Any
// other failure aborts without publishing a summary.
func Run(ctx context.Context, cfg config.Config, tracker track.Tracker, opts Options) error {
	if !opts.AllowCPU && !gpu.Available() {
		return errors.New("no GPU detected; use --allow-cpu to train anyways")
	}
	metrics.TrainRuns.Inc()

	state := StateInit
	db, err := tilestore.Open(cfg.Storage.DBPath)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	defer db.Close()

	wrapper, err := dataset.FromName(ctx, db, cfg.Dataset.Name)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	var aug dataset.Augmenter
	if cfg.Dataset.Augment {
		aug = dataset.NewFlipRotate(cfg.Training.Seed, wrapper.LidarShape())
	}
	trainPipe, err := wrapper.LoadTrain(ctx, cfg.Dataset.Label, cfg.Dataset.Bands, cfg.Dataset.VegIndices, aug)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	valPipe, err := wrapper.LoadVal(ctx, cfg.Dataset.Label, cfg.Dataset.Bands, cfg.Dataset.VegIndices)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	trainBatches := trainPipe.Shuffle(cfg.Dataset.ShuffleBuffer, cfg.Training.Seed).Batch(cfg.Training.BatchSize)
	valBatches := valPipe.Batch(cfg.Training.BatchSize)
	if trainBatches.Len() == 0 || valBatches.Len() == 0 {
		metrics.TrainErrors.Inc()
		return fmt.Errorf("dataset %s too small for batch size %d", cfg.Dataset.Name, cfg.Training.BatchSize)
	}
	state = StateDataLoaded
	logging.Info("data_loaded", map[string]any{
		"state": state.String(), "n_train": trainBatches.NumSamples(), "n_val": valBatches.NumSamples(),
	})

	channels := len(cfg.Dataset.Bands) + len(cfg.Dataset.VegIndices)
	m, err := model.NewConvRegressor(wrapper.NAIPShape(), channels, wrapper.LidarShape(), cfg.Model.Params, cfg.Training.Seed)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	if err := m.Compile(model.CompileOptions{
		LearnRate: cfg.Training.LearnRate,
		Loss:      "mse",
		Metrics:   []string{"mae", "mse"},
	}); err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	allBands := append(append([]string{}, cfg.Dataset.Bands...), cfg.Dataset.VegIndices...)
	run := &model.Run{
		Model:   m,
		Params:  cfg.Model.Params,
		Dataset: cfg.Dataset.Name,
		Label:   cfg.Dataset.Label,
		Bands:   allBands,
	}
	state = StateModelBuilt
	logging.Info("model_built", map[string]any{"state": state.String(), "run": run.Name()})

	augName := ""
	if aug != nil {
		augName = aug.Name()
	}
	params := make(map[string]any, len(cfg.Model.Params))
	for k, v := range cfg.Model.Params {
		params[k] = v
	}
	if err := tracker.InitRun(ctx, track.RunConfig{
		Project:        cfg.Tracking.Project,
		Entity:         cfg.Tracking.Entity,
		Name:           run.Name(),
		Dataset:        cfg.Dataset.Name,
		Model:          cfg.Model.Name,
		Bands:          allBands,
		Label:          cfg.Dataset.Label,
		BatchSize:      cfg.Training.BatchSize,
		LearnRate:      cfg.Training.LearnRate,
		Epochs:         cfg.Training.Epochs,
		NTrain:         trainBatches.NumSamples(),
		NVal:           valBatches.NumSamples(),
		Augmenter:      augName,
		Params:         params,
		AllowDuplicate: opts.AllowDuplicateRuns,
	}); err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	state = StateTrackingStarted
	logging.Info("tracking_started", map[string]any{"state": state.String()})

	fitter := &Fitter{
		Run:           run,
		Train:         trainBatches,
		Val:           valBatches,
		Epochs:        cfg.Training.Epochs,
		Patience:      cfg.Training.Patience,
		CheckpointDir: cfg.Training.CheckpointDir,
		Tracker:       tracker,
	}
	state = StateFitting
	logging.Info("fitting", map[string]any{"state": state.String(), "epochs": cfg.Training.Epochs})
	result, err := fitter.Fit(ctx)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	state = StateBestCheckpointRestored
	logging.Info("fit_done", map[string]any{
		"state": state.String(), "final": result.Final.String(),
		"best_epoch": result.BestEpoch, "stopped_epoch": result.StoppedEpoch,
	})

	// Evaluation runs even after an interrupt, with whatever weights the
	// best checkpoint holds. Use a fresh context: the signal context is
	// already cancelled at this point.
	evalCtx := context.WithoutCancel(ctx)
	summary, yTrue, yPred, err := eval.EvaluateModel(evalCtx, run, valBatches, result.BestEpoch, result.StoppedEpoch)
	if err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	state = StateEvaluated

	if hist, err := eval.HistogramPNG(yTrue, yPred); err != nil {
		logging.Warn("hist_plot_failed", map[string]any{"error": err.Error()})
	} else if err := tracker.LogImage(evalCtx, "hist", hist); err != nil {
		logging.Warn("hist_upload_failed", map[string]any{"error": err.Error()})
	}
	if scatter, err := eval.ScatterPNG(yTrue, yPred); err != nil {
		logging.Warn("scatter_plot_failed", map[string]any{"error": err.Error()})
	} else if err := tracker.LogImage(evalCtx, "scatter", scatter); err != nil {
		logging.Warn("scatter_upload_failed", map[string]any{"error": err.Error()})
	}

	full := make(map[string]any, len(summary)+1)
	for k, v := range summary {
		full[k] = v
	}
	full["interrupted"] = result.Interrupted
	if err := tracker.UpdateSummary(evalCtx, full); err != nil {
		metrics.TrainErrors.Inc()
		return err
	}
	state = StatePublished

	// Notify on run completion, unless the user ended the run manually.
	if !result.Interrupted {
		text := fmt.Sprintf("R^2: %.4f, MAE: %.4f", summary["final/r2_score"], summary["final/mae"])
		if err := tracker.Alert(evalCtx, "Run Complete", text); err != nil {
			logging.Warn("alert_failed", map[string]any{"error": err.Error()})
		}
	}

	if err := tracker.Finish(evalCtx, "finished"); err != nil {
		return err
	}
	state = StateDone
	logging.Info("run_done", map[string]any{"state": state.String(), "interrupted": result.Interrupted})
	return nil
}
