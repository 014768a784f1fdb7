package trainer

import (
	"context"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"leafnet/internal/checkpoint"
	"leafnet/internal/dataset"
	"leafnet/internal/logging"
	"leafnet/internal/metrics"
	"leafnet/internal/model"
)

// Network is a model whose parameters can be checkpointed.
type Network interface {
	model.Model
	Checkpoint(step int) *checkpoint.Checkpoint
	Restore(c *checkpoint.Checkpoint) error
}

// RunConfig captures the knobs required by the training loop.
// A resumed run continues step numbering after the restored checkpoint and
// runs Steps more steps. A fresh run first clears the checkpoint directory.
type RunConfig struct {
	Data            *dataset.Partition
	Model           Network
	Store           *checkpoint.Store
	Steps           int
	BatchSize       int
	CheckpointEvery int
	// Load resumes from the latest checkpoint in Store.
	Load bool
	Log  *zap.SugaredLogger
}

// Offset is the start of the minibatch for step. Batches walk the training
// set in order and wrap modulo (n - batchSize), so the data is never
// reshuffled between passes and the last batchSize rows are only reached
// when the offsets line up with them.
func Offset(step, batchSize, n int) int {
	span := n - batchSize
	if span <= 0 {
		return 0
	}
	return (step * batchSize) % span
}

// Run executes the training workload and returns the per-step history.
func Run(ctx context.Context, cfg RunConfig) (*metrics.History, error) {
	if cfg.Steps <= 0 {
		return nil, errors.New("trainer: steps must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if cfg.Data == nil || len(cfg.Data.Train) == 0 {
		return nil, errors.New("trainer: no training data")
	}
	if cfg.Model == nil || cfg.Store == nil {
		return nil, errors.New("trainer: model and checkpoint store are required")
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100
	}
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}

	first := 0
	if cfg.Load {
		log.Info("Loading Model...")
		ckpt, err := cfg.Store.Latest()
		if err != nil {
			return nil, err
		}
		if err := cfg.Model.Restore(ckpt); err != nil {
			return nil, err
		}
		first = ckpt.Step + 1
		log.Infow("Model Successfully Loaded", "step", ckpt.Step, "dir", cfg.Store.Dir())
	} else {
		// a fresh run must not compete with an earlier run's higher steps
		removed, err := cfg.Store.Clear()
		if err != nil {
			return nil, errors.Wrap(err, "trainer: clear stale checkpoints")
		}
		if removed > 0 {
			log.Infow("removed checkpoints from a previous run", "count", removed, "dir", cfg.Store.Dir())
		}
	}

	data := cfg.Data
	n := len(data.Train)
	history := &metrics.History{}
	var window metrics.Window

	step := first
	for ; step < first+cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		offset := Offset(step, cfg.BatchSize, n)
		end := offset + cfg.BatchSize
		if end > n {
			end = n
		}
		batch := model.Batch{Inputs: data.Train[offset:end], Labels: data.TrainLabels[offset:end]}

		start := time.Now()
		res, err := cfg.Model.TrainStep(batch)
		if err != nil {
			return history, errors.Wrapf(err, "trainer: step %d", step)
		}
		acc := metrics.LabelAccuracy(res.Probs, batch.Labels)
		history.Add(res.Loss, acc)
		window.Record(len(batch.Inputs), time.Since(start), res.Loss, acc)

		if step%cfg.CheckpointEvery == 0 {
			snap := window.Snapshot()
			log.Infof("Minibatch loss at step %d: %f", step, snap.LastLoss)
			log.Infof("Minibatch accuracy: %.1f%%", snap.LastAccuracy)
			log.Infow("throughput", "step", step, "window_steps", snap.Steps,
				"samples_per_sec", snap.SamplesPerSec, "compute_ms", snap.AvgComputeMS)
			if err := report(cfg, log, history, step); err != nil {
				return history, err
			}
		}
	}

	if err := report(cfg, log, history, step-1); err != nil {
		return history, err
	}
	return history, nil
}

// report scores the validation partition and checkpoints the model at step.
func report(cfg RunConfig, log *zap.SugaredLogger, history *metrics.History, step int) error {
	if len(cfg.Data.Valid) > 0 {
		probs, err := cfg.Model.Forward(cfg.Data.Valid)
		if err != nil {
			return errors.Wrapf(err, "trainer: validate at step %d", step)
		}
		acc := metrics.LabelAccuracy(probs, cfg.Data.ValidLabels)
		history.AddValidation(step, acc)
		log.Infof("Validation accuracy: %.1f%%", acc)
	} else {
		log.Warnw("no validation samples", "step", step)
	}

	size, err := cfg.Store.Save(cfg.Model.Checkpoint(step))
	if err != nil {
		return errors.Wrapf(err, "trainer: checkpoint at step %d", step)
	}
	log.Infow("Saved Model", "path", cfg.Store.Path(step), "size", humanize.Bytes(uint64(size)))
	return nil
}
