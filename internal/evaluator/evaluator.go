// Package evaluator scores and applies a trained network restored from the
// latest checkpoint.
package evaluator

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"leafnet/internal/checkpoint"
	"leafnet/internal/config"
	"leafnet/internal/dataset"
	"leafnet/internal/logging"
	"leafnet/internal/metrics"
	"leafnet/internal/model"
)

// Env is what every evaluation mode runs against.
type Env struct {
	Config *config.Config
	Store  *checkpoint.Store
	Log    *zap.SugaredLogger
}

func (e Env) log() *zap.SugaredLogger {
	if e.Log == nil {
		return logging.Nop()
	}
	return e.Log
}

// latest fails fast when there is nothing to restore.
func (e Env) latest() (*checkpoint.Checkpoint, error) {
	e.log().Info("Loading Model...")
	return e.Store.Latest()
}

func (e Env) restore(ckpt *checkpoint.Checkpoint, inputSize int) (*model.ConvNet, error) {
	cfg := e.Config
	net, err := model.NewConvNet(cfg.Topology(inputSize), cfg.LearningRate, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := net.Restore(ckpt); err != nil {
		return nil, err
	}
	topo := net.Topology()
	e.log().Infow("Model Loaded!", "step", ckpt.Step, "filters", topo.Filters, "kernel", topo.Kernel, "hidden", topo.Hidden)
	return net, nil
}

// Validate restores the latest checkpoint and returns its accuracy on the
// validation partition produced by the configured seed.
func Validate(ctx context.Context, env Env) (float64, error) {
	ckpt, err := env.latest()
	if err != nil {
		return 0, err
	}
	data, err := dataset.LoadTrain(env.Config.TrainPath)
	if err != nil {
		return 0, err
	}
	features, err := data.Features()
	if err != nil {
		return 0, err
	}
	part, err := dataset.Split(features, data.Labels, env.Config.SplitOptions())
	if err != nil {
		return 0, err
	}
	if len(part.Valid) == 0 {
		return 0, errors.New("evaluator: empty validation partition")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	net, err := env.restore(ckpt, len(features[0]))
	if err != nil {
		return 0, err
	}
	probs, err := net.Forward(part.Valid)
	if err != nil {
		return 0, err
	}
	acc := metrics.LabelAccuracy(probs, part.ValidLabels)
	env.log().Infof("Validation accuracy: %.1f%%", acc)
	return acc, nil
}

// Test restores the latest checkpoint, runs the whole unlabeled set in one
// pass, saves the raw probabilities and writes the results file.
func Test(ctx context.Context, env Env) ([]Prediction, error) {
	ckpt, err := env.latest()
	if err != nil {
		return nil, err
	}
	cfg := env.Config
	test, err := dataset.LoadTest(cfg.TestPath)
	if err != nil {
		return nil, err
	}
	species, err := dataset.LoadSpecies(cfg.TrainPath)
	if err != nil {
		return nil, err
	}
	features, err := test.Features()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	net, err := env.restore(ckpt, len(features[0]))
	if err != nil {
		return nil, err
	}
	rows, err := net.Forward(features)
	if err != nil {
		return nil, err
	}
	probs, err := ProbMatrix(rows)
	if err != nil {
		return nil, err
	}
	if err := SaveProbs(cfg.ProbsPath, probs); err != nil {
		return nil, err
	}
	env.log().Infof("Completed processing %d test images", len(test.IDs))

	preds, err := Predict(species, test.IDs, probs)
	if err != nil {
		return nil, err
	}
	if err := writeOutputs(env, species, test.IDs, probs, preds); err != nil {
		return nil, err
	}
	return preds, nil
}

// Write rebuilds the results file from probabilities saved by Test.
func Write(ctx context.Context, env Env) ([]Prediction, error) {
	cfg := env.Config
	test, err := dataset.LoadTest(cfg.TestPath)
	if err != nil {
		return nil, err
	}
	species, err := dataset.LoadSpecies(cfg.TrainPath)
	if err != nil {
		return nil, err
	}
	probs, err := LoadProbs(cfg.ProbsPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	preds, err := Predict(species, test.IDs, probs)
	if err != nil {
		return nil, err
	}
	if err := writeOutputs(env, species, test.IDs, probs, preds); err != nil {
		return nil, err
	}
	return preds, nil
}

func writeOutputs(env Env, species []string, ids []int, probs mat.Matrix, preds []Prediction) error {
	cfg := env.Config
	if err := WriteResults(cfg.ResultsPath, preds); err != nil {
		return err
	}
	env.log().Infow("wrote results", "path", cfg.ResultsPath, "rows", len(preds))
	if cfg.SubmissionPath == "" {
		return nil
	}
	if err := WriteSubmission(cfg.SubmissionPath, species, ids, probs); err != nil {
		return err
	}
	env.log().Infow("wrote submission", "path", cfg.SubmissionPath, "rows", len(ids), "classes", len(species))
	return nil
}
