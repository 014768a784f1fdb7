// Package command wires configuration, data, model and checkpoints into the
// four run modes.
package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"leafnet/internal/checkpoint"
	"leafnet/internal/config"
	"leafnet/internal/dataset"
	"leafnet/internal/evaluator"
	"leafnet/internal/logging"
	"leafnet/internal/model"
	"leafnet/internal/trainer"
)

// Modes accepted by Dispatch.
const (
	ModeTrain    = "Train"
	ModeTest     = "Test"
	ModeValidate = "Validate"
	ModeWrite    = "Write"
)

// InvalidModeMessage is printed for an unrecognized mode.
const InvalidModeMessage = ":p Invalid Mode."

// ErrInvalidMode is returned by ParseMode for unrecognized modes.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode checks mode against the supported set.
func ParseMode(mode string) (string, error) {
	switch mode {
	case ModeTrain, ModeTest, ModeValidate, ModeWrite:
		return mode, nil
	}
	return "", errors.Wrapf(ErrInvalidMode, "%q", mode)
}

// ParseLoad interprets the --load flag: only the literal "True" enables it.
func ParseLoad(v string) bool {
	return v == "True"
}

// Env carries what every mode needs.
type Env struct {
	Config *config.Config
	Store  *checkpoint.Store
	Log    *zap.SugaredLogger
	// Out receives user-facing messages that are not log lines.
	Out io.Writer
}

// Dispatch runs mode. An unknown mode prints InvalidModeMessage to Out and
// returns nil without touching data or checkpoints.
func Dispatch(ctx context.Context, mode string, load bool, env Env) error {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	mode, err := ParseMode(mode)
	if err != nil {
		fmt.Fprintln(env.Out, InvalidModeMessage)
		return nil
	}
	if env.Log == nil {
		env.Log = logging.Nop()
	}
	if env.Store == nil {
		env.Store = checkpoint.NewOsStore(env.Config.CheckpointDir, env.Config.MaxToKeep)
	}
	eval := evaluator.Env{Config: env.Config, Store: env.Store, Log: env.Log}
	switch mode {
	case ModeTrain:
		return Train(ctx, env, load)
	case ModeTest:
		_, err = evaluator.Test(ctx, eval)
	case ModeValidate:
		_, err = evaluator.Validate(ctx, eval)
	case ModeWrite:
		_, err = evaluator.Write(ctx, eval)
	}
	return err
}

// Train loads and splits the labeled data, trains, and renders the curves
// when configured.
func Train(ctx context.Context, env Env, load bool) error {
	cfg := env.Config
	data, err := dataset.LoadTrain(cfg.TrainPath)
	if err != nil {
		return err
	}
	features, err := data.Features()
	if err != nil {
		return err
	}
	part, err := dataset.Split(features, data.Labels, cfg.SplitOptions())
	if err != nil {
		return err
	}
	if len(data.Species) > cfg.NumClasses {
		return errors.Errorf("%d species in %s but num_classes is %d", len(data.Species), cfg.TrainPath, cfg.NumClasses)
	}
	env.Log.Infow("loaded training data",
		"samples", data.Len(), "features", len(features[0]), "species", len(data.Species),
		"train", len(part.Train), "valid", len(part.Valid))

	net, err := model.NewConvNet(cfg.Topology(len(features[0])), cfg.LearningRate, cfg.Seed)
	if err != nil {
		return err
	}
	history, err := trainer.Run(ctx, trainer.RunConfig{
		Data:            part,
		Model:           net,
		Store:           env.Store,
		Steps:           cfg.Steps,
		BatchSize:       cfg.BatchSize,
		CheckpointEvery: cfg.CheckpointEvery,
		Load:            load,
		Log:             env.Log,
	})
	if err != nil {
		return err
	}

	if cfg.PlotCurves {
		paths, err := history.Plot(cfg.PlotDir)
		if err != nil {
			env.Log.Warnw("could not render training curves", "error", err)
		} else {
			env.Log.Infow("rendered training curves", "files", paths)
		}
	}
	return nil
}
