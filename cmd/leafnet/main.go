package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"

	"leafnet/internal/checkpoint"
	"leafnet/internal/command"
	"leafnet/internal/config"
	"leafnet/internal/logging"
)

type args struct {
	Mode          string `arg:"-m,--mode,required" help:"one of Train, Test, Validate, Write"`
	Load          string `arg:"-l,--load" help:"True resumes training from the latest checkpoint"`
	Config        string `arg:"--config" help:"path to YAML config"`
	Steps         int    `arg:"--steps" help:"number of training steps"`
	BatchSize     int    `arg:"--batch-size" help:"minibatch size"`
	Seed          *int64 `arg:"--seed" help:"PRNG seed for init and the validation split"`
	CheckpointDir string `arg:"--checkpoint-dir" help:"checkpoint directory"`
	TrainPath     string `arg:"--train-path" help:"labeled training CSV"`
	TestPath      string `arg:"--test-path" help:"unlabeled test CSV"`
}

func (args) Description() string {
	return "leafnet trains and evaluates a 1D convolutional leaf species classifier"
}

func main() {
	a := args{Config: config.DefaultPath}
	arg.MustParse(&a)

	cfg, err := config.LoadOrDefault(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyOverrides(config.Overrides{
		TrainPath:     a.TrainPath,
		TestPath:      a.TestPath,
		CheckpointDir: a.CheckpointDir,
		Steps:         a.Steps,
		BatchSize:     a.BatchSize,
		Seed:          a.Seed,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := command.Env{
		Config: cfg,
		Store:  checkpoint.NewOsStore(cfg.CheckpointDir, cfg.MaxToKeep),
		Log:    logger,
		Out:    os.Stdout,
	}
	if err := command.Dispatch(ctx, a.Mode, command.ParseLoad(a.Load), env); err != nil {
		logger.Errorw("run failed", "mode", a.Mode, "error", err)
		logger.Sync()
		stop()
		os.Exit(1)
	}
}
