package config

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"leafnet/internal/dataset"
	"leafnet/internal/model"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "configs/leafnet.yaml"

// Config captures the runtime knobs for a run.
type Config struct {
	TrainPath      string `yaml:"train_path"`
	TestPath       string `yaml:"test_path"`
	CheckpointDir  string `yaml:"checkpoint_dir"`
	ProbsPath      string `yaml:"probs_path"`
	ResultsPath    string `yaml:"results_path"`
	SubmissionPath string `yaml:"submission_path"` // one probability column per species
	PlotDir        string `yaml:"plot_dir"`
	PlotCurves     bool   `yaml:"plot_curves"`

	NumClasses      int     `yaml:"num_classes"`
	BatchSize       int     `yaml:"batch_size"`
	Steps           int     `yaml:"steps"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	MaxToKeep       int     `yaml:"max_to_keep"`
	ValidFraction   float64 `yaml:"valid_fraction"`
	Stratify        bool    `yaml:"stratify"`
	Seed            int64   `yaml:"seed"`
	LearningRate    float64 `yaml:"learning_rate"`

	Filters []int `yaml:"filters"`
	Kernel  int   `yaml:"kernel"`
	Hidden  int   `yaml:"hidden"`

	LogFormat string `yaml:"log_format"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainPath     string
	TestPath      string
	CheckpointDir string
	Steps         int
	BatchSize     int
	// Seed is nil when not given, so an explicit 0 still overrides.
	Seed *int64
}

// Default returns the settings the leaf classifier was tuned with.
func Default() *Config {
	return &Config{
		TrainPath:       "data/train.csv",
		TestPath:        "data/test.csv",
		CheckpointDir:   "./1d",
		ProbsPath:       "testProbs.npy",
		ResultsPath:     "results.csv",
		SubmissionPath:  "submission.csv",
		PlotDir:         ".",
		PlotCurves:      true,
		NumClasses:      99,
		BatchSize:       50,
		Steps:           1351,
		CheckpointEvery: 100,
		MaxToKeep:       5,
		ValidFraction:   0.2,
		Stratify:        true,
		Seed:            42,
		LearningRate:    1e-3,
		Filters:         []int{16, 32},
		Kernel:          5,
		Hidden:          128,
		LogFormat:       "console",
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, except that a missing file at DefaultPath
// yields Default().
func LoadOrDefault(path string) (*Config, error) {
	if path == DefaultPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Default(), nil
		}
	}
	return Load(path)
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.TrainPath != "" {
		c.TrainPath = o.TrainPath
	}
	if o.TestPath != "" {
		c.TestPath = o.TestPath
	}
	if o.CheckpointDir != "" {
		c.CheckpointDir = o.CheckpointDir
	}
	if o.Steps > 0 {
		c.Steps = o.Steps
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
}

// Validate verifies the config is runnable and fills soft defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.CheckpointDir == "" {
		return errors.New("checkpoint_dir must be set")
	}
	if c.NumClasses < 2 {
		return errors.Errorf("num_classes must be >= 2 (got %d)", c.NumClasses)
	}
	if c.Steps <= 0 {
		return errors.Errorf("steps must be > 0 (got %d)", c.Steps)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.ValidFraction <= 0 || c.ValidFraction >= 1 {
		return errors.Errorf("valid_fraction must be in (0, 1) (got %g)", c.ValidFraction)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.Kernel <= 0 || c.Kernel%2 == 0 {
		return errors.Errorf("kernel must be a positive odd number (got %d)", c.Kernel)
	}
	if c.Hidden <= 0 {
		return errors.Errorf("hidden must be > 0 (got %d)", c.Hidden)
	}
	for _, f := range c.Filters {
		if f <= 0 {
			return errors.Errorf("filters must be > 0 (got %v)", c.Filters)
		}
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 100
	}
	if c.MaxToKeep <= 0 {
		c.MaxToKeep = 5
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return errors.Errorf("log_format must be console or json (got %q)", c.LogFormat)
	}
	return nil
}

// Topology is the network shape for inputs of inputSize features.
func (c *Config) Topology(inputSize int) model.Topology {
	return model.Topology{
		InputSize:  inputSize,
		NumClasses: c.NumClasses,
		Filters:    append([]int(nil), c.Filters...),
		Kernel:     c.Kernel,
		Hidden:     c.Hidden,
	}
}

// SplitOptions is the train/validation partition every mode must agree on.
func (c *Config) SplitOptions() dataset.SplitOptions {
	return dataset.SplitOptions{
		ValidFraction: c.ValidFraction,
		Seed:          c.Seed,
		Stratify:      c.Stratify,
	}
}
