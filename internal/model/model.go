package model

import "github.com/pkg/errors"

// Batch represents a minibatch of combined feature vectors and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// StepResult is what one parameter update reports.
type StepResult struct {
	Loss  float64
	Probs [][]float64
}

// Model defines the functionality the training loop and evaluator need.
type Model interface {
	// Forward returns class probabilities, one row per input.
	Forward(inputs [][]float64) ([][]float64, error)
	// TrainStep applies one update and reports the pre-update loss.
	TrainStep(batch Batch) (StepResult, error)
}

// Topology fixes the network shape.
type Topology struct {
	InputSize  int
	NumClasses int
	Filters    []int // output channels of each conv+pool stage
	Kernel     int   // conv width, odd
	Hidden     int   // width of the fully-connected layer
}

// Validate checks the topology can be built for its input size.
func (t Topology) Validate() error {
	if t.InputSize <= 0 {
		return errors.Errorf("model: input size must be > 0 (got %d)", t.InputSize)
	}
	if t.NumClasses < 2 {
		return errors.Errorf("model: need at least 2 classes (got %d)", t.NumClasses)
	}
	if t.Kernel <= 0 || t.Kernel%2 == 0 {
		return errors.Errorf("model: kernel must be positive and odd (got %d)", t.Kernel)
	}
	if t.Hidden <= 0 {
		return errors.Errorf("model: hidden width must be > 0 (got %d)", t.Hidden)
	}
	w := t.InputSize
	for i, f := range t.Filters {
		if f <= 0 {
			return errors.Errorf("model: stage %d has %d filters", i, f)
		}
		if w < 2 {
			return errors.Errorf("model: input size %d too short for %d pooling stages", t.InputSize, len(t.Filters))
		}
		w = pooled(w)
	}
	return nil
}

// pooled is the width after a 1x2 max pool with stride 2.
func pooled(w int) int {
	return (w-2)/2 + 1
}

// flatSize is the feature count entering the dense layers.
func (t Topology) flatSize() int {
	w, c := t.InputSize, 1
	for _, f := range t.Filters {
		w, c = pooled(w), f
	}
	return w * c
}
