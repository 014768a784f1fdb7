package metrics

import "time"

// Window accumulates timing and minibatch stats across steps between reports.
type Window struct {
	samples  int
	compute  time.Duration
	steps    int
	lastLoss float64
	lastAcc  float64
}

// Record adds one training step to the window.
func (w *Window) Record(batchSize int, computeTime time.Duration, loss, accuracy float64) {
	w.samples += batchSize
	w.compute += computeTime
	w.steps++
	w.lastLoss = loss
	w.lastAcc = accuracy
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.lastLoss, LastAccuracy: w.lastAcc, Steps: w.steps}
	if w.compute > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.compute.Seconds()
	}
	if w.steps > 0 {
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	w.samples = 0
	w.compute = 0
	w.steps = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps         int
	SamplesPerSec float64
	AvgComputeMS  float64
	LastLoss      float64
	LastAccuracy  float64
}
