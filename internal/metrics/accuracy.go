// Package metrics scores predictions and tracks training progress.
package metrics

import "gonum.org/v1/gonum/floats"

// Argmax returns the index of the largest value in row, -1 when empty.
// Ties resolve to the first index.
func Argmax(row []float64) int {
	if len(row) == 0 {
		return -1
	}
	return floats.MaxIdx(row)
}

// Accuracy is the percentage of rows whose argmax in probs matches the argmax
// in labels (one-hot). Empty input scores 0.
func Accuracy(probs, labels [][]float64) float64 {
	n := len(probs)
	if len(labels) < n {
		n = len(labels)
	}
	if n == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < n; i++ {
		if Argmax(probs[i]) == Argmax(labels[i]) {
			correct++
		}
	}
	return 100 * float64(correct) / float64(n)
}

// LabelAccuracy is Accuracy against integer labels.
func LabelAccuracy(probs [][]float64, labels []int) float64 {
	n := len(probs)
	if len(labels) < n {
		n = len(labels)
	}
	if n == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < n; i++ {
		if Argmax(probs[i]) == labels[i] {
			correct++
		}
	}
	return 100 * float64(correct) / float64(n)
}
