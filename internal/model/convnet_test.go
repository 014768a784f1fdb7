package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyTopology() Topology {
	return Topology{InputSize: 10, NumClasses: 2, Filters: []int{4}, Kernel: 3, Hidden: 8}
}

func tinyBatch() Batch {
	return Batch{
		Inputs: [][]float64{
			{1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 1, 1, 1, 1, 1},
			{0.9, 1, 0.8, 1, 1, 0, 0.1, 0, 0, 0},
			{0, 0.1, 0, 0, 0, 1, 0.9, 1, 1, 0.8},
		},
		Labels: []int{0, 1, 0, 1},
	}
}

func TestTopologyValidate(t *testing.T) {
	require.NoError(t, tinyTopology().Validate())
	assert.Equal(t, 4*5, tinyTopology().flatSize())

	two := Topology{InputSize: 192, NumClasses: 99, Filters: []int{16, 32}, Kernel: 5, Hidden: 128}
	require.NoError(t, two.Validate())
	assert.Equal(t, 32*48, two.flatSize())

	bad := tinyTopology()
	bad.Kernel = 2
	require.Error(t, bad.Validate())

	bad = tinyTopology()
	bad.InputSize = 2
	bad.Filters = []int{2, 2, 2}
	require.Error(t, bad.Validate())

	bad = tinyTopology()
	bad.NumClasses = 1
	require.Error(t, bad.Validate())
}

func TestForwardProducesDistributions(t *testing.T) {
	net, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)

	probs, err := net.Forward(tinyBatch().Inputs)
	require.NoError(t, err)
	require.Len(t, probs, 4)
	for _, row := range probs {
		require.Len(t, row, 2)
		sum := 0.0
		for _, p := range row {
			assert.True(t, p >= 0 && p <= 1)
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-9)
	}

	// a different batch size reuses the same parameters
	one, err := net.Forward(tinyBatch().Inputs[:1])
	require.NoError(t, err)
	assert.InDeltaSlice(t, probs[0], one[0], 1e-9)
}

func TestForwardRejectsWrongWidth(t *testing.T) {
	net, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	_, err = net.Forward([][]float64{{1, 2, 3}})
	require.Error(t, err)
	_, err = net.Forward(nil)
	require.Error(t, err)
}

func TestTrainStepReducesLoss(t *testing.T) {
	net, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	batch := tinyBatch()

	first, err := net.TrainStep(batch)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(first.Loss))
	assert.Len(t, first.Probs, 4)

	last := first
	for i := 0; i < 30; i++ {
		last, err = net.TrainStep(batch)
		require.NoError(t, err)
	}
	assert.Less(t, last.Loss, first.Loss)
}

func TestTrainStepChangesParams(t *testing.T) {
	net, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	before := net.Params()

	_, err = net.TrainStep(tinyBatch())
	require.NoError(t, err)
	assert.NotEqual(t, before, net.Params())
}

func TestTrainStepRejectsBadLabels(t *testing.T) {
	net, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	b := tinyBatch()
	b.Labels[0] = 5
	_, err = net.TrainStep(b)
	require.Error(t, err)

	b = tinyBatch()
	b.Labels = b.Labels[:2]
	_, err = net.TrainStep(b)
	require.Error(t, err)
}

func TestRestoreRoundTrip(t *testing.T) {
	src, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	_, err = src.TrainStep(tinyBatch())
	require.NoError(t, err)

	dst, err := NewConvNet(tinyTopology(), 0.01, 2)
	require.NoError(t, err)
	require.NoError(t, dst.Restore(src.Checkpoint(1)))
	assert.Equal(t, src.Params(), dst.Params())
	assert.Equal(t, tinyTopology(), dst.Topology())

	want, err := src.Forward(tinyBatch().Inputs)
	require.NoError(t, err)
	got, err := dst.Forward(tinyBatch().Inputs)
	require.NoError(t, err)
	for i := range want {
		assert.InDeltaSlice(t, want[i], got[i], 1e-12)
	}
}

func TestRestoreRejectsOtherTopology(t *testing.T) {
	src, err := NewConvNet(tinyTopology(), 0.01, 1)
	require.NoError(t, err)
	other := tinyTopology()
	other.Hidden = 6
	dst, err := NewConvNet(other, 0.01, 1)
	require.NoError(t, err)
	require.Error(t, dst.Restore(src.Checkpoint(0)))
}
