package trainer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leafnet/internal/checkpoint"
	"leafnet/internal/dataset"
	"leafnet/internal/model"
)

func TestOffsetWraps(t *testing.T) {
	const batch = 50
	for _, n := range []int{51, 60, 99, 792, 891} {
		for step := 0; step < 1351; step++ {
			off := Offset(step, batch, n)
			require.Equal(t, (step*batch)%(n-batch), off)
			require.True(t, off >= 0 && off < n-batch, "n=%d step=%d offset=%d", n, step, off)
			require.LessOrEqual(t, off+batch, n)
		}
	}
}

// The walk restarts without reshuffling, so with n=60 every step reuses the
// first 50 rows and the last 10 are never trained on.
func TestOffsetUndersamplesTail(t *testing.T) {
	for step := 0; step < 10; step++ {
		assert.Equal(t, 0, Offset(step, 50, 60))
	}
	assert.Equal(t, 0, Offset(3, 50, 50))
	assert.Equal(t, 0, Offset(3, 50, 20))
}

// synthetic returns 4 samples of length 10 over 2 classes split 2/2.
func synthetic(t *testing.T) *dataset.Partition {
	t.Helper()
	features := [][]float64{
		{1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 1, 1, 1, 1, 1},
		{0.9, 1, 0.8, 1, 1, 0, 0.1, 0, 0, 0},
		{0, 0.1, 0, 0, 0, 1, 0.9, 1, 1, 0.8},
	}
	p, err := dataset.Split(features, []int{0, 1, 0, 1}, dataset.SplitOptions{ValidFraction: 0.5, Seed: 1, Stratify: true})
	require.NoError(t, err)
	require.Len(t, p.Train, 2)
	return p
}

func newNet(t *testing.T) *model.ConvNet {
	t.Helper()
	net, err := model.NewConvNet(model.Topology{InputSize: 10, NumClasses: 2, Filters: []int{4}, Kernel: 3, Hidden: 8}, 0.01, 1)
	require.NoError(t, err)
	return net
}

func TestRunSingleStepCheckpointsAtZero(t *testing.T) {
	net := newNet(t)
	initial := net.Params()
	store := checkpoint.NewStore(afero.NewMemMapFs(), "1d", 5)

	history, err := Run(context.Background(), RunConfig{
		Data:            synthetic(t),
		Model:           net,
		Store:           store,
		Steps:           1,
		BatchSize:       2,
		CheckpointEvery: 100,
	})
	require.NoError(t, err)
	require.Len(t, history.Losses, 1)
	// step 0 reports, then the final report tags step 0 again
	require.Len(t, history.Validation, 2)
	assert.Equal(t, 0, history.Validation[1].Step)

	steps, err := store.Steps()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, steps)

	saved, err := store.Latest()
	require.NoError(t, err)
	assert.NotEqual(t, initial, saved.Params)
}

func TestRunLossMoves(t *testing.T) {
	store := checkpoint.NewStore(afero.NewMemMapFs(), "1d", 5)
	history, err := Run(context.Background(), RunConfig{
		Data:            synthetic(t),
		Model:           newNet(t),
		Store:           store,
		Steps:           7,
		BatchSize:       2,
		CheckpointEvery: 3,
	})
	require.NoError(t, err)
	require.Len(t, history.Losses, 7)
	assert.NotEqual(t, history.Losses[0], history.Losses[1])

	steps, err := store.Steps()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, steps)
}

func TestRunResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := checkpoint.NewStore(fs, "1d", 5)
	first := newNet(t)
	_, err := Run(context.Background(), RunConfig{
		Data: synthetic(t), Model: first, Store: store, Steps: 2, BatchSize: 2,
	})
	require.NoError(t, err)

	second := newNet(t)
	history, err := Run(context.Background(), RunConfig{
		Data: synthetic(t), Model: second, Store: store, Steps: 1, BatchSize: 2, Load: true,
	})
	require.NoError(t, err)
	require.Len(t, history.Validation, 1)
	assert.Equal(t, 2, history.Validation[0].Step)

	steps, err := store.Steps()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, steps)

	_, err = Run(context.Background(), RunConfig{
		Data:  synthetic(t),
		Model: newNet(t),
		Store: checkpoint.NewStore(fs, "empty", 5),
		Steps: 1, BatchSize: 2, Load: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, RunConfig{
		Data:      synthetic(t),
		Model:     newNet(t),
		Store:     checkpoint.NewStore(afero.NewMemMapFs(), "1d", 5),
		Steps:     5,
		BatchSize: 2,
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := Run(context.Background(), RunConfig{Steps: 0, BatchSize: 1})
	require.Error(t, err)
	_, err = Run(context.Background(), RunConfig{Steps: 1, BatchSize: 1})
	require.Error(t, err)
}

func TestRunFreshReplacesEarlierCheckpoints(t *testing.T) {
	store := checkpoint.NewStore(afero.NewMemMapFs(), "1d", 5)
	_, err := Run(context.Background(), RunConfig{
		Data: synthetic(t), Model: newNet(t), Store: store, Steps: 7, BatchSize: 2, CheckpointEvery: 1,
	})
	require.NoError(t, err)
	steps, err := store.Steps()
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4, 5, 6}, steps)

	fresh := newNet(t)
	_, err = Run(context.Background(), RunConfig{
		Data: synthetic(t), Model: fresh, Store: store, Steps: 3, BatchSize: 2, CheckpointEvery: 1,
	})
	require.NoError(t, err)

	steps, err = store.Steps()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, steps)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Step)
	assert.Equal(t, fresh.Params(), latest.Params)
}
