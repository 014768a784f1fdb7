package dataset

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinePreservesOrderAndLength(t *testing.T) {
	margins := [][]float64{{1, 2}, {10, 20}}
	shapes := [][]float64{{3}, {30}}
	textures := [][]float64{{4, 5, 6}, {40, 50, 60}}

	out, err := Combine(margins, shapes, textures)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range out {
		assert.Len(t, out[i], len(margins[i])+len(shapes[i])+len(textures[i]))
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, out[0])
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60}, out[1])

	// inputs are not aliased
	out[0][0] = 99
	assert.Equal(t, 1.0, margins[0][0])
}

func TestCombineMismatch(t *testing.T) {
	_, err := Combine([][]float64{{1}}, nil, [][]float64{{1}})
	require.Error(t, err)
}

func fixture(n, classes int) ([][]float64, []int) {
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		features[i] = []float64{float64(i)}
		labels[i] = i % classes
	}
	return features, labels
}

func assertPartition(t *testing.T, p *Partition, features [][]float64, labels []int) {
	t.Helper()
	assert.Equal(t, len(features), len(p.Train)+len(p.Valid))
	assert.Len(t, p.TrainLabels, len(p.Train))
	assert.Len(t, p.ValidLabels, len(p.Valid))

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, p.TrainIndex...), p.ValidIndex...) {
		require.False(t, seen[i], "index %d in both partitions", i)
		seen[i] = true
	}
	assert.Len(t, seen, len(features))

	for k, i := range p.TrainIndex {
		assert.Equal(t, features[i], p.Train[k])
		assert.Equal(t, labels[i], p.TrainLabels[k])
	}
	for k, i := range p.ValidIndex {
		assert.Equal(t, features[i], p.Valid[k])
		assert.Equal(t, labels[i], p.ValidLabels[k])
	}
}

func TestSplitDisjointCovering(t *testing.T) {
	features, labels := fixture(100, 10)
	for _, stratify := range []bool{false, true} {
		p, err := Split(features, labels, SplitOptions{ValidFraction: 0.2, Seed: 3, Stratify: stratify})
		require.NoError(t, err)
		assertPartition(t, p, features, labels)
		assert.Len(t, p.Valid, 20)
	}
}

func TestSplitStratifiedKeepsEveryClass(t *testing.T) {
	features, labels := fixture(30, 10)
	p, err := Split(features, labels, SplitOptions{ValidFraction: 0.2, Seed: 1, Stratify: true})
	require.NoError(t, err)

	counts := make(map[int]int)
	for _, l := range p.ValidLabels {
		counts[l]++
	}
	assert.Len(t, counts, 10)
	for _, c := range counts {
		assert.Equal(t, 1, c)
	}
}

func TestSplitDeterministic(t *testing.T) {
	features, labels := fixture(40, 4)
	a, err := Split(features, labels, SplitOptions{ValidFraction: 0.25, Seed: 11})
	require.NoError(t, err)
	b, err := Split(features, labels, SplitOptions{ValidFraction: 0.25, Seed: 11})
	require.NoError(t, err)
	assert.Equal(t, a.ValidIndex, b.ValidIndex)

	c, err := Split(features, labels, SplitOptions{ValidFraction: 0.25, Seed: 12})
	require.NoError(t, err)
	sa := append([]int(nil), a.ValidIndex...)
	sc := append([]int(nil), c.ValidIndex...)
	sort.Ints(sa)
	sort.Ints(sc)
	assert.NotEqual(t, sa, sc)
}

func TestSplitRejectsBadInput(t *testing.T) {
	features, labels := fixture(4, 2)
	_, err := Split(features, labels[:3], SplitOptions{ValidFraction: 0.5})
	require.Error(t, err)
	_, err = Split(features, labels, SplitOptions{ValidFraction: 0})
	require.Error(t, err)
	for _, stratify := range []bool{false, true} {
		_, err = Split(nil, nil, SplitOptions{ValidFraction: 0.2, Stratify: stratify})
		require.Error(t, err)
	}
}
