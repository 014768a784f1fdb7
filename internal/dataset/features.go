package dataset

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Combine concatenates margin, shape and texture (in that order) per sample.
func Combine(margins, shapes, textures [][]float64) ([][]float64, error) {
	if len(margins) != len(shapes) || len(margins) != len(textures) {
		return nil, errors.Errorf("dataset: sample count mismatch margins=%d shapes=%d textures=%d",
			len(margins), len(shapes), len(textures))
	}
	out := make([][]float64, len(margins))
	for i := range margins {
		v := make([]float64, 0, len(margins[i])+len(shapes[i])+len(textures[i]))
		v = append(v, margins[i]...)
		v = append(v, shapes[i]...)
		v = append(v, textures[i]...)
		out[i] = v
	}
	return out, nil
}

// Features is Combine over a loaded file.
func (d Descriptors) Features() ([][]float64, error) {
	return Combine(d.Margins, d.Shapes, d.Textures)
}

// SplitOptions configures the train/validation partition.
type SplitOptions struct {
	ValidFraction float64
	Seed          int64
	// Stratify holds out the fraction from every class rather than globally.
	Stratify bool
}

// Partition is a disjoint, covering split of a labeled set.
type Partition struct {
	Train       [][]float64
	Valid       [][]float64
	TrainLabels []int
	ValidLabels []int
	// Source row of each partition entry.
	TrainIndex []int
	ValidIndex []int
}

// Split shuffles the samples with opts.Seed and partitions them. Each sample
// lands in exactly one side; nothing is resampled.
func Split(features [][]float64, labels []int, opts SplitOptions) (*Partition, error) {
	if len(features) != len(labels) {
		return nil, errors.Errorf("dataset: %d feature rows but %d labels", len(features), len(labels))
	}
	if len(features) == 0 {
		return nil, errors.New("dataset: nothing to split")
	}
	if opts.ValidFraction <= 0 || opts.ValidFraction >= 1 {
		return nil, errors.Errorf("dataset: valid fraction must be in (0, 1) (got %g)", opts.ValidFraction)
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var train, valid []int
	if opts.Stratify {
		train, valid = stratifiedIndices(labels, opts.ValidFraction, rng)
	} else {
		perm := rng.Perm(len(labels))
		n := holdout(len(perm), opts.ValidFraction)
		valid, train = perm[:n], perm[n:]
	}

	p := &Partition{TrainIndex: train, ValidIndex: valid}
	for _, i := range train {
		p.Train = append(p.Train, features[i])
		p.TrainLabels = append(p.TrainLabels, labels[i])
	}
	for _, i := range valid {
		p.Valid = append(p.Valid, features[i])
		p.ValidLabels = append(p.ValidLabels, labels[i])
	}
	return p, nil
}

func holdout(n int, fraction float64) int {
	k := int(math.Round(float64(n) * fraction))
	if k == 0 && n > 1 {
		k = 1
	}
	if k >= n {
		k = n - 1
	}
	return k
}

func stratifiedIndices(labels []int, fraction float64, rng *rand.Rand) (train, valid []int) {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := 0
		if len(idx) > 1 {
			n = holdout(len(idx), fraction)
		}
		valid = append(valid, idx[:n]...)
		train = append(train, idx[n:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(valid), func(i, j int) { valid[i], valid[j] = valid[j], valid[i] })
	return train, valid
}
