package evaluator

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"leafnet/internal/metrics"
)

// Prediction is one row of the results file.
type Prediction struct {
	ID          int     `csv:"id"`
	Species     string  `csv:"species"`
	Probability float64 `csv:"probability"`
}

// ProbMatrix packs forward-pass rows into a dense (samples x classes) matrix.
func ProbMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("evaluator: no probabilities")
	}
	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		if len(r) != cols {
			return nil, errors.Errorf("evaluator: row %d has %d classes, want %d", i, len(r), cols)
		}
		m.SetRow(i, r)
	}
	return m, nil
}

// Predict maps each id to the argmax species of its probability row.
func Predict(species []string, ids []int, probs mat.Matrix) ([]Prediction, error) {
	rows, cols := probs.Dims()
	if rows != len(ids) {
		return nil, errors.Errorf("evaluator: %d probability rows for %d samples", rows, len(ids))
	}
	if cols != len(species) {
		return nil, errors.Errorf("evaluator: %d classes but %d species names", cols, len(species))
	}
	out := make([]Prediction, rows)
	row := make([]float64, cols)
	for i := range out {
		mat.Row(row, i, probs)
		best := metrics.Argmax(row)
		out[i] = Prediction{ID: ids[i], Species: species[best], Probability: row[best]}
	}
	return out, nil
}

// SaveProbs writes probs to path in NumPy .npy format.
func SaveProbs(path string, probs *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "evaluator: create probabilities file")
	}
	if err := npyio.Write(f, probs); err != nil {
		f.Close()
		return errors.Wrapf(err, "evaluator: write %s", path)
	}
	return errors.Wrap(f.Close(), "evaluator: close probabilities file")
}

// LoadProbs reads a matrix written by SaveProbs.
func LoadProbs(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "evaluator: open probabilities file")
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, errors.Wrapf(err, "evaluator: read %s", path)
	}
	return &m, nil
}

// WriteResults writes preds as CSV with an id,species,probability header.
func WriteResults(path string, preds []Prediction) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "evaluator: create results file")
	}
	if err := gocsv.MarshalFile(&preds, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "evaluator: write %s", path)
	}
	return errors.Wrap(f.Close(), "evaluator: close results file")
}

// WriteSubmission writes one row per id with the probability of every
// species, under an id,<species...> header.
func WriteSubmission(path string, species []string, ids []int, probs mat.Matrix) error {
	rows, cols := probs.Dims()
	if rows != len(ids) {
		return errors.Errorf("evaluator: %d probability rows for %d samples", rows, len(ids))
	}
	if cols != len(species) {
		return errors.Errorf("evaluator: %d classes but %d species names", cols, len(species))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "evaluator: create submission file")
	}
	w := gocsv.NewSafeCSVWriter(csv.NewWriter(f))
	record := append([]string{"id"}, species...)
	if err := w.Write(record); err != nil {
		f.Close()
		return errors.Wrapf(err, "evaluator: write %s", path)
	}
	for i, id := range ids {
		record[0] = strconv.Itoa(id)
		for c := 0; c < cols; c++ {
			record[c+1] = strconv.FormatFloat(probs.At(i, c), 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return errors.Wrapf(err, "evaluator: write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrapf(err, "evaluator: flush %s", path)
	}
	return errors.Wrap(f.Close(), "evaluator: close submission file")
}
