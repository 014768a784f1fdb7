package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrDataLoad is matched by every error returned from the loaders.
var ErrDataLoad = errors.New("dataset: load failed")

// LoadError describes a missing or malformed dataset file.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return "dataset: " + e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
	}
	return "dataset: " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports ErrDataLoad so callers can test the error kind without As.
func (e *LoadError) Is(target error) bool { return target == ErrDataLoad }

// Descriptors holds the three per-sample feature blocks, one row per sample.
type Descriptors struct {
	Margins  [][]float64
	Shapes   [][]float64
	Textures [][]float64
}

// Len is the number of samples.
func (d Descriptors) Len() int { return len(d.Margins) }

// Labeled is the training file: descriptors plus the species of each sample.
type Labeled struct {
	Descriptors
	IDs     []int
	Labels  []int
	Species []string // sorted class names; Labels index into it
}

// Unlabeled is the test file.
type Unlabeled struct {
	Descriptors
	IDs []int
}

type layout struct {
	id       int
	species  int
	margins  []int
	shapes   []int
	textures []int
	width    int
}

func parseHeader(header []string) (layout, error) {
	l := layout{id: -1, species: -1, width: len(header)}
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == "id":
			l.id = i
		case name == "species":
			l.species = i
		case strings.HasPrefix(name, "margin"):
			l.margins = append(l.margins, i)
		case strings.HasPrefix(name, "shape"):
			l.shapes = append(l.shapes, i)
		case strings.HasPrefix(name, "texture"):
			l.textures = append(l.textures, i)
		}
	}
	if l.id < 0 {
		return l, errors.New("missing id column")
	}
	if len(l.margins) == 0 || len(l.shapes) == 0 || len(l.textures) == 0 {
		return l, errors.Errorf("expected margin, shape and texture columns (got %d/%d/%d)",
			len(l.margins), len(l.shapes), len(l.textures))
	}
	return l, nil
}

func readColumns(record []string, cols []int) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[c]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", c)
		}
		out[i] = v
	}
	return out, nil
}

type row struct {
	id      int
	species string
	m, s, t []float64
}

// readRows streams the CSV at path; every row must match the header width.
func readRows(path string, wantSpecies bool) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			err = errors.New("empty file")
		}
		return nil, &LoadError{Path: path, Line: 1, Err: err}
	}
	l, err := parseHeader(header)
	if err != nil {
		return nil, &LoadError{Path: path, Line: 1, Err: err}
	}
	if wantSpecies && l.species < 0 {
		return nil, &LoadError{Path: path, Line: 1, Err: errors.New("missing species column")}
	}

	var rows []row
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Path: path, Line: line, Err: err}
		}
		id, err := strconv.Atoi(strings.TrimSpace(record[l.id]))
		if err != nil {
			return nil, &LoadError{Path: path, Line: line, Err: errors.Wrap(err, "id")}
		}
		rw := row{id: id}
		if wantSpecies {
			rw.species = strings.TrimSpace(record[l.species])
			if rw.species == "" {
				return nil, &LoadError{Path: path, Line: line, Err: errors.New("empty species")}
			}
		}
		if rw.m, err = readColumns(record, l.margins); err != nil {
			return nil, &LoadError{Path: path, Line: line, Err: err}
		}
		if rw.s, err = readColumns(record, l.shapes); err != nil {
			return nil, &LoadError{Path: path, Line: line, Err: err}
		}
		if rw.t, err = readColumns(record, l.textures); err != nil {
			return nil, &LoadError{Path: path, Line: line, Err: err}
		}
		rows = append(rows, rw)
	}
	if len(rows) == 0 {
		return nil, &LoadError{Path: path, Err: errors.New("no samples")}
	}
	return rows, nil
}

func speciesIndex(rows []row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.species] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTrain reads a labeled leaf CSV (id, species, margin*, shape*, texture*).
func LoadTrain(path string) (*Labeled, error) {
	rows, err := readRows(path, true)
	if err != nil {
		return nil, err
	}
	species := speciesIndex(rows)
	lookup := make(map[string]int, len(species))
	for i, name := range species {
		lookup[name] = i
	}

	out := &Labeled{Species: species}
	for _, r := range rows {
		out.IDs = append(out.IDs, r.id)
		out.Labels = append(out.Labels, lookup[r.species])
		out.Margins = append(out.Margins, r.m)
		out.Shapes = append(out.Shapes, r.s)
		out.Textures = append(out.Textures, r.t)
	}
	return out, nil
}

// LoadTest reads an unlabeled leaf CSV (id, margin*, shape*, texture*).
func LoadTest(path string) (*Unlabeled, error) {
	rows, err := readRows(path, false)
	if err != nil {
		return nil, err
	}
	out := &Unlabeled{}
	for _, r := range rows {
		out.IDs = append(out.IDs, r.id)
		out.Margins = append(out.Margins, r.m)
		out.Shapes = append(out.Shapes, r.s)
		out.Textures = append(out.Textures, r.t)
	}
	return out, nil
}

// LoadSpecies returns the sorted class names of a labeled file.
func LoadSpecies(path string) ([]string, error) {
	rows, err := readRows(path, true)
	if err != nil {
		return nil, err
	}
	return speciesIndex(rows), nil
}
