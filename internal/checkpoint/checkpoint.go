// Package checkpoint persists model parameter snapshots tagged with the
// training step that produced them.
package checkpoint

import (
	"encoding/gob"
	"io"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Tensor is one named parameter block in row-major order.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float64
}

// Size is the element count implied by Shape.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Checkpoint is a snapshot of the learned parameters at Step.
type Checkpoint struct {
	Step      int
	CreatedAt time.Time
	Params    []Tensor
}

// Validate checks that every tensor's data matches its shape.
func (c *Checkpoint) Validate() error {
	if len(c.Params) == 0 {
		return errors.New("checkpoint: no parameters")
	}
	for _, p := range c.Params {
		if p.Size() != len(p.Data) {
			return errors.Errorf("checkpoint: tensor %s has shape %v but %d values", p.Name, p.Shape, len(p.Data))
		}
	}
	return nil
}

// Encode writes c as snappy-framed gob.
func Encode(w io.Writer, c *Checkpoint) error {
	sw := snappy.NewBufferedWriter(w)
	if err := gob.NewEncoder(sw).Encode(c); err != nil {
		sw.Close()
		return errors.Wrap(err, "checkpoint: encode")
	}
	return errors.Wrap(sw.Close(), "checkpoint: flush")
}

// Decode reads a checkpoint written by Encode.
func Decode(r io.Reader) (*Checkpoint, error) {
	var c Checkpoint
	if err := gob.NewDecoder(snappy.NewReader(r)).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "checkpoint: decode")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
