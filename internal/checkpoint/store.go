package checkpoint

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when a restore is requested but the directory holds
// no checkpoint.
var ErrNotFound = errors.New("checkpoint: no checkpoint found")

// DefaultMaxToKeep bounds the retained checkpoints when the caller passes 0.
const DefaultMaxToKeep = 5

// Store saves checkpoints under a directory and keeps the MaxToKeep most
// recent by step number.
type Store struct {
	fs        afero.Fs
	dir       string
	maxToKeep int
}

// NewStore returns a store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string, maxToKeep int) *Store {
	if maxToKeep <= 0 {
		maxToKeep = DefaultMaxToKeep
	}
	return &Store{fs: fs, dir: dir, maxToKeep: maxToKeep}
}

// NewOsStore is NewStore on the operating system filesystem.
func NewOsStore(dir string, maxToKeep int) *Store {
	return NewStore(afero.NewOsFs(), dir, maxToKeep)
}

// Dir is the directory checkpoints are written to.
func (s *Store) Dir() string { return s.dir }

// Path returns where the checkpoint for step lives.
func (s *Store) Path(step int) string {
	return filepath.Join(s.dir, FileName(step))
}

// Save writes c and evicts the oldest checkpoints beyond the retention bound.
// It returns the number of bytes written.
func (s *Store) Save(c *Checkpoint) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create checkpoint dir %s", s.dir)
	}

	final := s.Path(c.Step)
	tmp := final + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, errors.Wrap(err, "create checkpoint")
	}
	if err := Encode(f, c); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return 0, errors.Wrap(err, "close checkpoint")
	}
	info, err := s.fs.Stat(tmp)
	if err != nil {
		return 0, errors.Wrap(err, "stat checkpoint")
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		return 0, errors.Wrap(err, "commit checkpoint")
	}
	return info.Size(), s.prune()
}

func (s *Store) prune() error {
	steps, err := s.Steps()
	if err != nil {
		return err
	}
	for len(steps) > s.maxToKeep {
		if err := s.fs.Remove(s.Path(steps[0])); err != nil {
			return errors.Wrapf(err, "evict checkpoint %d", steps[0])
		}
		steps = steps[1:]
	}
	return nil
}

// Clear removes every checkpoint in the directory and returns how many were
// removed. Other files are left alone.
func (s *Store) Clear() (int, error) {
	steps, err := s.Steps()
	if err != nil {
		return 0, err
	}
	for i, step := range steps {
		if err := s.fs.Remove(s.Path(step)); err != nil {
			return i, errors.Wrapf(err, "remove checkpoint %d", step)
		}
	}
	return len(steps), nil
}

// Steps lists retained checkpoint steps, ascending.
func (s *Store) Steps() ([]int, error) {
	return DiscoverSteps(s.fs, s.dir)
}

// Load reads the checkpoint for step.
func (s *Store) Load(step int) (*Checkpoint, error) {
	f, err := s.fs.Open(s.Path(step))
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint %d", step)
	}
	defer f.Close()
	return Decode(f)
}

// Latest reads the checkpoint with the highest step, or ErrNotFound.
func (s *Store) Latest() (*Checkpoint, error) {
	steps, err := s.Steps()
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "in %s", s.dir)
	}
	return s.Load(steps[len(steps)-1])
}
