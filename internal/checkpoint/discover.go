package checkpoint

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var fileRegexp = regexp.MustCompile(`^model-([0-9]+)\.ckpt$`)

// FileName is the on-disk name of the checkpoint for step.
func FileName(step int) string {
	return fmt.Sprintf("model-%d.ckpt", step)
}

// DiscoverSteps returns the steps of every checkpoint file directly under
// dir, ascending. A missing dir yields no steps.
func DiscoverSteps(fs afero.Fs, dir string) ([]int, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "discover checkpoints")
	}
	steps := make([]int, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		m := fileRegexp.FindStringSubmatch(info.Name())
		if m == nil {
			continue
		}
		step, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}
