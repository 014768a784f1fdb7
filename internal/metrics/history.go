package metrics

import (
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve file names written by History.Plot.
const (
	LossPlot     = "training_loss.png"
	AccuracyPlot = "training_accuracy.png"
)

// Validation is one validation report.
type Validation struct {
	Step     int
	Accuracy float64
}

// History records every minibatch loss and accuracy of a run.
type History struct {
	Losses     []float64
	Accuracies []float64
	Validation []Validation
}

// Add appends one step.
func (h *History) Add(loss, accuracy float64) {
	h.Losses = append(h.Losses, loss)
	h.Accuracies = append(h.Accuracies, accuracy)
}

// AddValidation appends a validation report.
func (h *History) AddValidation(step int, accuracy float64) {
	h.Validation = append(h.Validation, Validation{Step: step, Accuracy: accuracy})
}

// Plot renders the loss and accuracy curves as PNGs in dir and returns the
// written paths.
func (h *History) Plot(dir string) ([]string, error) {
	if len(h.Losses) == 0 {
		return nil, errors.New("metrics: empty history")
	}
	loss := filepath.Join(dir, LossPlot)
	if err := savePlot(loss, "Training Loss", "loss", map[string][]float64{"minibatch": h.Losses}); err != nil {
		return nil, err
	}

	series := map[string][]float64{"minibatch": h.Accuracies}
	acc := filepath.Join(dir, AccuracyPlot)
	if err := savePlot(acc, "Training Accuracies", "accuracy (%)", series, h.Validation...); err != nil {
		return nil, err
	}
	return []string{loss, acc}, nil
}

func savePlot(path, title, ylabel string, series map[string][]float64, valid ...Validation) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "step"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	ix := 0
	for name, values := range series {
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "metrics: %s line", name)
		}
		l.Color = plotutil.Color(ix)
		p.Add(l)
		p.Legend.Add(name, l)
		ix++
	}
	if len(valid) > 0 {
		pts := make(plotter.XYs, len(valid))
		for i, v := range valid {
			pts[i].X = float64(v.Step)
			pts[i].Y = v.Accuracy
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrap(err, "metrics: validation points")
		}
		s.Color = plotutil.Color(ix)
		p.Add(s)
		p.Legend.Add("validation", s)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "metrics: save %s", path)
	}
	return nil
}
