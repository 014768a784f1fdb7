package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"leafnet/internal/checkpoint"
)

// ConvNet is a 1D convolutional classifier evaluated by gorgonia:
//
//	[conv(1xK) -> relu -> maxpool(1x2)] per stage -> dense -> relu -> dense -> softmax
//
// Inputs are laid out NCHW as (batch, 1, 1, InputSize). The dense layers have
// no bias.
type ConvNet struct {
	topo   Topology
	lr     float64
	params []param
	solver G.Solver

	train *graph
	eval  map[int]*graph
}

type param struct {
	name  string
	value *tensor.Dense
}

type graph struct {
	g       *G.ExprGraph
	x, y    *G.Node
	weights G.Nodes
	probs   *G.Node
	cost    *G.Node
	vm      G.VM
	batch   int

	probsVal G.Value
	costVal  G.Value
}

// NewConvNet initializes parameters from seed with Glorot-normal scaling.
func NewConvNet(topo Topology, learningRate float64, seed int64) (*ConvNet, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if learningRate <= 0 {
		learningRate = 1e-3
	}
	rng := rand.New(rand.NewSource(seed))
	n := &ConvNet{
		topo:   topo,
		lr:     learningRate,
		solver: G.NewAdamSolver(G.WithLearnRate(learningRate)),
		eval:   make(map[int]*graph),
	}

	in := 1
	for i, f := range topo.Filters {
		n.params = append(n.params, newParam(fmt.Sprintf("conv%d", i), rng, in*topo.Kernel, f*topo.Kernel, f, in, 1, topo.Kernel))
		in = f
	}
	flat := topo.flatSize()
	n.params = append(n.params,
		newParam("dense", rng, flat, topo.Hidden, flat, topo.Hidden),
		newParam("logits", rng, topo.Hidden, topo.NumClasses, topo.Hidden, topo.NumClasses),
	)
	return n, nil
}

func newParam(name string, rng *rand.Rand, fanIn, fanOut int, shape ...int) param {
	size := 1
	for _, d := range shape {
		size *= d
	}
	std := math.Sqrt(2 / float64(fanIn+fanOut))
	data := make([]float64, size)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return param{
		name:  name,
		value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}
}

// Topology returns the shape the network was built with.
func (n *ConvNet) Topology() Topology { return n.topo }

func (n *ConvNet) build(batch int, training bool) (*graph, error) {
	gr := &graph{g: G.NewGraph(), batch: batch}
	gr.x = G.NewTensor(gr.g, tensor.Float64, 4, G.WithShape(batch, 1, 1, n.topo.InputSize), G.WithName("x"))
	for _, p := range n.params {
		w := G.NewTensor(gr.g, tensor.Float64, p.value.Dims(),
			G.WithShape(p.value.Shape()...), G.WithValue(p.value), G.WithName(p.name))
		gr.weights = append(gr.weights, w)
	}

	var err error
	out := gr.x
	k := n.topo.Kernel
	for i := range n.topo.Filters {
		if out, err = G.Conv2d(out, gr.weights[i], tensor.Shape{1, k}, []int{0, k / 2}, []int{1, 1}, []int{1, 1}); err != nil {
			return nil, errors.Wrapf(err, "conv%d", i)
		}
		if out, err = G.Rectify(out); err != nil {
			return nil, errors.Wrapf(err, "conv%d relu", i)
		}
		if out, err = G.MaxPool2D(out, tensor.Shape{1, 2}, []int{0, 0}, []int{1, 2}); err != nil {
			return nil, errors.Wrapf(err, "conv%d pool", i)
		}
	}
	if out, err = G.Reshape(out, tensor.Shape{batch, n.topo.flatSize()}); err != nil {
		return nil, errors.Wrap(err, "flatten")
	}
	stages := len(n.topo.Filters)
	if out, err = G.Mul(out, gr.weights[stages]); err != nil {
		return nil, errors.Wrap(err, "dense")
	}
	if out, err = G.Rectify(out); err != nil {
		return nil, errors.Wrap(err, "dense relu")
	}
	if out, err = G.Mul(out, gr.weights[stages+1]); err != nil {
		return nil, errors.Wrap(err, "logits")
	}
	if gr.probs, err = G.SoftMax(out, 1); err != nil {
		return nil, errors.Wrap(err, "softmax")
	}
	G.Read(gr.probs, &gr.probsVal)

	if !training {
		gr.vm = G.NewTapeMachine(gr.g)
		return gr, nil
	}

	// mean cross-entropy against one-hot labels
	gr.y = G.NewMatrix(gr.g, tensor.Float64, G.WithShape(batch, n.topo.NumClasses), G.WithName("y"))
	if out, err = G.Add(gr.probs, G.NewConstant(1e-10)); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if out, err = G.Log(out); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if out, err = G.HadamardProd(out, gr.y); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if out, err = G.Sum(out, 1); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if out, err = G.Mean(out); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	if gr.cost, err = G.Neg(out); err != nil {
		return nil, errors.Wrap(err, "loss")
	}
	G.Read(gr.cost, &gr.costVal)

	if _, err = G.Grad(gr.cost, gr.weights...); err != nil {
		return nil, errors.Wrap(err, "gradients")
	}
	gr.vm = G.NewTapeMachine(gr.g, G.BindDualValues(gr.weights...))
	return gr, nil
}

func (n *ConvNet) inputs(rows [][]float64) (*tensor.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("model: empty batch")
	}
	d := n.topo.InputSize
	data := make([]float64, 0, len(rows)*d)
	for i, r := range rows {
		if len(r) != d {
			return nil, errors.Errorf("model: row %d has %d features, want %d", i, len(r), d)
		}
		data = append(data, r...)
	}
	return tensor.New(tensor.WithShape(len(rows), 1, 1, d), tensor.WithBacking(data)), nil
}

func (n *ConvNet) oneHot(labels []int) (*tensor.Dense, error) {
	c := n.topo.NumClasses
	data := make([]float64, len(labels)*c)
	for i, l := range labels {
		if l < 0 || l >= c {
			return nil, errors.Errorf("model: label %d out of range [0, %d)", l, c)
		}
		data[i*c+l] = 1
	}
	return tensor.New(tensor.WithShape(len(labels), c), tensor.WithBacking(data)), nil
}

func matrixRows(v G.Value, cols int) [][]float64 {
	data := v.Data().([]float64)
	out := make([][]float64, len(data)/cols)
	for i := range out {
		out[i] = append([]float64(nil), data[i*cols:(i+1)*cols]...)
	}
	return out
}

// Forward runs the network over inputs in a single pass.
func (n *ConvNet) Forward(inputs [][]float64) ([][]float64, error) {
	x, err := n.inputs(inputs)
	if err != nil {
		return nil, err
	}
	gr, ok := n.eval[len(inputs)]
	if !ok {
		if gr, err = n.build(len(inputs), false); err != nil {
			return nil, err
		}
		n.eval[len(inputs)] = gr
	}
	if err := G.Let(gr.x, x); err != nil {
		return nil, errors.Wrap(err, "model: bind inputs")
	}
	for i, w := range gr.weights {
		if err := G.Let(w, n.params[i].value); err != nil {
			return nil, errors.Wrapf(err, "model: bind %s", n.params[i].name)
		}
	}
	defer gr.vm.Reset()
	if err := gr.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "model: forward")
	}
	return matrixRows(gr.probsVal, n.topo.NumClasses), nil
}

// TrainStep runs forward and backward over batch and applies one Adam update.
func (n *ConvNet) TrainStep(batch Batch) (StepResult, error) {
	if len(batch.Inputs) != len(batch.Labels) {
		return StepResult{}, errors.Errorf("model: %d inputs but %d labels", len(batch.Inputs), len(batch.Labels))
	}
	x, err := n.inputs(batch.Inputs)
	if err != nil {
		return StepResult{}, err
	}
	y, err := n.oneHot(batch.Labels)
	if err != nil {
		return StepResult{}, err
	}
	if n.train == nil || n.train.batch != len(batch.Inputs) {
		if n.train, err = n.build(len(batch.Inputs), true); err != nil {
			return StepResult{}, err
		}
	}
	gr := n.train
	if err := G.Let(gr.x, x); err != nil {
		return StepResult{}, errors.Wrap(err, "model: bind inputs")
	}
	if err := G.Let(gr.y, y); err != nil {
		return StepResult{}, errors.Wrap(err, "model: bind labels")
	}

	defer gr.vm.Reset()
	if err := gr.vm.RunAll(); err != nil {
		return StepResult{}, errors.Wrap(err, "model: train step")
	}
	res := StepResult{
		Loss:  gr.costVal.Data().(float64),
		Probs: matrixRows(gr.probsVal, n.topo.NumClasses),
	}
	if err := n.solver.Step(G.NodesToValueGrads(gr.weights)); err != nil {
		return StepResult{}, errors.Wrap(err, "model: optimizer step")
	}
	n.sync(gr)
	return res, nil
}

// sync copies updated weights out of the training graph.
func (n *ConvNet) sync(gr *graph) {
	for i, w := range gr.weights {
		src := w.Value().Data().([]float64)
		copy(n.params[i].value.Data().([]float64), src)
	}
}

// Params snapshots the current parameters.
func (n *ConvNet) Params() []checkpoint.Tensor {
	out := make([]checkpoint.Tensor, len(n.params))
	for i, p := range n.params {
		out[i] = checkpoint.Tensor{
			Name:  p.name,
			Shape: append([]int(nil), p.value.Shape()...),
			Data:  append([]float64(nil), p.value.Data().([]float64)...),
		}
	}
	return out
}

// Checkpoint wraps Params for step.
func (n *ConvNet) Checkpoint(step int) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{Step: step, Params: n.Params()}
}

// Restore loads parameters from c. Names and shapes must match the topology.
// Optimizer state starts fresh.
func (n *ConvNet) Restore(c *checkpoint.Checkpoint) error {
	if len(c.Params) != len(n.params) {
		return errors.Errorf("model: checkpoint has %d tensors, network has %d", len(c.Params), len(n.params))
	}
	for i, t := range c.Params {
		p := n.params[i]
		if t.Name != p.name || !tensor.Shape(t.Shape).Eq(p.value.Shape()) {
			return errors.Errorf("model: checkpoint tensor %s%v does not match %s%v", t.Name, t.Shape, p.name, p.value.Shape())
		}
	}
	for i, t := range c.Params {
		copy(n.params[i].value.Data().([]float64), t.Data)
	}
	n.train = nil
	n.solver = G.NewAdamSolver(G.WithLearnRate(n.lr))
	return nil
}
