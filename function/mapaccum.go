// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package function

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/internal/metrics"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

type accumKernel struct {
	base    *Function
	n       int
	jit     bool
	accIn   []int
	accOut  []int
	inputs  []*graph.Node
	outputs []*graph.Node
	// stateOf maps an input to its accumulator, -1 for other inputs.
	stateOf []int
}

func shapeErrorf(format string, args ...any) error {
	return errors.Wrapf(errs.ErrMapAccumShape, format, args...)
}

func checkPorts(what string, ports []int, n int) error {
	seen := make(map[int]bool, len(ports))
	for _, p := range ports {
		if p < 0 || p >= n {
			return shapeErrorf("%s port %d out of range [0, %d)", what, p, n)
		}
		if seen[p] {
			return shapeErrorf("%s port %d given more than once", what, p)
		}
		seen[p] = true
	}
	return nil
}

// MapAccum returns a function evaluating f n times in sequence, threading
// accumulators from one repetition to the next.
//
// Input accIn[k] of repetition i is output accOut[k] of repetition i-1.
// The first repetition reads the initial value of the accumulator given
// as argument to the returned function. All other inputs take the
// horizontal concatenation of n blocks, one per repetition. Every output
// is the horizontal concatenation of the outputs of all repetitions.
//
// Accumulator ports are checked when the function is built: the output
// of an accumulator must have the dimensions of its input and its
// nonzeros must be nonzeros of the input.
func (f *Function) MapAccum(name string, n int, accIn, accOut []int, opts options.Dict) (*Function, error) {
	if name == "" {
		name = fmt.Sprintf("mapaccum%d_%s", n, f.name)
	}
	o, err := options.ParseFunction(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "mapaccum %s", name)
	}
	if o.Logger == nil {
		o.Logger = f.opts.Logger
	}
	if n < 1 {
		return nil, errs.Dimensionf("mapaccum %s: number of repetitions %d must be positive", name, n)
	}
	if err := f.checkAccumulators(accIn, accOut); err != nil {
		return nil, errors.WithMessagef(err, "mapaccum %s", name)
	}
	k := &accumKernel{
		base:    f,
		n:       n,
		jit:     o.JIT,
		accIn:   append([]int{}, accIn...),
		accOut:  append([]int{}, accOut...),
		stateOf: make([]int, f.NumIn()),
	}
	for j := range k.stateOf {
		k.stateOf[j] = -1
	}
	for s, j := range accIn {
		k.stateOf[j] = s
	}
	if err := k.buildGraph(); err != nil {
		return nil, errors.WithMessagef(err, "mapaccum %s", name)
	}
	if o.InputScheme == nil {
		o.InputScheme = f.inNames
	}
	if o.OutputScheme == nil {
		o.OutputScheme = f.outNames
	}
	mf, err := Build(name, k.inputs, k.outputs, o)
	if err != nil {
		return nil, err
	}
	mf.kernel = k
	mf.log().Debug("mapaccum built",
		zap.String("function", name),
		zap.String("base", f.name),
		zap.Int("n", n),
		zap.Ints("accumulators", accIn),
	)
	return mf, nil
}

func (f *Function) checkAccumulators(accIn, accOut []int) error {
	if len(accIn) != len(accOut) {
		return shapeErrorf("%d accumulator inputs but %d accumulator outputs", len(accIn), len(accOut))
	}
	if err := checkPorts("input", accIn, f.NumIn()); err != nil {
		return err
	}
	if err := checkPorts("output", accOut, f.NumOut()); err != nil {
		return err
	}
	for s := range accIn {
		in := f.plan.Inputs()[accIn[s]].Sparsity()
		out := f.plan.Outputs()[accOut[s]].Sparsity()
		if !in.SameShape(out) {
			return shapeErrorf("accumulator %d: output %s is %dx%d but input %s is %dx%d", s,
				f.outNames[accOut[s]], out.Rows(), out.Cols(),
				f.inNames[accIn[s]], in.Rows(), in.Cols())
		}
		if !sparsity.IsSubset(out, in) {
			return shapeErrorf("accumulator %d: output %s has nonzeros outside of the pattern of input %s", s, f.outNames[accOut[s]], f.inNames[accIn[s]])
		}
	}
	return nil
}

func (k *accumKernel) buildGraph() error {
	baseInputs := k.base.plan.Inputs()
	k.inputs = make([]*graph.Node, len(baseInputs))
	for j, in := range baseInputs {
		if k.stateOf[j] >= 0 {
			k.inputs[j] = in
			continue
		}
		var err error
		if k.inputs[j], err = repeatInput(in, k.n); err != nil {
			return err
		}
	}
	state := make([]*graph.Node, len(k.accIn))
	for s, j := range k.accIn {
		state[s] = k.inputs[j]
	}
	reps := make([][]*graph.Node, k.n)
	for i := range reps {
		args := make([]*graph.Node, len(k.inputs))
		for j, x := range k.inputs {
			if s := k.stateOf[j]; s >= 0 {
				args[j] = state[s]
				continue
			}
			var err error
			if args[j], err = block(x, baseInputs[j], i); err != nil {
				return err
			}
		}
		var err error
		if reps[i], err = k.base.Call(args...); err != nil {
			return err
		}
		for s, o := range k.accOut {
			state[s] = reps[i][o]
		}
	}
	k.outputs = make([]*graph.Node, k.base.NumOut())
	for o := range k.outputs {
		var err error
		if k.outputs[o], err = horzcatRepetitions(reps, o); err != nil {
			return err
		}
	}
	return nil
}

func (k *accumKernel) path() string { return "mapaccum" }

func (k *accumKernel) evaluate(args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	args, err := graph.PrepareArgs(k.inputs, args)
	if err != nil {
		return nil, err
	}
	baseInputs := k.base.plan.Inputs()
	state := make([]*matrix.Matrix, len(k.accIn))
	for s, j := range k.accIn {
		state[s] = args[j]
	}
	results := make([][]*matrix.Matrix, k.n)
	for i := range k.n {
		blocks := make([]*matrix.Matrix, len(args))
		for j, arg := range args {
			if s := k.stateOf[j]; s >= 0 {
				blocks[j] = state[s]
				continue
			}
			c := baseInputs[j].Cols()
			if blocks[j], err = arg.ColumnBlock(i*c, (i+1)*c); err != nil {
				return nil, err
			}
		}
		if results[i], err = evaluateBase(k.base, k.jit, blocks); err != nil {
			return nil, errors.WithMessagef(err, "repetition %d", i)
		}
		for s, o := range k.accOut {
			if state[s], err = matrix.Project(results[i][o], baseInputs[k.accIn[s]].Sparsity()); err != nil {
				return nil, err
			}
		}
	}
	metrics.MapRepetitions("accumulate", k.n)
	outs := make([]*matrix.Matrix, len(k.outputs))
	for o, node := range k.outputs {
		blocks := make([]*matrix.Matrix, k.n)
		for i, rep := range results {
			blocks[i] = rep[o]
		}
		if outs[o], err = matrix.Horzcat(blocks...); err != nil {
			return nil, err
		}
		if outs[o], err = matrix.Project(outs[o], node.Sparsity()); err != nil {
			return nil, err
		}
	}
	return outs, nil
}
