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

type mapKernel struct {
	base        *Function
	n           int
	replicated  []bool
	accumulated []bool
	opts        options.Map
	inputs      []*graph.Node
	outputs     []*graph.Node
}

func flags(what string, fs []bool, n int, def bool) ([]bool, error) {
	if fs == nil {
		fs = make([]bool, n)
		for i := range fs {
			fs[i] = def
		}
		return fs, nil
	}
	if len(fs) != n {
		return nil, errors.Wrapf(errs.ErrMapAccumShape, "%d %s flags for %d ports", len(fs), what, n)
	}
	return append([]bool{}, fs...), nil
}

// repeatInput returns a symbol holding n horizontal copies of an input.
func repeatInput(in *graph.Node, n int) (*graph.Node, error) {
	sp, err := sparsity.Repeat(in.Sparsity(), n)
	if err != nil {
		return nil, err
	}
	return graph.Symbol(in.Name(), sp), nil
}

// block returns the expression of repetition i of a repeated input.
func block(x, in *graph.Node, i int) (*graph.Node, error) {
	c := in.Cols()
	return graph.ColumnBlock(x, i*c, (i+1)*c)
}

func horzcatRepetitions(reps [][]*graph.Node, o int) (*graph.Node, error) {
	blocks := make([]*graph.Node, len(reps))
	for i, rep := range reps {
		blocks[i] = rep[o]
	}
	return graph.Horzcat(blocks...)
}

// Map returns a function evaluating f n times.
//
// Replicated inputs (all inputs if replicated is nil) take the horizontal
// concatenation of n blocks, one per repetition. Other inputs are shared
// by all repetitions. Accumulated outputs (none if accumulated is nil)
// are summed over all repetitions. Other outputs are the horizontal
// concatenation of the outputs of every repetition, in repetition order.
//
// Repetitions are independent: mode selects whether they are evaluated
// one after the other or by a pool of workers. The parallelization
// option, if present, overrides mode.
func (f *Function) Map(name string, n int, replicated, accumulated []bool, mode options.ParallelMode, opts options.Dict) (*Function, error) {
	if name == "" {
		name = fmt.Sprintf("map%d_%s", n, f.name)
	}
	o, err := options.ParseMap(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "map %s", name)
	}
	if _, ok := opts[options.KeyParallelization]; !ok {
		o.Parallelization = mode
	}
	if o.Logger == nil {
		o.Logger = f.opts.Logger
	}
	if n < 1 {
		return nil, errs.Dimensionf("map %s: number of repetitions %d must be positive", name, n)
	}
	k := &mapKernel{base: f, n: n, opts: o}
	if k.replicated, err = flags("replicated", replicated, f.NumIn(), true); err != nil {
		return nil, errors.WithMessagef(err, "map %s", name)
	}
	if k.accumulated, err = flags("accumulated", accumulated, f.NumOut(), false); err != nil {
		return nil, errors.WithMessagef(err, "map %s", name)
	}
	if err := k.buildGraph(); err != nil {
		return nil, errors.WithMessagef(err, "map %s", name)
	}
	if o.InputScheme == nil {
		o.InputScheme = f.inNames
	}
	if o.OutputScheme == nil {
		o.OutputScheme = f.outNames
	}
	mf, err := Build(name, k.inputs, k.outputs, o.Function)
	if err != nil {
		return nil, err
	}
	mf.kernel = k
	mf.log().Debug("map built",
		zap.String("function", name),
		zap.String("base", f.name),
		zap.Int("n", n),
		zap.Stringer("mode", o.Parallelization),
		zap.Int("workers", o.Workers(n)),
	)
	return mf, nil
}

func (k *mapKernel) buildGraph() error {
	baseInputs := k.base.plan.Inputs()
	k.inputs = make([]*graph.Node, len(baseInputs))
	for j, in := range baseInputs {
		if !k.replicated[j] {
			k.inputs[j] = in
			continue
		}
		var err error
		if k.inputs[j], err = repeatInput(in, k.n); err != nil {
			return err
		}
	}
	reps := make([][]*graph.Node, k.n)
	for i := range reps {
		args := make([]*graph.Node, len(k.inputs))
		for j, x := range k.inputs {
			if !k.replicated[j] {
				args[j] = x
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
	}
	k.outputs = make([]*graph.Node, len(k.accumulated))
	for o := range k.outputs {
		if !k.accumulated[o] {
			var err error
			if k.outputs[o], err = horzcatRepetitions(reps, o); err != nil {
				return err
			}
			continue
		}
		sum := reps[0][o]
		for _, rep := range reps[1:] {
			var err error
			if sum, err = graph.Add(sum, rep[o]); err != nil {
				return err
			}
		}
		k.outputs[o] = sum
	}
	return nil
}

func (k *mapKernel) path() string { return "map" }

// evaluateBase evaluates one repetition of the base function.
func evaluateBase(base *Function, jit bool, args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	if !jit {
		outs, _, err := base.evaluate(args)
		return outs, err
	}
	prog, err := base.Program()
	if err != nil {
		return nil, err
	}
	return prog.Run(args)
}

func (k *mapKernel) evaluate(args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	args, err := graph.PrepareArgs(k.inputs, args)
	if err != nil {
		return nil, err
	}
	baseInputs := k.base.plan.Inputs()
	results := make([][]*matrix.Matrix, k.n)
	run := func(i int) error {
		blocks := make([]*matrix.Matrix, len(args))
		for j, arg := range args {
			if !k.replicated[j] {
				blocks[j] = arg
				continue
			}
			c := baseInputs[j].Cols()
			var err error
			if blocks[j], err = arg.ColumnBlock(i*c, (i+1)*c); err != nil {
				return err
			}
		}
		outs, err := evaluateBase(k.base, k.opts.JIT, blocks)
		if err != nil {
			return err
		}
		results[i] = outs
		return nil
	}
	mode := k.opts.Parallelization
	k.base.log().Debug("map scheduled",
		zap.String("function", k.base.name),
		zap.Int("n", k.n),
		zap.Stringer("mode", mode),
		zap.Int("workers", k.opts.Workers(k.n)),
	)
	if mode == options.Parallel {
		err = parallel(k.opts.Workers(k.n), k.n, run)
	} else {
		err = serial(k.n, run)
	}
	if err != nil {
		return nil, err
	}
	metrics.MapRepetitions(mode.String(), k.n)
	return k.gather(results)
}

func (k *mapKernel) gather(results [][]*matrix.Matrix) ([]*matrix.Matrix, error) {
	add, _ := graph.BinaryFunc(graph.OpAdd)
	outs := make([]*matrix.Matrix, len(k.outputs))
	for o, node := range k.outputs {
		var err error
		if k.accumulated[o] {
			// Repetitions are summed in order so that all modes give the same result.
			sum := results[0][o]
			for _, rep := range results[1:] {
				if sum, err = matrix.Apply2(add, sum, rep[o], sum.Sparsity()); err != nil {
					return nil, err
				}
			}
			outs[o] = sum
		} else {
			blocks := make([]*matrix.Matrix, len(results))
			for i, rep := range results {
				blocks[i] = rep[o]
			}
			if outs[o], err = matrix.Horzcat(blocks...); err != nil {
				return nil, err
			}
		}
		if outs[o], err = matrix.Project(outs[o], node.Sparsity()); err != nil {
			return nil, err
		}
	}
	return outs, nil
}
