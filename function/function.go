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

// Package function wraps expression graphs into named functions.
//
// A function maps a fixed list of input symbols to a fixed list of
// output expressions. Functions are immutable once built. They can be
// evaluated numerically, called symbolically, differentiated, mapped
// over many parameter sets and lowered to scalar programs.
package function

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/base/ordered"
	"github.com/gx-org/symgraph/base/sync"
	"github.com/gx-org/symgraph/codegen"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/internal/metrics"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

type (
	// kernel evaluates a function without going through its graph.
	kernel interface {
		path() string
		evaluate(args []*matrix.Matrix) ([]*matrix.Matrix, error)
	}

	derivedKey struct {
		kind    string
		out, in int
	}

	// Function is a named mapping from input symbols to output expressions.
	Function struct {
		name     string
		opts     options.Function
		plan     *graph.Plan
		inNames  []string
		outNames []string
		inIndex  *ordered.Map[string, int]
		outIndex *ordered.Map[string, int]
		kernel   kernel

		derived  sync.Map[derivedKey, *Function]
		patterns sync.Map[derivedKey, *sparsity.Pattern]
		programs sync.Map[string, *codegen.Program]
	}
)

// New returns a function given its inputs, its outputs and a set of options.
// The inputs must be distinct symbols and every symbol an output depends on
// must be an input.
func New(name string, inputs, outputs []*graph.Node, opts options.Dict) (*Function, error) {
	o, err := options.ParseFunction(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", name)
	}
	return Build(name, inputs, outputs, o)
}

// Build returns a function given its inputs, its outputs and parsed options.
func Build(name string, inputs, outputs []*graph.Node, opts options.Function) (*Function, error) {
	plan, err := graph.NewPlan(inputs, outputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", name)
	}
	f := &Function{
		name: name,
		opts: opts,
		plan: plan,
	}
	if f.inNames, f.inIndex, err = scheme("input", opts.InputScheme, len(inputs), "i"); err != nil {
		return nil, errors.WithMessagef(err, "function %s", name)
	}
	if f.outNames, f.outIndex, err = scheme("output", opts.OutputScheme, len(outputs), "o"); err != nil {
		return nil, errors.WithMessagef(err, "function %s", name)
	}
	f.opts.InputScheme = f.inNames
	f.opts.OutputScheme = f.outNames
	f.log().Debug("function built",
		zap.String("function", name),
		zap.Int("inputs", len(inputs)),
		zap.Int("outputs", len(outputs)),
		zap.Int("nodes", plan.NumNodes()),
	)
	return f, nil
}

func scheme(what string, names []string, n int, prefix string) ([]string, *ordered.Map[string, int], error) {
	if names == nil {
		names = make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("%s%d", prefix, i)
		}
	}
	if len(names) != n {
		return nil, nil, errors.Wrapf(errs.ErrInvalidOption, "%s scheme %v has %d names for %d %ss", what, names, len(names), n, what)
	}
	index, err := ordered.Index(names)
	if err != nil {
		return nil, nil, errors.Wrapf(errs.ErrInvalidOption, "%s scheme: %v", what, err)
	}
	return append([]string{}, names...), index, nil
}

func (f *Function) log() *zap.Logger {
	return f.opts.Log()
}

// derive builds a function sharing the inputs and the options of f.
func (f *Function) derive(name string, outputs []*graph.Node, outNames []string) (*Function, error) {
	opts := f.opts
	opts.OutputScheme = outNames
	return Build(name, f.plan.Inputs(), outputs, opts)
}

// Name of the function.
func (f *Function) Name() string { return f.name }

// Options returns the options of the function.
func (f *Function) Options() options.Function { return f.opts }

// NumIn returns the number of inputs.
func (f *Function) NumIn() int { return len(f.plan.Inputs()) }

// NumOut returns the number of outputs.
func (f *Function) NumOut() int { return len(f.plan.Outputs()) }

// Inputs returns the input symbols.
func (f *Function) Inputs() []*graph.Node { return f.plan.Inputs() }

// Outputs returns the output expressions.
func (f *Function) Outputs() []*graph.Node { return f.plan.Outputs() }

// Input returns the symbol of the ith input.
func (f *Function) Input(i int) (*graph.Node, error) {
	if err := errs.CheckIndex("input", i, f.NumIn()); err != nil {
		return nil, errors.WithMessagef(err, "function %s", f.name)
	}
	return f.plan.Inputs()[i], nil
}

// Output returns the expression of the ith output.
func (f *Function) Output(i int) (*graph.Node, error) {
	if err := errs.CheckIndex("output", i, f.NumOut()); err != nil {
		return nil, errors.WithMessagef(err, "function %s", f.name)
	}
	return f.plan.Outputs()[i], nil
}

// SparsityIn returns the pattern of the ith input.
func (f *Function) SparsityIn(i int) (*sparsity.Pattern, error) {
	in, err := f.Input(i)
	if err != nil {
		return nil, err
	}
	return in.Sparsity(), nil
}

// SparsityOut returns the pattern of the ith output.
func (f *Function) SparsityOut(i int) (*sparsity.Pattern, error) {
	out, err := f.Output(i)
	if err != nil {
		return nil, err
	}
	return out.Sparsity(), nil
}

// InputName returns the name of the ith input.
func (f *Function) InputName(i int) (string, error) {
	if err := errs.CheckIndex("input", i, f.NumIn()); err != nil {
		return "", errors.WithMessagef(err, "function %s", f.name)
	}
	return f.inNames[i], nil
}

// OutputName returns the name of the ith output.
func (f *Function) OutputName(i int) (string, error) {
	if err := errs.CheckIndex("output", i, f.NumOut()); err != nil {
		return "", errors.WithMessagef(err, "function %s", f.name)
	}
	return f.outNames[i], nil
}

// InputNames returns the names of all the inputs.
func (f *Function) InputNames() []string { return append([]string{}, f.inNames...) }

// OutputNames returns the names of all the outputs.
func (f *Function) OutputNames() []string { return append([]string{}, f.outNames...) }

// IndexIn returns the position of an input given its name.
func (f *Function) IndexIn(name string) (int, error) {
	i, ok := f.inIndex.Load(name)
	if !ok {
		return -1, errors.Wrapf(errs.ErrIndexOutOfRange, "function %s has no input %q: available inputs are %v", f.name, name, f.inNames)
	}
	return i, nil
}

// IndexOut returns the position of an output given its name.
func (f *Function) IndexOut(name string) (int, error) {
	i, ok := f.outIndex.Load(name)
	if !ok {
		return -1, errors.Wrapf(errs.ErrIndexOutOfRange, "function %s has no output %q: available outputs are %v", f.name, name, f.outNames)
	}
	return i, nil
}

// Evaluate computes the outputs of the function given numerical values
// for its inputs. A nil argument is zero and a 1x1 argument is broadcast.
func (f *Function) Evaluate(args ...*matrix.Matrix) ([]*matrix.Matrix, error) {
	outs, path, err := f.evaluate(args)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", f.name)
	}
	metrics.Evaluation(path)
	if f.opts.Verbose {
		f.log().Info("function evaluated", zap.String("function", f.name), zap.String("path", path))
	}
	return outs, nil
}

func (f *Function) evaluate(args []*matrix.Matrix) ([]*matrix.Matrix, string, error) {
	switch {
	case f.kernel != nil:
		outs, err := f.kernel.evaluate(args)
		return outs, f.kernel.path(), err
	case f.opts.JIT:
		prog, err := f.Program()
		if err != nil {
			return nil, "jit", err
		}
		outs, err := prog.Run(args)
		return outs, "jit", err
	}
	outs, err := f.plan.Evaluate(args)
	return outs, "graph", err
}

// EvaluateNamed evaluates the function with arguments given by input names.
// Missing inputs are zero. The outputs are returned by name.
func (f *Function) EvaluateNamed(args map[string]*matrix.Matrix) (map[string]*matrix.Matrix, error) {
	vals := make([]*matrix.Matrix, f.NumIn())
	for name, arg := range args {
		i, err := f.IndexIn(name)
		if err != nil {
			return nil, err
		}
		vals[i] = arg
	}
	outs, err := f.Evaluate(vals...)
	if err != nil {
		return nil, err
	}
	res := make(map[string]*matrix.Matrix, len(outs))
	for i, out := range outs {
		res[f.outNames[i]] = out
	}
	return res, nil
}

// Call applies the function to symbolic arguments and returns the
// expressions of its outputs.
func (f *Function) Call(args ...*graph.Node) ([]*graph.Node, error) {
	if len(args) != f.NumIn() {
		return nil, errs.Arityf("function %s: expected %d arguments, got %d", f.name, f.NumIn(), len(args))
	}
	for i, arg := range args {
		in := f.plan.Inputs()[i]
		if arg.Sparsity().IsScalar() || arg.Sparsity().SameShape(in.Sparsity()) {
			continue
		}
		return nil, errs.Dimensionf("function %s: argument %d (%s) is %dx%d but want %dx%d", f.name, i, f.inNames[i], arg.Rows(), arg.Cols(), in.Rows(), in.Cols())
	}
	outs, err := graph.Substitute(f.plan.Outputs(), f.plan.Inputs(), args)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", f.name)
	}
	return outs, nil
}

func portString(name string, sp *sparsity.Pattern) string {
	if sp.IsScalar() && sp.IsDense() {
		return name
	}
	return fmt.Sprintf("%s[%s]", name, sp)
}

// String returns the signature of the function.
func (f *Function) String() string {
	ins := make([]string, f.NumIn())
	for i, in := range f.plan.Inputs() {
		ins[i] = portString(f.inNames[i], in.Sparsity())
	}
	outs := make([]string, f.NumOut())
	for i, out := range f.plan.Outputs() {
		outs[i] = portString(f.outNames[i], out.Sparsity())
	}
	return fmt.Sprintf("%s:(%s)->(%s)", f.name, strings.Join(ins, ","), strings.Join(outs, ","))
}
