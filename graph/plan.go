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

package graph

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/matrix"
)

// Plan evaluates the outputs of a graph given the values of its inputs.
// A plan is immutable and can be evaluated concurrently.
type Plan struct {
	inputs  []*Node
	outputs []*Node
	order   []*Node

	// For every node in order, the input it reads or -1.
	inputOf []int
	// For every node in order, the position of its children in order.
	childPos [][]int
	// Position of the outputs in order.
	outputPos []int
}

// NewPlan returns a plan evaluating the outputs.
// Inputs must be distinct symbols and every symbol reachable from the
// outputs must be an input.
func NewPlan(inputs, outputs []*Node) (*Plan, error) {
	order := Sort(outputs)
	pos := make(map[*Node]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	p := &Plan{
		inputs:    inputs,
		outputs:   outputs,
		order:     order,
		inputOf:   make([]int, len(order)),
		childPos:  make([][]int, len(order)),
		outputPos: make([]int, len(outputs)),
	}
	for i := range p.inputOf {
		p.inputOf[i] = -1
	}
	declared := bitset.New(uint(len(order)))
	seen := make(map[*Node]bool, len(inputs))
	for i, in := range inputs {
		if !in.IsSymbol() {
			return nil, errs.Arityf("input %d is not a symbol: %s", i, in)
		}
		if seen[in] {
			return nil, errs.Arityf("input %d: symbol %s declared more than once", i, in.name)
		}
		seen[in] = true
		if at, ok := pos[in]; ok {
			declared.Set(uint(at))
			p.inputOf[at] = i
		}
	}
	for i, n := range order {
		if n.IsSymbol() && !declared.Test(uint(i)) {
			return nil, errs.Arityf("free symbol %s is not an input", n.name)
		}
		if len(n.children) == 0 {
			continue
		}
		p.childPos[i] = make([]int, len(n.children))
		for c, child := range n.children {
			p.childPos[i][c] = pos[child]
		}
	}
	for i, out := range outputs {
		p.outputPos[i] = pos[out]
	}
	return p, nil
}

// Inputs returns the inputs of the plan.
func (p *Plan) Inputs() []*Node { return p.inputs }

// Outputs returns the outputs of the plan.
func (p *Plan) Outputs() []*Node { return p.outputs }

// Order returns the nodes of the plan in evaluation order.
func (p *Plan) Order() []*Node { return p.order }

// NumNodes returns the number of nodes evaluated by the plan.
func (p *Plan) NumNodes() int { return len(p.order) }

// PrepareArgs checks the dimensions of the arguments and projects them
// on the patterns of the inputs. 1x1 arguments are broadcast.
func PrepareArgs(inputs []*Node, args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	if len(args) != len(inputs) {
		return nil, errs.Arityf("expected %d arguments, got %d", len(inputs), len(args))
	}
	res := make([]*matrix.Matrix, len(args))
	for i, arg := range args {
		in := inputs[i]
		if arg == nil {
			res[i] = matrix.Zeros(in.sp)
			continue
		}
		b, err := matrix.Broadcast(arg, in.Rows(), in.Cols())
		if err != nil {
			return nil, errors.WithMessagef(err, "argument %d (%s)", i, in.name)
		}
		if res[i], err = matrix.Project(b, in.sp); err != nil {
			return nil, errors.WithMessagef(err, "argument %d (%s)", i, in.name)
		}
	}
	return res, nil
}

// Evaluate computes the outputs given the values of the inputs.
// Every node is computed once. A nil argument is zero.
func (p *Plan) Evaluate(args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	args, err := PrepareArgs(p.inputs, args)
	if err != nil {
		return nil, err
	}
	values := make([]*matrix.Matrix, len(p.order))
	for i, n := range p.order {
		switch {
		case n.op == OpConst:
			values[i] = n.value
			continue
		case n.op == OpSymbol:
			values[i] = args[p.inputOf[i]]
			continue
		}
		childValues := make([]*matrix.Matrix, len(p.childPos[i]))
		finite := true
		for c, at := range p.childPos[i] {
			childValues[c] = values[at]
			finite = finite && values[at].IsFinite()
		}
		val, err := n.eval(childValues)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating %s", n.op)
		}
		if finite && !val.IsFinite() {
			return nil, errors.Wrapf(errs.ErrDomain, "%s produced a non-finite value", n.op)
		}
		values[i] = val
	}
	outs := make([]*matrix.Matrix, len(p.outputs))
	for i, at := range p.outputPos {
		outs[i] = values[at]
	}
	return outs, nil
}
