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

// Package codegen compiles expression graphs into flat scalar programs.
//
// A program is a list of instructions, one per scalar operation, in
// topological order. Every instruction reads its operands from slots of
// a flat value buffer and writes its result into another slot. Programs
// can be run by a small virtual machine or emitted as Go source code.
package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/lower"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

type (
	// Instr is an instruction of a program.
	Instr struct {
		// Op is the operation: a unary or binary elementwise operation,
		// OpConst to load a constant or OpGetNonzeros to load an input.
		Op graph.Op
		// Args are the slots of the operands.
		Args []int
		// Result is the slot written by the instruction.
		Result int
		// Value of a constant.
		Value float64
		// Input and NZ locate the nonzero of the input loaded.
		Input, NZ int
	}

	// Output describes how to assemble an output from the slots.
	Output struct {
		Sparsity *sparsity.Pattern
		// Slots holds the slot of every nonzero, -1 for a zero.
		Slots []int
	}

	// Program is a compiled scalar program.
	Program struct {
		name     string
		outNames []string
		inputs   []*graph.Node
		instrs   []Instr
		outputs  []Output
		numSlots int
	}
)

type compiler struct {
	inputIndex map[*graph.Node]int
	slots      map[*graph.Node]int
	prog       *Program
}

// Compile expands the outputs into scalar operations and compiles them
// into a program reading the inputs.
func Compile(name string, inputs, outputs []*graph.Node) (*Program, error) {
	if _, err := graph.NewPlan(inputs, outputs); err != nil {
		return nil, err
	}
	scalars, err := lower.Scalarize(outputs)
	if err != nil {
		return nil, err
	}
	c := &compiler{
		inputIndex: make(map[*graph.Node]int, len(inputs)),
		slots:      make(map[*graph.Node]int),
		prog:       &Program{name: name, inputs: inputs},
	}
	for i, in := range inputs {
		c.inputIndex[in] = i
	}
	var roots []*graph.Node
	for _, nz := range scalars {
		for _, s := range nz {
			if !s.IsZero() {
				roots = append(roots, s)
			}
		}
	}
	for _, n := range graph.Sort(roots) {
		if err := c.compile(n); err != nil {
			return nil, err
		}
	}
	for i, out := range outputs {
		o := Output{Sparsity: out.Sparsity(), Slots: make([]int, len(scalars[i]))}
		for k, s := range scalars[i] {
			o.Slots[k] = -1
			if !s.IsZero() {
				o.Slots[k] = c.slots[s]
			}
		}
		c.prog.outputs = append(c.prog.outputs, o)
		c.prog.outNames = append(c.prog.outNames, fmt.Sprintf("out%d", i))
	}
	return c.prog, nil
}

func (c *compiler) emit(n *graph.Node, instr Instr) {
	instr.Result = c.prog.numSlots
	c.slots[n] = instr.Result
	c.prog.numSlots++
	c.prog.instrs = append(c.prog.instrs, instr)
}

func (c *compiler) compile(n *graph.Node) error {
	switch op := n.Op(); {
	case op == graph.OpSymbol:
		// Only dense 1x1 symbols are read directly.
		if !n.Sparsity().IsScalar() || n.Sparsity().IsEmpty() {
			return nil
		}
		c.emit(n, Instr{Op: graph.OpGetNonzeros, Input: c.inputIndex[n], NZ: 0})
	case op == graph.OpConst:
		v, err := n.Value().Value()
		if err != nil {
			return err
		}
		c.emit(n, Instr{Op: graph.OpConst, Value: v})
	case op == graph.OpGetNonzeros:
		x := n.Child(0)
		if !x.IsSymbol() || !n.Sparsity().IsScalar() {
			return errs.Graphf("cannot compile %s: not a scalar read of an input", n)
		}
		c.emit(n, Instr{Op: graph.OpGetNonzeros, Input: c.inputIndex[x], NZ: n.Indices()[0]})
	case op.IsUnary() || op.IsBinary():
		args := make([]int, n.NumChildren())
		for i, child := range n.Children() {
			slot, ok := c.slots[child]
			if !ok {
				return errs.Graphf("cannot compile %s: operand %d has not been compiled", op, i)
			}
			args[i] = slot
		}
		c.emit(n, Instr{Op: op, Args: args})
	default:
		return errs.Graphf("cannot compile %s: not a scalar operation", op)
	}
	return nil
}

// Name of the program.
func (p *Program) Name() string { return p.name }

// OutputNames returns the names of the outputs.
func (p *Program) OutputNames() []string { return p.outNames }

// SetOutputNames names the outputs of the program.
func (p *Program) SetOutputNames(names []string) error {
	if len(names) != len(p.outputs) {
		return errs.Arityf("program %s has %d outputs but %d names were given", p.name, len(p.outputs), len(names))
	}
	p.outNames = append([]string{}, names...)
	return nil
}

// NumSlots returns the size of the value buffer.
func (p *Program) NumSlots() int { return p.numSlots }

// Instructions returns the instructions of the program.
func (p *Program) Instructions() []Instr { return p.instrs }

// Outputs returns how outputs are assembled.
func (p *Program) Outputs() []Output { return p.outputs }

// Inputs returns the inputs read by the program.
func (p *Program) Inputs() []*graph.Node { return p.inputs }

// BufferShape returns the shape of the value buffer.
func (p *Program) BufferShape() *shape.Shape {
	return &shape.Shape{DType: dtype.Float64, AxisLengths: []int{p.numSlots}}
}

// Run executes the program on the arguments.
func (p *Program) Run(args []*matrix.Matrix) ([]*matrix.Matrix, error) {
	args, err := graph.PrepareArgs(p.inputs, args)
	if err != nil {
		return nil, err
	}
	buf := make([]float64, p.numSlots)
	for i, instr := range p.instrs {
		switch {
		case instr.Op == graph.OpConst:
			buf[instr.Result] = instr.Value
		case instr.Op == graph.OpGetNonzeros:
			buf[instr.Result] = args[instr.Input].NZ()[instr.NZ]
		case instr.Op.IsUnary():
			f, _ := graph.UnaryFunc(instr.Op)
			x := buf[instr.Args[0]]
			buf[instr.Result] = f(x)
			if isFinite(x) && !isFinite(buf[instr.Result]) {
				return nil, errors.Wrapf(errs.ErrDomain, "instruction %d: %s(%g) is not finite", i, instr.Op, x)
			}
		case instr.Op.IsBinary():
			f, _ := graph.BinaryFunc(instr.Op)
			x, y := buf[instr.Args[0]], buf[instr.Args[1]]
			buf[instr.Result] = f(x, y)
			if isFinite(x) && isFinite(y) && !isFinite(buf[instr.Result]) {
				return nil, errors.Wrapf(errs.ErrDomain, "instruction %d: %s(%g, %g) is not finite", i, instr.Op, x, y)
			}
		default:
			return nil, errs.Graphf("instruction %d: unknown operation %s", i, instr.Op)
		}
	}
	outs := make([]*matrix.Matrix, len(p.outputs))
	for i, o := range p.outputs {
		nz := make([]float64, len(o.Slots))
		for k, slot := range o.Slots {
			if slot >= 0 {
				nz[k] = buf[slot]
			}
		}
		if outs[i], err = matrix.New(o.Sparsity, nz); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func slot(i int) string {
	return fmt.Sprintf("@%d", i)
}

// String returns a listing of the program, one instruction per line.
func (p *Program) String() string {
	var b strings.Builder
	for _, instr := range p.instrs {
		fmt.Fprintf(&b, "%s = ", slot(instr.Result))
		switch {
		case instr.Op == graph.OpConst:
			fmt.Fprintf(&b, "%g", instr.Value)
		case instr.Op == graph.OpGetNonzeros:
			fmt.Fprintf(&b, "input[%d][%d]", instr.Input, instr.NZ)
		default:
			args := make([]string, len(instr.Args))
			for i, a := range instr.Args {
				args[i] = slot(a)
			}
			fmt.Fprintf(&b, "%s(%s)", instr.Op, strings.Join(args, ", "))
		}
		b.WriteString("\n")
	}
	for i, o := range p.outputs {
		slots := make([]string, len(o.Slots))
		for k, s := range o.Slots {
			slots[k] = "0"
			if s >= 0 {
				slots[k] = slot(s)
			}
		}
		fmt.Fprintf(&b, "output[%d] %s = {%s}\n", i, o.Sparsity, strings.Join(slots, ", "))
	}
	return b.String()
}
