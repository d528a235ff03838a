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
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

// Sort returns all the nodes reachable from the outputs in topological
// order: children always come before their parents.
func Sort(outputs []*Node) []*Node {
	type frame struct {
		n    *Node
		next int
	}
	visited := make(map[*Node]bool)
	var order []*Node
	var stack []frame
	for _, out := range outputs {
		if visited[out] {
			continue
		}
		visited[out] = true
		stack = append(stack, frame{n: out})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.n.children) {
				c := top.n.children[top.next]
				top.next++
				if !visited[c] {
					visited[c] = true
					stack = append(stack, frame{n: c})
				}
				continue
			}
			order = append(order, top.n)
			stack = stack[:len(stack)-1]
		}
	}
	return order
}

// Symbols returns the symbols reachable from the outputs in topological order.
func Symbols(outputs []*Node) []*Node {
	var syms []*Node
	for _, n := range Sort(outputs) {
		if n.IsSymbol() {
			syms = append(syms, n)
		}
	}
	return syms
}

// Params are the literal parameters of a node.
type Params struct {
	Sparsity *sparsity.Pattern
	Indices  []int
	Terms    [][]matrix.Ref
}

// Make returns the node computing op on the children.
// Params are only used by GetNonzeros and Assemble.
func Make(op Op, children []*Node, params Params) (*Node, error) {
	arity := func(want int) error {
		if len(children) != want {
			return errs.Arityf("%s expects %d arguments, got %d", op, want, len(children))
		}
		return nil
	}
	switch {
	case op.IsUnary():
		if err := arity(1); err != nil {
			return nil, err
		}
		return unary(op, children[0]), nil
	case op.IsBinary():
		if err := arity(2); err != nil {
			return nil, err
		}
		return Binary(op, children[0], children[1])
	}
	switch op {
	case OpMTimes:
		if err := arity(2); err != nil {
			return nil, err
		}
		return MTimes(children[0], children[1])
	case OpTranspose:
		if err := arity(1); err != nil {
			return nil, err
		}
		return Transpose(children[0]), nil
	case OpSum:
		if err := arity(1); err != nil {
			return nil, err
		}
		return Sum(children[0]), nil
	case OpHorzcat:
		return Horzcat(children...)
	case OpVertcat:
		return Vertcat(children...)
	case OpGetNonzeros:
		if err := arity(1); err != nil {
			return nil, err
		}
		return GetNonzeros(children[0], params.Sparsity, params.Indices)
	case OpAssemble:
		return Assemble(params.Sparsity, children, params.Terms)
	}
	return nil, errs.Graphf("cannot make a %s node", op)
}

// Rebuild returns the node computing the operation of n on new children.
// Children are projected on the pattern of the children they replace
// when n selects their nonzeros by index.
func Rebuild(n *Node, children []*Node) (*Node, error) {
	if n.op == OpGetNonzeros || n.op == OpAssemble {
		projected := make([]*Node, len(children))
		for i, c := range children {
			var err error
			if projected[i], err = Project(c, n.children[i].sp); err != nil {
				return nil, err
			}
		}
		children = projected
	}
	return Make(n.op, children, Params{Sparsity: n.sp, Indices: n.idx, Terms: n.terms})
}

// Substitute returns the outputs where the symbols from are replaced by
// the expressions to. An expression is projected on the pattern of the
// symbol it replaces and a 1x1 expression is broadcast.
func Substitute(outputs, from, to []*Node) ([]*Node, error) {
	if len(from) != len(to) {
		return nil, errs.Arityf("%d symbols to substitute with %d expressions", len(from), len(to))
	}
	mapped := make(map[*Node]*Node, len(from))
	for i, sym := range from {
		if !sym.IsSymbol() {
			return nil, errs.Graphf("cannot substitute %s: not a symbol", sym)
		}
		expr, err := Broadcast(to[i], sym.Rows(), sym.Cols())
		if err != nil {
			return nil, errors.WithMessagef(err, "substituting %s", sym.name)
		}
		if mapped[sym], err = Project(expr, sym.sp); err != nil {
			return nil, errors.WithMessagef(err, "substituting %s", sym.name)
		}
	}
	for _, n := range Sort(outputs) {
		if _, ok := mapped[n]; ok {
			continue
		}
		if len(n.children) == 0 {
			mapped[n] = n
			continue
		}
		children := make([]*Node, len(n.children))
		changed := false
		for i, c := range n.children {
			children[i] = mapped[c]
			changed = changed || children[i] != c
		}
		if !changed {
			mapped[n] = n
			continue
		}
		nn, err := Rebuild(n, children)
		if err != nil {
			return nil, err
		}
		mapped[n] = nn
	}
	res := make([]*Node, len(outputs))
	for i, out := range outputs {
		res[i] = mapped[out]
	}
	return res, nil
}
