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

// Package lower rewrites expression graphs into graphs of scalar operations.
//
// Every matrix operation is replaced by the scalar operations computing
// each of its nonzeros. Inputs are read nonzero by nonzero and outputs
// are assembled back from their scalar nonzeros, so that the expanded
// graph computes the same values as the original one.
package lower

import (
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

type expander struct {
	scalars map[*graph.Node][]*graph.Node
	zero    *graph.Node
}

// Scalarize returns, for every output, the scalar expressions computing
// each of its nonzeros.
func Scalarize(outputs []*graph.Node) ([][]*graph.Node, error) {
	e := &expander{
		scalars: make(map[*graph.Node][]*graph.Node),
		zero:    graph.Scalar(0),
	}
	for _, n := range graph.Sort(outputs) {
		s, err := e.expand(n)
		if err != nil {
			return nil, errors.WithMessagef(err, "expanding %s", n.Op())
		}
		e.scalars[n] = s
	}
	res := make([][]*graph.Node, len(outputs))
	for i, out := range outputs {
		res[i] = e.scalars[out]
	}
	return res, nil
}

// Expand returns the outputs rewritten with scalar operations only.
func Expand(outputs []*graph.Node) ([]*graph.Node, error) {
	scalars, err := Scalarize(outputs)
	if err != nil {
		return nil, err
	}
	res := make([]*graph.Node, len(outputs))
	for i, out := range outputs {
		if res[i], err = assemble(out.Sparsity(), scalars[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func assemble(sp *sparsity.Pattern, nz []*graph.Node) (*graph.Node, error) {
	argOf := make(map[*graph.Node]int)
	var args []*graph.Node
	terms := make([][]matrix.Ref, len(nz))
	for k, s := range nz {
		if s.IsZero() {
			continue
		}
		arg, ok := argOf[s]
		if !ok {
			arg = len(args)
			argOf[s] = arg
			args = append(args, s)
		}
		terms[k] = []matrix.Ref{{Arg: arg, NZ: 0}}
	}
	return graph.Assemble(sp, args, terms)
}

// IsScalar returns true if every operation reachable from the outputs
// computes a 1x1 value, except the reads of the input symbols and the
// assembly of the outputs.
func IsScalar(outputs []*graph.Node) bool {
	for _, n := range graph.Sort(outputs) {
		if n.NumChildren() == 0 || n.Sparsity().IsScalar() {
			continue
		}
		if n.Op() != graph.OpAssemble {
			return false
		}
		for _, c := range n.Children() {
			if !c.Sparsity().IsScalar() {
				return false
			}
		}
	}
	return true
}

func (e *expander) at(xs []*graph.Node, i int) *graph.Node {
	if i < 0 {
		return e.zero
	}
	return xs[i]
}

func (e *expander) sum(terms []*graph.Node) (*graph.Node, error) {
	if len(terms) == 0 {
		return e.zero, nil
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		var err error
		if acc, err = graph.Add(acc, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// elementIndices returns, for every nonzero of n, the nonzero of its
// elementwise argument x or -1.
func elementIndices(x, n *graph.Node) ([]int, error) {
	if x.Rows() == n.Rows() && x.Cols() == n.Cols() {
		return x.Sparsity().Lookup(n.Sparsity())
	}
	idx := make([]int, n.Sparsity().NNZ())
	for k := range idx {
		if x.Sparsity().NNZ() == 0 {
			idx[k] = -1
		}
	}
	return idx, nil
}

func (e *expander) expand(n *graph.Node) ([]*graph.Node, error) {
	sp := n.Sparsity()
	out := make([]*graph.Node, sp.NNZ())
	var err error
	switch op := n.Op(); {
	case op == graph.OpSymbol:
		for k := range out {
			if out[k], err = graph.GetNonzeros(n, sparsity.Scalar(), []int{k}); err != nil {
				return nil, err
			}
		}
	case op == graph.OpConst:
		for k, v := range n.Value().NZ() {
			out[k] = graph.Scalar(v)
		}
	case op.IsUnary():
		x := n.Child(0)
		idx, err := elementIndices(x, n)
		if err != nil {
			return nil, err
		}
		for k := range out {
			if out[k], err = graph.Unary(op, e.at(e.scalars[x], idx[k])); err != nil {
				return nil, err
			}
		}
	case op.IsBinary():
		x, y := n.Child(0), n.Child(1)
		xi, err := elementIndices(x, n)
		if err != nil {
			return nil, err
		}
		yi, err := elementIndices(y, n)
		if err != nil {
			return nil, err
		}
		for k := range out {
			a, b := e.at(e.scalars[x], xi[k]), e.at(e.scalars[y], yi[k])
			if out[k], err = graph.Binary(op, a, b); err != nil {
				return nil, err
			}
		}
	case op == graph.OpMTimes:
		return e.mtimes(n)
	case op == graph.OpTranspose:
		xs := e.scalars[n.Child(0)]
		_, mapping := sparsity.TransposeMapping(n.Child(0).Sparsity())
		for k, src := range mapping {
			out[k] = xs[src]
		}
	case op == graph.OpSum:
		if len(out) > 0 {
			if out[0], err = e.sum(e.scalars[n.Child(0)]); err != nil {
				return nil, err
			}
		}
	case op == graph.OpHorzcat || op == graph.OpVertcat:
		for c, idx := range graph.ConcatIndices(n) {
			cs := e.scalars[n.Child(c)]
			for i, k := range idx {
				out[k] = cs[i]
			}
		}
	case op == graph.OpGetNonzeros:
		xs := e.scalars[n.Child(0)]
		for k, i := range n.Indices() {
			out[k] = e.at(xs, i)
		}
	case op == graph.OpAssemble:
		for k, refs := range n.Terms() {
			terms := make([]*graph.Node, len(refs))
			for i, ref := range refs {
				terms[i] = e.scalars[n.Child(ref.Arg)][ref.NZ]
			}
			if out[k], err = e.sum(terms); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errs.Graphf("no scalar expansion for %s", op)
	}
	return out, nil
}

func (e *expander) mtimes(n *graph.Node) ([]*graph.Node, error) {
	x, y := n.Child(0), n.Child(1)
	xs, ys := e.scalars[x], e.scalars[y]
	ycol, yrow := y.Sparsity().ColInd(), y.Sparsity().Row()
	ri, rj := n.Sparsity().Triplets()
	out := make([]*graph.Node, len(ri))
	for k := range ri {
		var terms []*graph.Node
		for ky := ycol[rj[k]]; ky < ycol[rj[k]+1]; ky++ {
			kx := x.Sparsity().Find(ri[k], yrow[ky])
			if kx < 0 {
				continue
			}
			t, err := graph.Mul(xs[kx], ys[ky])
			if err != nil {
				return nil, err
			}
			terms = append(terms, t)
		}
		var err error
		if out[k], err = e.sum(terms); err != nil {
			return nil, err
		}
	}
	return out, nil
}
