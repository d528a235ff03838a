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

type (
	// evalFunc computes the value of a node given the values of its children.
	evalFunc func(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error)

	// partialFunc returns the elementwise partial derivative of a node
	// with respect to its i-th child.
	partialFunc func(n *Node, i int) (*Node, error)

	// forwardFunc returns the directional derivative of a node given
	// the directional derivatives of its children. Nil seeds are zeros.
	forwardFunc func(n *Node, seeds []*Node) (*Node, error)

	// reverseFunc returns the contributions of the adjoint of a node to
	// the adjoints of its children.
	reverseFunc func(n *Node, adj *Node) ([]*Node, error)

	// depsFunc returns the positions (output nonzero, child nonzero) of the
	// local Jacobian of a node with respect to its c-th child.
	depsFunc func(n *Node, c int) (rows, cols []int)

	rule struct {
		eval    evalFunc
		partial partialFunc
		forward forwardFunc
		reverse reverseFunc
		deps    depsFunc
	}
)

var rules [numOps]rule

func init() {
	for op := range unaryFuncs {
		rules[op] = rule{eval: evalUnary, deps: elementwiseDeps}
	}
	for op := range binaryFuncs {
		rules[op] = rule{eval: evalBinary, deps: elementwiseDeps}
	}
	for op, partial := range map[Op]partialFunc{
		OpNeg:  unaryPartial(func(n, x *Node) (*Node, error) { return Scalar(-1), nil }),
		OpSq:   unaryPartial(func(n, x *Node) (*Node, error) { return Mul(Scalar(2), x) }),
		OpSqrt: unaryPartial(func(n, x *Node) (*Node, error) { return Div(Scalar(0.5), n) }),
		OpSin:  unaryPartial(func(n, x *Node) (*Node, error) { return Cos(x), nil }),
		OpCos:  unaryPartial(func(n, x *Node) (*Node, error) { return Neg(Sin(x)), nil }),
		OpTan:  unaryPartial(func(n, x *Node) (*Node, error) { return Add(Scalar(1), Sq(n)) }),
		OpExp:  unaryPartial(func(n, x *Node) (*Node, error) { return n, nil }),
		OpLog:  unaryPartial(func(n, x *Node) (*Node, error) { return Div(Scalar(1), x) }),
		OpTanh: unaryPartial(func(n, x *Node) (*Node, error) { return Sub(Scalar(1), Sq(n)) }),
		OpAbs:  unaryPartial(func(n, x *Node) (*Node, error) { return Sign(x), nil }),
		OpAdd:  addPartial,
		OpSub:  subPartial,
		OpMul:  mulPartial,
		OpDiv:  divPartial,
		OpPow:  powPartial,
		OpFmin: selectPartial,
		OpFmax: selectPartial,
	} {
		r := rules[op]
		r.partial = partial
		r.forward = forwardElementwise
		r.reverse = reverseElementwise
		rules[op] = r
	}
	rules[OpMTimes] = rule{eval: evalMTimes, forward: forwardMTimes, reverse: reverseMTimes, deps: mtimesDeps}
	rules[OpTranspose] = rule{eval: evalTranspose, forward: forwardTranspose, reverse: reverseTranspose, deps: transposeDeps}
	rules[OpSum] = rule{eval: evalSum, forward: forwardSum, reverse: reverseSum, deps: sumDeps}
	rules[OpHorzcat] = rule{eval: evalConcat, forward: forwardConcat, reverse: reverseConcat, deps: concatDeps}
	rules[OpVertcat] = rules[OpHorzcat]
	rules[OpGetNonzeros] = rule{eval: evalGetNonzeros, forward: forwardGetNonzeros, reverse: reverseGetNonzeros, deps: getNonzerosDeps}
	rules[OpAssemble] = rule{eval: evalAssemble, forward: forwardAssemble, reverse: reverseAssemble, deps: assembleDeps}
}

// Evaluation rules.

func evalUnary(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.Apply(unaryFuncs[n.op], args[0], n.sp)
}

func evalBinary(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.Apply2(binaryFuncs[n.op], args[0], args[1], n.sp)
}

func evalMTimes(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.MTimes(args[0], args[1], n.sp)
}

func evalTranspose(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.Transpose(args[0]), nil
}

func evalSum(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	if n.sp.IsEmpty() {
		return matrix.Zeros(n.sp), nil
	}
	return matrix.Sum(args[0]), nil
}

func evalConcat(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	if n.op == OpHorzcat {
		return matrix.Horzcat(args...)
	}
	return matrix.Vertcat(args...)
}

func evalGetNonzeros(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.Gather(args[0], n.sp, n.idx)
}

func evalAssemble(n *Node, args []*matrix.Matrix) (*matrix.Matrix, error) {
	return matrix.Assemble(n.sp, args, n.terms)
}

// Partial derivatives of elementwise operations.

func unaryPartial(f func(n, x *Node) (*Node, error)) partialFunc {
	return func(n *Node, i int) (*Node, error) {
		return f(n, n.children[0])
	}
}

func addPartial(n *Node, i int) (*Node, error) {
	return Scalar(1), nil
}

func subPartial(n *Node, i int) (*Node, error) {
	if i == 0 {
		return Scalar(1), nil
	}
	return Scalar(-1), nil
}

func mulPartial(n *Node, i int) (*Node, error) {
	return n.children[1-i], nil
}

func divPartial(n *Node, i int) (*Node, error) {
	y := n.children[1]
	if i == 0 {
		return Div(Scalar(1), y)
	}
	q, err := Div(n, y)
	if err != nil {
		return nil, err
	}
	return Neg(q), nil
}

func powPartial(n *Node, i int) (*Node, error) {
	x, y := n.children[0], n.children[1]
	if i == 1 {
		return Mul(n, Log(x))
	}
	ym1, err := Sub(y, Scalar(1))
	if err != nil {
		return nil, err
	}
	p, err := Pow(x, ym1)
	if err != nil {
		return nil, err
	}
	return Mul(y, p)
}

// selectPartial returns the partial derivative of fmin or fmax: 1 for the
// selected operand, 0 for the other one and 1/2 for both operands on ties.
func selectPartial(n *Node, i int) (*Node, error) {
	d, err := Sub(n.children[0], n.children[1])
	if err != nil {
		return nil, err
	}
	s := Sign(d)
	if (n.op == OpFmax) != (i == 0) {
		s = Neg(s)
	}
	sel, err := Add(Scalar(1), s)
	if err != nil {
		return nil, err
	}
	return Mul(Scalar(0.5), sel)
}

// scale returns p*s.
func scale(p, s *Node) (*Node, error) {
	if p.sp.IsScalar() && p.IsConstValue(-1) {
		return Neg(s), nil
	}
	return Mul(p, s)
}

// sumTerms returns the sum of the non-nil terms, nil if there is none.
func sumTerms(terms ...*Node) (*Node, error) {
	var sum *Node
	for _, t := range terms {
		if t == nil {
			continue
		}
		if sum == nil {
			sum = t
			continue
		}
		var err error
		if sum, err = Add(sum, t); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func forwardElementwise(n *Node, seeds []*Node) (*Node, error) {
	terms := make([]*Node, len(seeds))
	for i, s := range seeds {
		if s == nil {
			continue
		}
		p, err := rules[n.op].partial(n, i)
		if err != nil {
			return nil, err
		}
		if terms[i], err = scale(p, s); err != nil {
			return nil, err
		}
	}
	return sumTerms(terms...)
}

func reverseElementwise(n *Node, adj *Node) ([]*Node, error) {
	contribs := make([]*Node, len(n.children))
	for i, c := range n.children {
		if c.IsConst() {
			continue
		}
		p, err := rules[n.op].partial(n, i)
		if err != nil {
			return nil, err
		}
		if contribs[i], err = scale(p, adj); err != nil {
			return nil, err
		}
	}
	return contribs, nil
}

// Matrix operations.

func forwardMTimes(n *Node, seeds []*Node) (*Node, error) {
	x, y := n.children[0], n.children[1]
	var dx, dy *Node
	var err error
	if seeds[0] != nil {
		if dx, err = MTimes(seeds[0], y); err != nil {
			return nil, err
		}
	}
	if seeds[1] != nil {
		if dy, err = MTimes(x, seeds[1]); err != nil {
			return nil, err
		}
	}
	return sumTerms(dx, dy)
}

func reverseMTimes(n *Node, adj *Node) ([]*Node, error) {
	x, y := n.children[0], n.children[1]
	ax, err := MTimes(adj, Transpose(y))
	if err != nil {
		return nil, err
	}
	ay, err := MTimes(Transpose(x), adj)
	if err != nil {
		return nil, err
	}
	return []*Node{ax, ay}, nil
}

func forwardTranspose(n *Node, seeds []*Node) (*Node, error) {
	return Transpose(seeds[0]), nil
}

func reverseTranspose(n *Node, adj *Node) ([]*Node, error) {
	return []*Node{Transpose(adj)}, nil
}

func forwardSum(n *Node, seeds []*Node) (*Node, error) {
	return Sum(seeds[0]), nil
}

func reverseSum(n *Node, adj *Node) ([]*Node, error) {
	a, err := Fill(adj, n.children[0].sp)
	if err != nil {
		return nil, err
	}
	return []*Node{a}, nil
}

// ConcatIndices returns, for every child of a concatenation, the index
// of each of its nonzeros in the result.
func ConcatIndices(n *Node) [][]int {
	idx := make([][]int, len(n.children))
	if n.op == OpHorzcat {
		offset := 0
		for c, child := range n.children {
			idx[c] = make([]int, child.sp.NNZ())
			for i := range idx[c] {
				idx[c][i] = offset + i
			}
			offset += len(idx[c])
		}
		return idx
	}
	for c, child := range n.children {
		idx[c] = make([]int, child.sp.NNZ())
	}
	k := 0
	for j := 0; j < n.Cols(); j++ {
		for c, child := range n.children {
			colind := child.sp.ColInd()
			for i := colind[j]; i < colind[j+1]; i++ {
				idx[c][i] = k
				k++
			}
		}
	}
	return idx
}

func forwardConcat(n *Node, seeds []*Node) (*Node, error) {
	args := make([]*Node, len(seeds))
	for i, s := range seeds {
		if s == nil {
			s = Zeros(n.children[i].sp)
		}
		args[i] = s
	}
	if n.op == OpHorzcat {
		return Horzcat(args...)
	}
	return Vertcat(args...)
}

func reverseConcat(n *Node, adj *Node) ([]*Node, error) {
	idx := ConcatIndices(n)
	contribs := make([]*Node, len(n.children))
	for c, child := range n.children {
		var err error
		if contribs[c], err = GetNonzeros(adj, child.sp, idx[c]); err != nil {
			return nil, err
		}
	}
	return contribs, nil
}

func forwardGetNonzeros(n *Node, seeds []*Node) (*Node, error) {
	return GetNonzeros(seeds[0], n.sp, n.idx)
}

func reverseGetNonzeros(n *Node, adj *Node) ([]*Node, error) {
	x := n.children[0]
	terms := make([][]matrix.Ref, x.sp.NNZ())
	for k, i := range n.idx {
		if i >= 0 {
			terms[i] = append(terms[i], matrix.Ref{Arg: 0, NZ: k})
		}
	}
	a, err := Assemble(x.sp, []*Node{adj}, terms)
	if err != nil {
		return nil, err
	}
	return []*Node{a}, nil
}

func forwardAssemble(n *Node, seeds []*Node) (*Node, error) {
	remap := make([]int, len(seeds))
	var args []*Node
	for c, s := range seeds {
		remap[c] = -1
		if s != nil {
			remap[c] = len(args)
			args = append(args, s)
		}
	}
	terms := make([][]matrix.Ref, len(n.terms))
	for k, refs := range n.terms {
		for _, ref := range refs {
			if arg := remap[ref.Arg]; arg >= 0 {
				terms[k] = append(terms[k], matrix.Ref{Arg: arg, NZ: ref.NZ})
			}
		}
	}
	return Assemble(n.sp, args, terms)
}

func reverseAssemble(n *Node, adj *Node) ([]*Node, error) {
	terms := make([][][]matrix.Ref, len(n.children))
	for c, child := range n.children {
		terms[c] = make([][]matrix.Ref, child.sp.NNZ())
	}
	for k, refs := range n.terms {
		for _, ref := range refs {
			terms[ref.Arg][ref.NZ] = append(terms[ref.Arg][ref.NZ], matrix.Ref{Arg: 0, NZ: k})
		}
	}
	contribs := make([]*Node, len(n.children))
	for c, child := range n.children {
		if child.IsConst() {
			continue
		}
		var err error
		if contribs[c], err = Assemble(child.sp, []*Node{adj}, terms[c]); err != nil {
			return nil, err
		}
	}
	return contribs, nil
}

// Local Jacobian patterns.

func elementwiseDeps(n *Node, c int) (rows, cols []int) {
	child := n.children[c]
	if child.Rows() != n.Rows() || child.Cols() != n.Cols() {
		if child.sp.NNZ() == 0 {
			return nil, nil
		}
		for k := 0; k < n.sp.NNZ(); k++ {
			rows = append(rows, k)
			cols = append(cols, 0)
		}
		return rows, cols
	}
	idx, _ := child.sp.Lookup(n.sp)
	for k, i := range idx {
		if i >= 0 {
			rows = append(rows, k)
			cols = append(cols, i)
		}
	}
	return rows, cols
}

func mtimesDeps(n *Node, c int) (rows, cols []int) {
	x, y := n.children[0], n.children[1]
	ycol, yrow := y.sp.ColInd(), y.sp.Row()
	ri, rj := n.sp.Triplets()
	for k := range ri {
		i, j := ri[k], rj[k]
		for ky := ycol[j]; ky < ycol[j+1]; ky++ {
			kx := x.sp.Find(i, yrow[ky])
			if kx < 0 {
				continue
			}
			rows = append(rows, k)
			if c == 0 {
				cols = append(cols, kx)
			} else {
				cols = append(cols, ky)
			}
		}
	}
	return rows, cols
}

func transposeDeps(n *Node, c int) (rows, cols []int) {
	_, mapping := sparsity.TransposeMapping(n.children[0].sp)
	for k, src := range mapping {
		rows = append(rows, k)
		cols = append(cols, src)
	}
	return rows, cols
}

func sumDeps(n *Node, c int) (rows, cols []int) {
	if n.sp.IsEmpty() {
		return nil, nil
	}
	for i := 0; i < n.children[0].sp.NNZ(); i++ {
		rows = append(rows, 0)
		cols = append(cols, i)
	}
	return rows, cols
}

func concatDeps(n *Node, c int) (rows, cols []int) {
	for i, k := range ConcatIndices(n)[c] {
		rows = append(rows, k)
		cols = append(cols, i)
	}
	return rows, cols
}

func getNonzerosDeps(n *Node, c int) (rows, cols []int) {
	for k, i := range n.idx {
		if i >= 0 {
			rows = append(rows, k)
			cols = append(cols, i)
		}
	}
	return rows, cols
}

func assembleDeps(n *Node, c int) (rows, cols []int) {
	for k, refs := range n.terms {
		for _, ref := range refs {
			if ref.Arg == c {
				rows = append(rows, k)
				cols = append(cols, ref.NZ)
			}
		}
	}
	return rows, cols
}

// Differentiable returns true if derivatives can propagate through the node.
func (n *Node) Differentiable() bool {
	return len(n.children) == 0 || rules[n.op].forward != nil
}

func isZeroSeed(s *Node) bool {
	return s == nil || s.IsZero()
}

// Forward returns the directional derivative of the node given the
// directional derivatives of its children, projected on the pattern of
// the node. Nil seeds and nil results are zeros.
func (n *Node) Forward(seeds []*Node) (*Node, error) {
	if len(seeds) != len(n.children) {
		return nil, errs.Arityf("%s: got %d seeds for %d children", n.op, len(seeds), len(n.children))
	}
	active := make([]*Node, len(seeds))
	nonzero := false
	for i, s := range seeds {
		if !isZeroSeed(s) {
			active[i] = s
			nonzero = true
		}
	}
	if !nonzero {
		return nil, nil
	}
	fwd := rules[n.op].forward
	if fwd == nil {
		return nil, errors.Wrapf(errs.ErrNotDifferentiable, "forward derivative of %s", n.op)
	}
	d, err := fwd(n, active)
	if err != nil {
		return nil, err
	}
	if isZeroSeed(d) {
		return nil, nil
	}
	if d, err = Broadcast(d, n.Rows(), n.Cols()); err != nil {
		return nil, err
	}
	return Project(d, n.sp)
}

// Reverse returns the contributions of the adjoint of the node to the
// adjoints of its children, each projected on the pattern of its child.
// A nil adjoint or a nil contribution is zero. Constants receive no
// contribution.
func (n *Node) Reverse(adj *Node) ([]*Node, error) {
	contribs := make([]*Node, len(n.children))
	if isZeroSeed(adj) || len(n.children) == 0 {
		return contribs, nil
	}
	rev := rules[n.op].reverse
	if rev == nil {
		return nil, errors.Wrapf(errs.ErrNotDifferentiable, "reverse derivative of %s", n.op)
	}
	adj, err := Project(adj, n.sp)
	if err != nil {
		return nil, err
	}
	raw, err := rev(n, adj)
	if err != nil {
		return nil, err
	}
	for i, c := range raw {
		child := n.children[i]
		if isZeroSeed(c) || child.IsConst() {
			continue
		}
		if c.Rows() != child.Rows() || c.Cols() != child.Cols() {
			if !child.sp.IsScalar() {
				return nil, errs.Dimensionf("%s: adjoint %dx%d for a %dx%d argument", n.op, c.Rows(), c.Cols(), child.Rows(), child.Cols())
			}
			c = Sum(c)
		}
		if contribs[i], err = Project(c, child.sp); err != nil {
			return nil, err
		}
	}
	return contribs, nil
}

// Dependencies returns the pattern of the Jacobian of the nonzeros of
// the node with respect to the nonzeros of its c-th child.
func (n *Node) Dependencies(c int) (*sparsity.Pattern, error) {
	if err := errs.CheckIndex("child", c, len(n.children)); err != nil {
		return nil, err
	}
	rows, cols := rules[n.op].deps(n, c)
	return sparsity.Triplet(n.sp.NNZ(), n.children[c].sp.NNZ(), rows, cols)
}

func (n *Node) eval(args []*matrix.Matrix) (*matrix.Matrix, error) {
	return rules[n.op].eval(n, args)
}
