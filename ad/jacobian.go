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

package ad

import (
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

// Mode is the propagation mode used to assemble a Jacobian.
type Mode int

const (
	// ModeForward seeds every input direction.
	ModeForward Mode = iota
	// ModeReverse seeds every output direction.
	ModeReverse
)

func (m Mode) String() string {
	if m == ModeForward {
		return "forward"
	}
	return "reverse"
}

// DefaultWeight is the weight used when none is specified.
const DefaultWeight = 0.5

// ChooseMode returns the mode used to compute a Jacobian with the given
// pattern. The number of forward sweeps is the number of nonempty
// columns and the number of reverse sweeps the number of nonempty rows.
// Forward mode is chosen when weight*columns <= (1-weight)*rows: a weight
// of 0 always selects forward mode, a weight of 1 reverse mode unless
// there is nothing to compute.
func ChooseMode(sp *sparsity.Pattern, weight float64) Mode {
	nf := 0
	colind := sp.ColInd()
	for j := 0; j < sp.Cols(); j++ {
		if colind[j+1] > colind[j] {
			nf++
		}
	}
	rows := make(map[int]bool)
	for _, r := range sp.Row() {
		rows[r] = true
	}
	na := len(rows)
	if weight*float64(nf) <= (1-weight)*float64(na) {
		return ModeForward
	}
	return ModeReverse
}

// nzDependencies returns, for every node depending on in, the pattern of
// the Jacobian of its nonzeros with respect to the nonzeros of in.
func nzDependencies(out, in *graph.Node) (*sparsity.Pattern, error) {
	nin := in.Sparsity().NNZ()
	deps := map[*graph.Node]*sparsity.Pattern{in: sparsity.Diag(nin)}
	for _, n := range graph.Sort([]*graph.Node{out}) {
		if n == in || n.NumChildren() == 0 {
			continue
		}
		var acc *sparsity.Pattern
		for c, child := range n.Children() {
			dc, ok := deps[child]
			if !ok || dc.IsEmpty() {
				continue
			}
			local, err := n.Dependencies(c)
			if err != nil {
				return nil, err
			}
			prod, err := sparsity.MatMul(local, dc)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = prod
				continue
			}
			if acc, err = sparsity.Union(acc, prod); err != nil {
				return nil, err
			}
		}
		if acc != nil {
			deps[n] = acc
		}
	}
	if d, ok := deps[out]; ok {
		return d, nil
	}
	return sparsity.Empty(out.Sparsity().NNZ(), nin), nil
}

// JacSparsity returns the pattern of the Jacobian of out with respect to
// in without any numerical evaluation. The Jacobian has one row per
// element of out and one column per element of in, both in column-major
// order.
func JacSparsity(out, in *graph.Node) (*sparsity.Pattern, error) {
	if !in.IsSymbol() {
		return nil, errs.Graphf("cannot differentiate with respect to %s: not a symbol", in)
	}
	d, err := nzDependencies(out, in)
	if err != nil {
		return nil, err
	}
	outLin := out.Sparsity().LinearIndices()
	inLin := in.Sparsity().LinearIndices()
	nzr, nzc := d.Triplets()
	rows := make([]int, len(nzr))
	cols := make([]int, len(nzc))
	for k := range nzr {
		rows[k] = outLin[nzr[k]]
		cols[k] = inLin[nzc[k]]
	}
	return sparsity.Triplet(out.Sparsity().Numel(), in.Sparsity().Numel(), rows, cols)
}

func nzOfLinear(sp *sparsity.Pattern) map[int]int {
	lin := sp.LinearIndices()
	m := make(map[int]int, len(lin))
	for k, l := range lin {
		m[l] = k
	}
	return m
}

func unitSeed(sp *sparsity.Pattern, k int) (*graph.Node, error) {
	nz := make([]float64, sp.NNZ())
	nz[k] = 1
	m, err := matrix.New(sp, nz)
	if err != nil {
		return nil, err
	}
	return graph.Const(m), nil
}

// Jacobian returns the Jacobian of out with respect to the symbol in.
// The weight selects the propagation mode (see ChooseMode).
func Jacobian(out, in *graph.Node, weight float64) (*graph.Node, error) {
	sp, err := JacSparsity(out, in)
	if err != nil {
		return nil, err
	}
	return JacobianOn(out, in, sp, ChooseMode(sp, weight))
}

// JacobianOn returns the Jacobian of out with respect to the symbol in
// assembled on the pattern sp using the given mode.
// sp must contain the pattern returned by JacSparsity.
func JacobianOn(out, in *graph.Node, sp *sparsity.Pattern, mode Mode) (*graph.Node, error) {
	outSp, inSp := out.Sparsity(), in.Sparsity()
	if sp.Rows() != outSp.Numel() || sp.Cols() != inSp.Numel() {
		return nil, errs.Dimensionf("Jacobian pattern %s for a %dx%d output and a %dx%d input", sp, out.Rows(), out.Cols(), in.Rows(), in.Cols())
	}
	outNZ, inNZ := nzOfLinear(outSp), nzOfLinear(inSp)
	jr, jc := sp.Triplets()
	terms := make([][]matrix.Ref, sp.NNZ())
	var args []*graph.Node
	// Directional derivatives already computed, by input or output nonzero.
	sweeps := make(map[int]int)
	for k := range terms {
		oz, okOut := outNZ[jr[k]]
		iz, okIn := inNZ[jc[k]]
		if !okOut || !okIn {
			continue
		}
		dir, other := iz, oz
		if mode == ModeReverse {
			dir, other = oz, iz
		}
		arg, done := sweeps[dir]
		if !done {
			d, err := sweep(out, in, dir, mode)
			if err != nil {
				return nil, err
			}
			arg = -1
			if !d.IsZero() {
				arg = len(args)
				args = append(args, d)
			}
			sweeps[dir] = arg
		}
		if arg >= 0 {
			terms[k] = []matrix.Ref{{Arg: arg, NZ: other}}
		}
	}
	return graph.Assemble(sp, args, terms)
}

// sweep returns the derivative of out along the nonzero dir of in in
// forward mode, or the adjoint of in given the nonzero dir of out in
// reverse mode.
func sweep(out, in *graph.Node, dir int, mode Mode) (*graph.Node, error) {
	if mode == ModeForward {
		seed, err := unitSeed(in.Sparsity(), dir)
		if err != nil {
			return nil, err
		}
		d, err := Forward([]*graph.Node{out}, []*graph.Node{in}, []*graph.Node{seed})
		if err != nil {
			return nil, err
		}
		return d[0], nil
	}
	seed, err := unitSeed(out.Sparsity(), dir)
	if err != nil {
		return nil, err
	}
	a, err := Reverse([]*graph.Node{out}, []*graph.Node{seed}, []*graph.Node{in})
	if err != nil {
		return nil, err
	}
	return a[0], nil
}

// Gradient returns the gradient of the 1x1 expression out with respect
// to the symbol in. The gradient has the pattern of in and the reverse
// sweep is seeded with the constant 1.
func Gradient(out, in *graph.Node) (*graph.Node, error) {
	if !out.Sparsity().IsScalar() {
		return nil, errs.Dimensionf("gradient of a %dx%d expression: expression must be 1x1", out.Rows(), out.Cols())
	}
	if !in.IsSymbol() {
		return nil, errs.Graphf("cannot differentiate with respect to %s: not a symbol", in)
	}
	g, err := Reverse([]*graph.Node{out}, []*graph.Node{graph.Scalar(1)}, []*graph.Node{in})
	if err != nil {
		return nil, err
	}
	return g[0], nil
}

// Hessian returns the Hessian and the gradient of the 1x1 expression out
// with respect to the symbol in. The pattern of the Hessian is symmetric.
func Hessian(out, in *graph.Node, weight float64) (hess, grad *graph.Node, err error) {
	if grad, err = Gradient(out, in); err != nil {
		return nil, nil, err
	}
	g, err := graph.Vec(grad)
	if err != nil {
		return nil, nil, err
	}
	sp, err := JacSparsity(g, in)
	if err != nil {
		return nil, nil, err
	}
	if sp, err = sparsity.Symmetrize(sp); err != nil {
		return nil, nil, err
	}
	if hess, err = JacobianOn(g, in, sp, ChooseMode(sp, weight)); err != nil {
		return nil, nil, err
	}
	return hess, grad, nil
}
