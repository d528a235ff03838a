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

package matrix

import (
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/sparsity"
)

type (
	// Unary is a scalar function applied elementwise.
	Unary func(float64) float64

	// Binary is a scalar function of two arguments applied elementwise.
	Binary func(float64, float64) float64

	// Ref references a nonzero of one of the arguments of Assemble.
	Ref struct {
		Arg int
		NZ  int
	}
)

// Project returns the values of x on the pattern sp.
// Nonzeros of x outside of sp are dropped and positions of sp absent from x are set to 0.
func Project(x *Matrix, sp *sparsity.Pattern) (*Matrix, error) {
	if x.sp.Equal(sp) {
		return x, nil
	}
	idx, err := x.sp.Lookup(sp)
	if err != nil {
		return nil, err
	}
	nz := make([]float64, len(idx))
	for k, src := range idx {
		if src >= 0 {
			nz[k] = x.nz[src]
		}
	}
	return fromNZ(sp, nz), nil
}

// Broadcast returns x with dimensions rows x cols.
// A 1x1 matrix is repeated over all elements; other matrices must already have the right dimensions.
func Broadcast(x *Matrix, rows, cols int) (*Matrix, error) {
	if x.Rows() == rows && x.Cols() == cols {
		return x, nil
	}
	if !x.sp.IsScalar() {
		return nil, errs.Dimensionf("cannot broadcast %s to %dx%d", x.sp, rows, cols)
	}
	if x.sp.IsEmpty() {
		return Zeros(sparsity.Empty(rows, cols)), nil
	}
	return Fill(sparsity.Dense(rows, cols), x.nz[0]), nil
}

// Apply applies f to the elements of x at the nonzeros of out.
// f(0) is used for positions of out that are structural zeros of x.
func Apply(f Unary, x *Matrix, out *sparsity.Pattern) (*Matrix, error) {
	xv, err := Project(x, out)
	if err != nil {
		return nil, err
	}
	nz := make([]float64, len(xv.nz))
	for k, v := range xv.nz {
		nz[k] = f(v)
	}
	return fromNZ(out, nz), nil
}

// Apply2 applies f to the elements of x and y at the nonzeros of out.
// 1x1 arguments are broadcast.
func Apply2(f Binary, x, y *Matrix, out *sparsity.Pattern) (*Matrix, error) {
	xb, err := Broadcast(x, out.Rows(), out.Cols())
	if err != nil {
		return nil, err
	}
	yb, err := Broadcast(y, out.Rows(), out.Cols())
	if err != nil {
		return nil, err
	}
	xv, err := Project(xb, out)
	if err != nil {
		return nil, err
	}
	yv, err := Project(yb, out)
	if err != nil {
		return nil, err
	}
	nz := make([]float64, out.NNZ())
	for k := range nz {
		nz[k] = f(xv.nz[k], yv.nz[k])
	}
	return fromNZ(out, nz), nil
}

// MTimes returns the matrix product x*y on the pattern out.
func MTimes(x, y *Matrix, out *sparsity.Pattern) (*Matrix, error) {
	if x.Cols() != y.Rows() || out.Rows() != x.Rows() || out.Cols() != y.Cols() {
		return nil, errs.Dimensionf("matrix product of %s and %s into %s", x.sp, y.sp, out)
	}
	xc, xr := x.sp.ColInd(), x.sp.Row()
	yc, yr := y.sp.ColInd(), y.sp.Row()
	oc, or := out.ColInd(), out.Row()
	work := make([]float64, x.Rows())
	nz := make([]float64, out.NNZ())
	for j := 0; j < y.Cols(); j++ {
		for ky := yc[j]; ky < yc[j+1]; ky++ {
			k, yv := yr[ky], y.nz[ky]
			for kx := xc[k]; kx < xc[k+1]; kx++ {
				work[xr[kx]] += x.nz[kx] * yv
			}
		}
		for ko := oc[j]; ko < oc[j+1]; ko++ {
			nz[ko] = work[or[ko]]
		}
		for ky := yc[j]; ky < yc[j+1]; ky++ {
			k := yr[ky]
			for kx := xc[k]; kx < xc[k+1]; kx++ {
				work[xr[kx]] = 0
			}
		}
	}
	return fromNZ(out, nz), nil
}

// Transpose returns the transpose of x.
func Transpose(x *Matrix) *Matrix {
	t, mapping := sparsity.TransposeMapping(x.sp)
	nz := make([]float64, len(mapping))
	for k, src := range mapping {
		nz[k] = x.nz[src]
	}
	return fromNZ(t, nz)
}

// Sum returns the sum of all the elements of x as a 1x1 matrix.
func Sum(x *Matrix) *Matrix {
	var s float64
	for _, v := range x.nz {
		s += v
	}
	return Scalar(s)
}

// Horzcat concatenates matrices horizontally.
func Horzcat(ms ...*Matrix) (*Matrix, error) {
	sps := make([]*sparsity.Pattern, len(ms))
	var nz []float64
	for i, m := range ms {
		sps[i] = m.sp
		nz = append(nz, m.nz...)
	}
	sp, err := sparsity.Horzcat(sps...)
	if err != nil {
		return nil, err
	}
	if nz == nil {
		nz = []float64{}
	}
	return fromNZ(sp, nz), nil
}

// Vertcat concatenates matrices vertically.
func Vertcat(ms ...*Matrix) (*Matrix, error) {
	sps := make([]*sparsity.Pattern, len(ms))
	for i, m := range ms {
		sps[i] = m.sp
	}
	sp, err := sparsity.Vertcat(sps...)
	if err != nil {
		return nil, err
	}
	nz := make([]float64, 0, sp.NNZ())
	for j := 0; j < sp.Cols(); j++ {
		for _, m := range ms {
			cind := m.sp.ColInd()
			nz = append(nz, m.nz[cind[j]:cind[j+1]]...)
		}
	}
	return fromNZ(sp, nz), nil
}

// Assemble returns a matrix with pattern sp where the nonzero k is the sum
// of the argument nonzeros referenced by terms[k]. An empty list of terms is 0.
func Assemble(sp *sparsity.Pattern, args []*Matrix, terms [][]Ref) (*Matrix, error) {
	if len(terms) != sp.NNZ() {
		return nil, errs.Dimensionf("%d terms for a pattern with %d nonzeros", len(terms), sp.NNZ())
	}
	nz := make([]float64, len(terms))
	for k, refs := range terms {
		for _, ref := range refs {
			if err := errs.CheckIndex("argument", ref.Arg, len(args)); err != nil {
				return nil, err
			}
			arg := args[ref.Arg].nz
			if err := errs.CheckIndex("nonzero", ref.NZ, len(arg)); err != nil {
				return nil, err
			}
			nz[k] += arg[ref.NZ]
		}
	}
	return fromNZ(sp, nz), nil
}

// ColumnBlock returns the columns [c0, c1) of m.
func (m *Matrix) ColumnBlock(c0, c1 int) (*Matrix, error) {
	sp, first, last, err := m.sp.ColumnRange(c0, c1)
	if err != nil {
		return nil, err
	}
	return fromNZ(sp, m.nz[first:last]), nil
}

// Gather returns a matrix with pattern sp where the nonzero k is the
// nonzero idx[k] of x, or 0 if idx[k] is -1.
func Gather(x *Matrix, sp *sparsity.Pattern, idx []int) (*Matrix, error) {
	if len(idx) != sp.NNZ() {
		return nil, errs.Dimensionf("%d indices for a pattern with %d nonzeros", len(idx), sp.NNZ())
	}
	nz := make([]float64, len(idx))
	for k, src := range idx {
		if src < 0 {
			continue
		}
		if err := errs.CheckIndex("nonzero", src, len(x.nz)); err != nil {
			return nil, err
		}
		nz[k] = x.nz[src]
	}
	return fromNZ(sp, nz), nil
}
