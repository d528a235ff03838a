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
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

// Project returns x restricted to the pattern sp: nonzeros of x outside
// of sp are dropped and positions of sp absent from x are zeros.
func Project(x *Node, sp *sparsity.Pattern) (*Node, error) {
	if x.sp.Equal(sp) {
		return x, nil
	}
	idx, err := x.sp.Lookup(sp)
	if err != nil {
		return nil, err
	}
	return GetNonzeros(x, sp, idx)
}

// Fill returns an expression with pattern sp where every nonzero is the
// value of the 1x1 expression a.
func Fill(a *Node, sp *sparsity.Pattern) (*Node, error) {
	if !a.sp.IsScalar() {
		return nil, errs.Dimensionf("cannot fill a pattern with a %dx%d expression", a.Rows(), a.Cols())
	}
	if a.sp.IsEmpty() {
		return Zeros(sp), nil
	}
	terms := make([][]matrix.Ref, sp.NNZ())
	for k := range terms {
		terms[k] = []matrix.Ref{{Arg: 0, NZ: 0}}
	}
	return Assemble(sp, []*Node{a}, terms)
}

// Broadcast returns x with dimensions rows x cols.
func Broadcast(x *Node, rows, cols int) (*Node, error) {
	if x.Rows() == rows && x.Cols() == cols {
		return x, nil
	}
	return Fill(x, broadcastPattern(x.sp, rows, cols))
}

// Slice returns the submatrix x[rows, cols].
func Slice(x *Node, rows, cols []int) (*Node, error) {
	sub, mapping, err := x.sp.Sub(rows, cols)
	if err != nil {
		return nil, err
	}
	return GetNonzeros(x, sub, mapping)
}

// Element returns x[i, j] as a 1x1 expression.
func Element(x *Node, i, j int) (*Node, error) {
	return Slice(x, []int{i}, []int{j})
}

// ColumnBlock returns the columns [c0, c1) of x.
func ColumnBlock(x *Node, c0, c1 int) (*Node, error) {
	sub, first, last, err := x.sp.ColumnRange(c0, c1)
	if err != nil {
		return nil, err
	}
	idx := make([]int, last-first)
	for k := range idx {
		idx[k] = first + k
	}
	return GetNonzeros(x, sub, idx)
}

// Vec returns the elements of x stacked column after column into a
// column vector.
func Vec(x *Node) (*Node, error) {
	if x.Cols() == 1 {
		return x, nil
	}
	lin := x.sp.LinearIndices()
	sp, err := sparsity.Triplet(x.sp.Numel(), 1, lin, make([]int, len(lin)))
	if err != nil {
		return nil, err
	}
	terms := make([][]matrix.Ref, len(lin))
	for k := range terms {
		terms[k] = []matrix.Ref{{Arg: 0, NZ: k}}
	}
	return Assemble(sp, []*Node{x}, terms)
}

// Dot returns the sum of the elementwise product of x and y.
func Dot(x, y *Node) (*Node, error) {
	xy, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return Sum(xy), nil
}
