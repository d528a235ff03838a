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

// Package matrix implements numeric sparse matrices.
//
// A Matrix stores one float64 for every structural nonzero of its
// sparsity pattern, in column-major order. Matrices are the values
// flowing through the evaluation of expression graphs.
package matrix

import (
	"math"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/sparsity"
)

// Matrix is a sparse matrix of float64.
type Matrix struct {
	sp *sparsity.Pattern
	nz []float64
}

// New returns a matrix given a pattern and the values of its nonzeros.
// The values are copied.
func New(sp *sparsity.Pattern, nz []float64) (*Matrix, error) {
	if len(nz) != sp.NNZ() {
		return nil, errs.Dimensionf("pattern %s has %d nonzeros but %d values were given", sp, sp.NNZ(), len(nz))
	}
	return &Matrix{sp: sp, nz: append([]float64{}, nz...)}, nil
}

func fromNZ(sp *sparsity.Pattern, nz []float64) *Matrix {
	return &Matrix{sp: sp, nz: nz}
}

// Zeros returns a matrix with the given pattern and all its nonzeros set to 0.
func Zeros(sp *sparsity.Pattern) *Matrix {
	return fromNZ(sp, make([]float64, sp.NNZ()))
}

// Fill returns a matrix with the given pattern and all its nonzeros set to v.
func Fill(sp *sparsity.Pattern, v float64) *Matrix {
	nz := make([]float64, sp.NNZ())
	for i := range nz {
		nz[i] = v
	}
	return fromNZ(sp, nz)
}

// Ones returns a matrix with the given pattern and all its nonzeros set to 1.
func Ones(sp *sparsity.Pattern) *Matrix {
	return Fill(sp, 1)
}

// Scalar returns a dense 1x1 matrix.
func Scalar(v float64) *Matrix {
	return fromNZ(sparsity.Scalar(), []float64{v})
}

// Column returns a dense column vector.
func Column(vals ...float64) *Matrix {
	return fromNZ(sparsity.Dense(len(vals), 1), append([]float64{}, vals...))
}

// FromDense returns a dense matrix given its values in column-major order.
func FromDense(rows, cols int, colMajor []float64) (*Matrix, error) {
	return New(sparsity.Dense(rows, cols), colMajor)
}

// FromRows returns a dense matrix given its rows.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return Zeros(sparsity.Dense(0, 0)), nil
	}
	cols := len(rows[0])
	nz := make([]float64, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errs.Dimensionf("row %d has %d elements but row 0 has %d", i, len(row), cols)
		}
		for j, v := range row {
			nz[i+j*len(rows)] = v
		}
	}
	return fromNZ(sparsity.Dense(len(rows), cols), nz), nil
}

// Sparsity returns the pattern of the matrix.
func (m *Matrix) Sparsity() *sparsity.Pattern { return m.sp }

// NZ returns the values of the nonzeros. The slice must not be modified.
func (m *Matrix) NZ() []float64 { return m.nz }

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.sp.Rows() }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.sp.Cols() }

// Shape returns the shape of the matrix as a dense float64 array.
func (m *Matrix) Shape() *shape.Shape {
	return &shape.Shape{
		DType:       dtype.Float64,
		AxisLengths: []int{m.Rows(), m.Cols()},
	}
}

// At returns the value at (i, j), 0 for structural zeros.
func (m *Matrix) At(i, j int) float64 {
	k := m.sp.Find(i, j)
	if k < 0 {
		return 0
	}
	return m.nz[k]
}

// Value returns the value of a 1x1 matrix.
func (m *Matrix) Value() (float64, error) {
	if !m.sp.IsScalar() {
		return 0, errs.Dimensionf("%s matrix is not a scalar", m.sp)
	}
	return m.At(0, 0), nil
}

// ColMajor returns all the elements of the matrix, zeros included, in column-major order.
func (m *Matrix) ColMajor() []float64 {
	out := make([]float64, m.sp.Numel())
	for k, lin := range m.sp.LinearIndices() {
		out[lin] = m.nz[k]
	}
	return out
}

// Dense returns the rows of the matrix, zeros included.
func (m *Matrix) Dense() [][]float64 {
	rows := make([][]float64, m.Rows())
	for i := range rows {
		rows[i] = make([]float64, m.Cols())
	}
	r, c := m.sp.Triplets()
	for k := range r {
		rows[r[k]][c[k]] = m.nz[k]
	}
	return rows
}

// IsFinite returns true if no nonzero is infinite or NaN.
func (m *Matrix) IsFinite() bool {
	for _, v := range m.nz {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Equal returns true if both matrices have the same pattern and the same values.
func Equal(a, b *Matrix) bool {
	if !a.sp.Equal(b.sp) {
		return false
	}
	for k, v := range a.nz {
		if b.nz[k] != v {
			return false
		}
	}
	return true
}

// AllClose returns true if both matrices have the same dimensions and all
// their elements, structural zeros included, differ by at most tol.
func AllClose(a, b *Matrix, tol float64) bool {
	if !a.sp.SameShape(b.sp) {
		return false
	}
	av, bv := a.ColMajor(), b.ColMajor()
	for i := range av {
		if math.Abs(av[i]-bv[i]) > tol {
			return false
		}
	}
	return true
}
