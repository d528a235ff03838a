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

// Package sparsity describes the structure of the nonzeros of 2-D numeric objects.
//
// A Pattern stores its nonzero positions in compressed column format: the
// row indices of column j are Row()[ColInd()[j]:ColInd()[j+1]], sorted and
// unique. Patterns are immutable once created. Dense and diagonal patterns
// are created in constant time: their index arrays are only built when a
// caller asks for them.
package sparsity

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gx-org/symgraph/base/errs"
)

type kind int

const (
	general kind = iota
	dense
	diagonal
)

// Pattern is the structure of a rows x cols matrix.
type Pattern struct {
	rows, cols int
	kind       kind

	once   sync.Once
	colind []int
	row    []int

	keyOnce sync.Once
	key     string
}

func checkDims(rows, cols int) {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("sparsity: negative dimensions %dx%d", rows, cols))
	}
}

// Dense returns the pattern of a matrix without any structural zero.
func Dense(rows, cols int) *Pattern {
	checkDims(rows, cols)
	if rows*cols == 0 {
		return Empty(rows, cols)
	}
	return &Pattern{rows: rows, cols: cols, kind: dense}
}

// Scalar returns the pattern of a dense 1x1 matrix.
func Scalar() *Pattern {
	return Dense(1, 1)
}

// Empty returns the pattern of a rows x cols matrix without any nonzero.
func Empty(rows, cols int) *Pattern {
	checkDims(rows, cols)
	return &Pattern{
		rows:   rows,
		cols:   cols,
		colind: make([]int, cols+1),
		row:    []int{},
	}
}

// Diag returns the pattern of a n x n diagonal matrix.
func Diag(n int) *Pattern {
	checkDims(n, n)
	if n <= 1 {
		return Dense(n, n)
	}
	return &Pattern{rows: n, cols: n, kind: diagonal}
}

// Unit returns the pattern with a single nonzero at (i, j).
func Unit(rows, cols, i, j int) (*Pattern, error) {
	return Triplet(rows, cols, []int{i}, []int{j})
}

func fromPredicate(n int, keep func(i, j int) bool) *Pattern {
	colind := make([]int, n+1)
	var row []int
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if keep(i, j) {
				row = append(row, i)
			}
		}
		colind[j+1] = len(row)
	}
	return canonical(n, n, colind, row)
}

// Band returns the pattern of the k-th diagonal of a n x n matrix,
// that is the positions (i, i+k). k > 0 selects a super-diagonal.
func Band(n, k int) *Pattern {
	checkDims(n, n)
	return fromPredicate(n, func(i, j int) bool { return j-i == k })
}

// Banded returns the pattern of a n x n matrix with nonzeros where |i-j| <= p.
func Banded(n, p int) *Pattern {
	checkDims(n, n)
	return fromPredicate(n, func(i, j int) bool { return i-j <= p && j-i <= p })
}

// Upper returns the pattern of a n x n upper triangular matrix.
func Upper(n int) *Pattern {
	checkDims(n, n)
	return fromPredicate(n, func(i, j int) bool { return i <= j })
}

// Lower returns the pattern of a n x n lower triangular matrix.
func Lower(n int) *Pattern {
	checkDims(n, n)
	return fromPredicate(n, func(i, j int) bool { return i >= j })
}

// New returns a pattern given its compressed column representation.
// The slices are copied.
func New(rows, cols int, colind, row []int) (*Pattern, error) {
	if rows < 0 || cols < 0 {
		return nil, errs.Dimensionf("negative dimensions %dx%d", rows, cols)
	}
	if len(colind) != cols+1 {
		return nil, errs.Dimensionf("colind has %d elements but %d columns require %d", len(colind), cols, cols+1)
	}
	if colind[0] != 0 || colind[cols] != len(row) {
		return nil, errs.Dimensionf("colind must start at 0 and end at %d", len(row))
	}
	for j := 0; j < cols; j++ {
		if colind[j+1] < colind[j] {
			return nil, errs.Dimensionf("colind is decreasing at column %d", j)
		}
		for k := colind[j]; k < colind[j+1]; k++ {
			r := row[k]
			if r < 0 || r >= rows {
				return nil, errs.Indexf("row index %d out of range [0, %d)", r, rows)
			}
			if k > colind[j] && row[k-1] >= r {
				return nil, errs.Dimensionf("row indices of column %d are not sorted and unique", j)
			}
		}
	}
	return canonical(rows, cols, append([]int{}, colind...), append([]int{}, row...)), nil
}

// canonical builds a pattern from valid arrays, detecting dense and diagonal structures.
func canonical(rows, cols int, colind, row []int) *Pattern {
	nnz := len(row)
	if nnz > 0 && nnz == rows*cols {
		return Dense(rows, cols)
	}
	if rows == cols && nnz == rows && rows > 0 {
		isDiag := true
		for j := 0; j < cols && isDiag; j++ {
			isDiag = colind[j+1]-colind[j] == 1 && row[colind[j]] == j
		}
		if isDiag {
			return Diag(rows)
		}
	}
	if row == nil {
		row = []int{}
	}
	return &Pattern{rows: rows, cols: cols, colind: colind, row: row}
}

type position struct{ r, c int }

// Triplet returns a pattern given the row and column indices of its nonzeros.
// Duplicated entries are merged and the order of the entries does not matter.
func Triplet(rows, cols int, r, c []int) (*Pattern, error) {
	if rows < 0 || cols < 0 {
		return nil, errs.Dimensionf("negative dimensions %dx%d", rows, cols)
	}
	if len(r) != len(c) {
		return nil, errs.Dimensionf("%d row indices but %d column indices", len(r), len(c))
	}
	pos := make([]position, len(r))
	for k := range r {
		if r[k] < 0 || r[k] >= rows || c[k] < 0 || c[k] >= cols {
			return nil, errs.Indexf("entry (%d,%d) out of range for a %dx%d pattern", r[k], c[k], rows, cols)
		}
		pos[k] = position{r: r[k], c: c[k]}
	}
	sort.Slice(pos, func(a, b int) bool {
		if pos[a].c != pos[b].c {
			return pos[a].c < pos[b].c
		}
		return pos[a].r < pos[b].r
	})
	colind := make([]int, cols+1)
	row := make([]int, 0, len(pos))
	for k, p := range pos {
		if k > 0 && pos[k-1] == p {
			continue
		}
		row = append(row, p.r)
		colind[p.c+1]++
	}
	for j := 0; j < cols; j++ {
		colind[j+1] += colind[j]
	}
	return canonical(rows, cols, colind, row), nil
}

func (p *Pattern) materialize() {
	p.once.Do(func() {
		switch p.kind {
		case dense:
			p.colind = make([]int, p.cols+1)
			p.row = make([]int, 0, p.rows*p.cols)
			for j := 0; j < p.cols; j++ {
				for i := 0; i < p.rows; i++ {
					p.row = append(p.row, i)
				}
				p.colind[j+1] = len(p.row)
			}
		case diagonal:
			p.colind = make([]int, p.cols+1)
			p.row = make([]int, p.cols)
			for j := 0; j < p.cols; j++ {
				p.row[j] = j
				p.colind[j+1] = j + 1
			}
		}
	})
}

// Rows returns the number of rows.
func (p *Pattern) Rows() int { return p.rows }

// Cols returns the number of columns.
func (p *Pattern) Cols() int { return p.cols }

// Numel returns the number of elements, zero or not.
func (p *Pattern) Numel() int { return p.rows * p.cols }

// NNZ returns the number of structural nonzeros.
func (p *Pattern) NNZ() int {
	switch p.kind {
	case dense:
		return p.rows * p.cols
	case diagonal:
		return p.rows
	}
	return len(p.row)
}

// ColInd returns the column offsets. The slice must not be modified.
func (p *Pattern) ColInd() []int {
	p.materialize()
	return p.colind
}

// Row returns the row index of every nonzero. The slice must not be modified.
func (p *Pattern) Row() []int {
	p.materialize()
	return p.row
}

// Column returns the rows of the nonzeros in column j. The slice must not be modified.
func (p *Pattern) Column(j int) []int {
	p.materialize()
	return p.row[p.colind[j]:p.colind[j+1]]
}

// IsDense returns true if the pattern has no structural zero.
func (p *Pattern) IsDense() bool { return p.kind == dense || p.NNZ() == p.Numel() }

// IsDiag returns true if the pattern is the full diagonal of a square matrix.
func (p *Pattern) IsDiag() bool { return p.kind == diagonal }

// IsScalar returns true if the pattern is 1x1.
func (p *Pattern) IsScalar() bool { return p.rows == 1 && p.cols == 1 }

// IsEmpty returns true if the pattern has no nonzero.
func (p *Pattern) IsEmpty() bool { return p.NNZ() == 0 }

// IsColumn returns true if the pattern has a single column.
func (p *Pattern) IsColumn() bool { return p.cols == 1 }

// SameShape returns true if both patterns have the same dimensions.
func (p *Pattern) SameShape(q *Pattern) bool {
	return p.rows == q.rows && p.cols == q.cols
}

// Find returns the nonzero index of position (i, j) or -1 if (i, j) is a structural zero.
func (p *Pattern) Find(i, j int) int {
	if i < 0 || i >= p.rows || j < 0 || j >= p.cols {
		return -1
	}
	switch p.kind {
	case dense:
		return i + j*p.rows
	case diagonal:
		if i == j {
			return i
		}
		return -1
	}
	col := p.row[p.colind[j]:p.colind[j+1]]
	k := sort.SearchInts(col, i)
	if k < len(col) && col[k] == i {
		return p.colind[j] + k
	}
	return -1
}

// Triplets returns the row and column of every nonzero.
func (p *Pattern) Triplets() (rows, cols []int) {
	p.materialize()
	rows = append([]int{}, p.row...)
	cols = make([]int, len(p.row))
	for j := 0; j < p.cols; j++ {
		for k := p.colind[j]; k < p.colind[j+1]; k++ {
			cols[k] = j
		}
	}
	return
}

// LinearIndices returns the column-major linear index of every nonzero.
func (p *Pattern) LinearIndices() []int {
	p.materialize()
	lin := make([]int, len(p.row))
	for j := 0; j < p.cols; j++ {
		for k := p.colind[j]; k < p.colind[j+1]; k++ {
			lin[k] = p.row[k] + j*p.rows
		}
	}
	return lin
}

// Equal returns true if both patterns have the same dimensions and nonzeros.
func (p *Pattern) Equal(q *Pattern) bool {
	if p == q {
		return true
	}
	if p.rows != q.rows || p.cols != q.cols || p.NNZ() != q.NNZ() {
		return false
	}
	if p.kind != general && p.kind == q.kind {
		return true
	}
	pr, qr := p.Row(), q.Row()
	pc, qc := p.ColInd(), q.ColInd()
	for j := range pc {
		if pc[j] != qc[j] {
			return false
		}
	}
	for k := range pr {
		if pr[k] != qr[k] {
			return false
		}
	}
	return true
}

// Key returns a string uniquely identifying the structure of the pattern.
func (p *Pattern) Key() string {
	p.keyOnce.Do(func() {
		switch p.kind {
		case dense:
			p.key = fmt.Sprintf("dense:%d:%d", p.rows, p.cols)
			return
		case diagonal:
			p.key = fmt.Sprintf("diag:%d", p.rows)
			return
		}
		buf := make([]byte, 0, 8*(len(p.colind)+len(p.row))+16)
		buf = binary.AppendUvarint(buf, uint64(p.rows))
		buf = binary.AppendUvarint(buf, uint64(p.cols))
		for _, c := range p.colind {
			buf = binary.AppendUvarint(buf, uint64(c))
		}
		for _, r := range p.row {
			buf = binary.AppendUvarint(buf, uint64(r))
		}
		p.key = string(buf)
	})
	return p.key
}

// String returns a short description of the pattern.
func (p *Pattern) String() string {
	switch {
	case p.kind == dense:
		return fmt.Sprintf("%dx%d", p.rows, p.cols)
	case p.kind == diagonal:
		return fmt.Sprintf("%dx%d,diag", p.rows, p.cols)
	}
	return fmt.Sprintf("%dx%d,%dnz", p.rows, p.cols, p.NNZ())
}

// Spy returns a dense text rendering of the pattern,
// one line per row with '*' for nonzeros and '.' for structural zeros.
func (p *Pattern) Spy() string {
	var b strings.Builder
	for i := 0; i < p.rows; i++ {
		for j := 0; j < p.cols; j++ {
			if p.Find(i, j) >= 0 {
				b.WriteByte('*')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
