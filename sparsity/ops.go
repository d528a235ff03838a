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

package sparsity

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/gx-org/symgraph/base/errs"
)

func checkSameShape(op string, a, b *Pattern) error {
	if !a.SameShape(b) {
		return errs.Dimensionf("%s: %dx%d and %dx%d", op, a.rows, a.cols, b.rows, b.cols)
	}
	return nil
}

// mergeColumns walks the columns of a and b in lockstep and keeps a position
// if keep(inA, inB) is true.
func mergeColumns(a, b *Pattern, keep func(inA, inB bool) bool) *Pattern {
	ac, ar := a.ColInd(), a.Row()
	bc, br := b.ColInd(), b.Row()
	colind := make([]int, a.cols+1)
	row := make([]int, 0, max(len(ar), len(br)))
	for j := 0; j < a.cols; j++ {
		ka, kb := ac[j], bc[j]
		for ka < ac[j+1] || kb < bc[j+1] {
			switch {
			case kb == bc[j+1] || (ka < ac[j+1] && ar[ka] < br[kb]):
				if keep(true, false) {
					row = append(row, ar[ka])
				}
				ka++
			case ka == ac[j+1] || br[kb] < ar[ka]:
				if keep(false, true) {
					row = append(row, br[kb])
				}
				kb++
			default:
				if keep(true, true) {
					row = append(row, ar[ka])
				}
				ka++
				kb++
			}
		}
		colind[j+1] = len(row)
	}
	return canonical(a.rows, a.cols, colind, row)
}

// Union returns the pattern with the nonzeros of both a and b.
func Union(a, b *Pattern) (*Pattern, error) {
	if err := checkSameShape("union", a, b); err != nil {
		return nil, err
	}
	switch {
	case a == b || a.kind == dense || b.IsEmpty():
		return a, nil
	case b.kind == dense || a.IsEmpty():
		return b, nil
	case a.kind == diagonal && b.kind == diagonal:
		return a, nil
	}
	return mergeColumns(a, b, func(inA, inB bool) bool { return true }), nil
}

// Intersect returns the pattern with the nonzeros present in both a and b.
func Intersect(a, b *Pattern) (*Pattern, error) {
	if err := checkSameShape("intersection", a, b); err != nil {
		return nil, err
	}
	switch {
	case a == b || b.kind == dense || a.IsEmpty():
		return a, nil
	case a.kind == dense || b.IsEmpty():
		return b, nil
	case a.kind == diagonal && b.kind == diagonal:
		return a, nil
	}
	return mergeColumns(a, b, func(inA, inB bool) bool { return inA && inB }), nil
}

// IsSubset returns true if every nonzero of a is also a nonzero of b.
func IsSubset(a, b *Pattern) bool {
	if !a.SameShape(b) {
		return false
	}
	if b.kind == dense || a.IsEmpty() {
		return true
	}
	u, _ := Union(a, b)
	return u.NNZ() == b.NNZ()
}

// TransposeMapping returns the transpose of p and, for every nonzero of the
// transpose, the index of the corresponding nonzero in p.
func TransposeMapping(p *Pattern) (*Pattern, []int) {
	pc, pr := p.ColInd(), p.Row()
	counts := make([]int, p.rows+1)
	for _, r := range pr {
		counts[r+1]++
	}
	for i := 0; i < p.rows; i++ {
		counts[i+1] += counts[i]
	}
	colind := append([]int{}, counts...)
	row := make([]int, len(pr))
	mapping := make([]int, len(pr))
	for j := 0; j < p.cols; j++ {
		for k := pc[j]; k < pc[j+1]; k++ {
			dst := counts[pr[k]]
			counts[pr[k]]++
			row[dst] = j
			mapping[dst] = k
		}
	}
	return canonical(p.cols, p.rows, colind, row), mapping
}

// Transpose returns the pattern of the transposed matrix.
func Transpose(p *Pattern) *Pattern {
	switch p.kind {
	case dense:
		return Dense(p.cols, p.rows)
	case diagonal:
		return p
	}
	t, _ := TransposeMapping(p)
	return t
}

// IsSymmetric returns true if the pattern is square and equal to its transpose.
func (p *Pattern) IsSymmetric() bool {
	if p.rows != p.cols {
		return false
	}
	if p.kind != general {
		return true
	}
	return p.Equal(Transpose(p))
}

// Symmetrize returns the union of a square pattern and its transpose.
func Symmetrize(p *Pattern) (*Pattern, error) {
	if p.rows != p.cols {
		return nil, errs.Dimensionf("cannot symmetrize a non-square %dx%d pattern", p.rows, p.cols)
	}
	return Union(p, Transpose(p))
}

// Horzcat concatenates patterns with the same number of rows.
func Horzcat(ps ...*Pattern) (*Pattern, error) {
	if len(ps) == 0 {
		return Empty(0, 0), nil
	}
	rows := ps[0].rows
	cols, allDense := 0, true
	for i, p := range ps {
		if p.rows != rows {
			return nil, errs.Dimensionf("horzcat: pattern %d has %d rows but pattern 0 has %d", i, p.rows, rows)
		}
		cols += p.cols
		allDense = allDense && p.IsDense()
	}
	if allDense {
		return Dense(rows, cols), nil
	}
	colind := make([]int, 1, cols+1)
	var row []int
	for _, p := range ps {
		pc := p.ColInd()
		offset := len(row)
		row = append(row, p.Row()...)
		for j := 1; j < len(pc); j++ {
			colind = append(colind, pc[j]+offset)
		}
	}
	return canonical(rows, cols, colind, row), nil
}

// Vertcat concatenates patterns with the same number of columns.
func Vertcat(ps ...*Pattern) (*Pattern, error) {
	if len(ps) == 0 {
		return Empty(0, 0), nil
	}
	cols := ps[0].cols
	rows, allDense := 0, true
	for i, p := range ps {
		if p.cols != cols {
			return nil, errs.Dimensionf("vertcat: pattern %d has %d columns but pattern 0 has %d", i, p.cols, cols)
		}
		rows += p.rows
		allDense = allDense && p.IsDense()
	}
	if allDense {
		return Dense(rows, cols), nil
	}
	colind := make([]int, cols+1)
	var row []int
	for j := 0; j < cols; j++ {
		offset := 0
		for _, p := range ps {
			for _, r := range p.Column(j) {
				row = append(row, r+offset)
			}
			offset += p.rows
		}
		colind[j+1] = len(row)
	}
	return canonical(rows, cols, colind, row), nil
}

// MatMul returns the pattern of the product a*b.
// Position (i, j) is a nonzero if and only if there is a k such that
// both a(i, k) and b(k, j) are nonzeros.
func MatMul(a, b *Pattern) (*Pattern, error) {
	if a.cols != b.rows {
		return nil, errs.Dimensionf("matrix product of %dx%d and %dx%d", a.rows, a.cols, b.rows, b.cols)
	}
	switch {
	case a.kind == dense && b.kind == dense:
		return Dense(a.rows, b.cols), nil
	case a.kind == diagonal:
		return b, nil
	case b.kind == diagonal:
		return a, nil
	}
	ac, ar := a.ColInd(), a.Row()
	marker := bitset.New(uint(a.rows))
	colind := make([]int, b.cols+1)
	var row []int
	for j := 0; j < b.cols; j++ {
		marker.ClearAll()
		for _, k := range b.Column(j) {
			for _, i := range ar[ac[k]:ac[k+1]] {
				marker.Set(uint(i))
			}
		}
		for i, ok := marker.NextSet(0); ok; i, ok = marker.NextSet(i + 1) {
			row = append(row, int(i))
		}
		colind[j+1] = len(row)
	}
	return canonical(a.rows, b.cols, colind, row), nil
}

// Lookup returns, for every nonzero of target, the index of the same
// position in p or -1 if the position is a structural zero of p.
func (p *Pattern) Lookup(target *Pattern) ([]int, error) {
	if err := checkSameShape("lookup", p, target); err != nil {
		return nil, err
	}
	idx := make([]int, target.NNZ())
	if p.Equal(target) {
		for k := range idx {
			idx[k] = k
		}
		return idx, nil
	}
	pc, pr := p.ColInd(), p.Row()
	tc, tr := target.ColInd(), target.Row()
	for j := 0; j < target.cols; j++ {
		kp := pc[j]
		for kt := tc[j]; kt < tc[j+1]; kt++ {
			for kp < pc[j+1] && pr[kp] < tr[kt] {
				kp++
			}
			if kp < pc[j+1] && pr[kp] == tr[kt] {
				idx[kt] = kp
			} else {
				idx[kt] = -1
			}
		}
	}
	return idx, nil
}

// Sub returns the pattern of the submatrix p[rows, cols] and, for each
// of its nonzeros, the index of the source nonzero in p.
// Indices may be repeated and given in any order.
func (p *Pattern) Sub(rows, cols []int) (*Pattern, []int, error) {
	for _, r := range rows {
		if err := errs.CheckIndex("row", r, p.rows); err != nil {
			return nil, nil, err
		}
	}
	for _, c := range cols {
		if err := errs.CheckIndex("column", c, p.cols); err != nil {
			return nil, nil, err
		}
	}
	// Destination rows for every source row.
	dst := make([][]int, p.rows)
	for ii, r := range rows {
		dst[r] = append(dst[r], ii)
	}
	pc, pr := p.ColInd(), p.Row()
	var rs, cs, srcs []int
	for jj, j := range cols {
		for k := pc[j]; k < pc[j+1]; k++ {
			for _, ii := range dst[pr[k]] {
				rs = append(rs, ii)
				cs = append(cs, jj)
				srcs = append(srcs, k)
			}
		}
	}
	sub, err := Triplet(len(rows), len(cols), rs, cs)
	if err != nil {
		return nil, nil, err
	}
	mapping := make([]int, sub.NNZ())
	for t := range rs {
		mapping[sub.Find(rs[t], cs[t])] = srcs[t]
	}
	return sub, mapping, nil
}

// ColumnRange returns the pattern of the columns [c0, c1) of p and the range
// [first, last) of the nonzeros of p belonging to these columns.
func (p *Pattern) ColumnRange(c0, c1 int) (sub *Pattern, first, last int, err error) {
	if c0 < 0 || c1 > p.cols || c0 > c1 {
		return nil, 0, 0, errs.Indexf("column range [%d, %d) out of range [0, %d)", c0, c1, p.cols)
	}
	pc := p.ColInd()
	first, last = pc[c0], pc[c1]
	colind := make([]int, c1-c0+1)
	for j := c0; j <= c1; j++ {
		colind[j-c0] = pc[j] - first
	}
	row := append([]int{}, p.Row()[first:last]...)
	return canonical(p.rows, c1-c0, colind, row), first, last, nil
}

// Repeat returns the horizontal concatenation of n copies of p.
func Repeat(p *Pattern, n int) (*Pattern, error) {
	ps := make([]*Pattern, n)
	for i := range ps {
		ps[i] = p
	}
	if n == 0 {
		return Empty(p.rows, 0), nil
	}
	return Horzcat(ps...)
}
