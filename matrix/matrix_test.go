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

package matrix_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

func mustRows(t *testing.T, rows [][]float64) *matrix.Matrix {
	t.Helper()
	m, err := matrix.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestConstruct(t *testing.T) {
	m := mustRows(t, [][]float64{{1, 2}, {3, 4}})
	if diff := cmp.Diff([]float64{1, 3, 2, 4}, m.NZ()); diff != "" {
		t.Errorf("unexpected nonzeros (-want +got):\n%s", diff)
	}
	if got := m.At(1, 0); got != 3 {
		t.Errorf("m.At(1, 0) = %v, want 3", got)
	}
	if _, err := matrix.New(sparsity.Dense(2, 2), []float64{1}); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("New with too few values: got error %v, want %v", err, errs.ErrDimensionMismatch)
	}
	if _, err := matrix.FromRows([][]float64{{1, 2}, {3}}); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("FromRows with ragged rows: got error %v, want %v", err, errs.ErrDimensionMismatch)
	}
	sh := m.Shape()
	if diff := cmp.Diff([]int{2, 2}, sh.AxisLengths); diff != "" {
		t.Errorf("unexpected shape (-want +got):\n%s", diff)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		m    *matrix.Matrix
		want string
	}{
		{
			m:    matrix.Scalar(3),
			want: "3",
		},
		{
			m:    matrix.Scalar(-0.25),
			want: "-0.25",
		},
		{
			m:    matrix.Zeros(sparsity.Empty(1, 1)),
			want: "00",
		},
		{
			m:    matrix.Fill(sparsity.Diag(2), 2),
			want: "[[2, 00], [00, 2]]",
		},
		{
			m:    matrix.Column(1, 2.5),
			want: "[[1], [2.5]]",
		},
	}
	for i, test := range tests {
		if got := test.m.String(); got != test.want {
			t.Errorf("test %d: got %q but want %q", i, got, test.want)
		}
	}
}

func TestProject(t *testing.T) {
	m := mustRows(t, [][]float64{{1, 2}, {3, 4}})
	got, err := matrix.Project(m, sparsity.Diag(2))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 4}, got.NZ()); diff != "" {
		t.Errorf("unexpected projection (-want +got):\n%s", diff)
	}
	back, err := matrix.Project(got, sparsity.Dense(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 0, 0, 4}, back.NZ()); diff != "" {
		t.Errorf("unexpected projection (-want +got):\n%s", diff)
	}
}

func TestApply2Broadcast(t *testing.T) {
	x := mustRows(t, [][]float64{{1, 2}, {3, 4}})
	y := matrix.Scalar(10)
	add := func(a, b float64) float64 { return a + b }
	got, err := matrix.Apply2(add, x, y, sparsity.Dense(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	want := mustRows(t, [][]float64{{11, 12}, {13, 14}})
	if !matrix.Equal(got, want) {
		t.Errorf("got %s but want %s", got, want)
	}
	if _, err := matrix.Apply2(add, x, matrix.Column(1, 2, 3), sparsity.Dense(2, 2)); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("got error %v, want %v", err, errs.ErrDimensionMismatch)
	}
}

func TestMTimes(t *testing.T) {
	x := mustRows(t, [][]float64{{1, 2}, {3, 4}})
	y := matrix.Column(5, 6)
	got, err := matrix.MTimes(x, y, sparsity.Dense(2, 1))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{17, 39}, got.NZ()); diff != "" {
		t.Errorf("unexpected product (-want +got):\n%s", diff)
	}
	d := matrix.Fill(sparsity.Diag(2), 2)
	got, err = matrix.MTimes(d, x, sparsity.Dense(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	want := mustRows(t, [][]float64{{2, 4}, {6, 8}})
	if !matrix.Equal(got, want) {
		t.Errorf("got %s but want %s", got, want)
	}
}

func TestConcatAndBlocks(t *testing.T) {
	a := matrix.Column(1, 2)
	b := matrix.Fill(sparsity.Diag(2), 7)
	h, err := matrix.Horzcat(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.String(), "[[1, 7, 00], [2, 00, 7]]"; got != want {
		t.Errorf("horzcat: got %q but want %q", got, want)
	}
	block, err := h.ColumnBlock(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !matrix.Equal(block, b) {
		t.Errorf("column block: got %s but want %s", block, b)
	}
	v, err := matrix.Vertcat(matrix.Transpose(a), matrix.Scalar(3), matrix.Scalar(4))
	if err == nil {
		t.Errorf("vertcat of 1x2 and 1x1: expected an error, got %s", v)
	}
	v, err = matrix.Vertcat(b, matrix.Transpose(a))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.String(), "[[7, 00], [00, 7], [1, 2]]"; got != want {
		t.Errorf("vertcat: got %q but want %q", got, want)
	}
}

func TestAssemble(t *testing.T) {
	x := matrix.Column(1, 2, 3)
	y := matrix.Scalar(10)
	got, err := matrix.Assemble(sparsity.Dense(2, 1), []*matrix.Matrix{x, y}, [][]matrix.Ref{
		{{Arg: 0, NZ: 0}, {Arg: 0, NZ: 2}},
		{{Arg: 1, NZ: 0}, {Arg: 0, NZ: 1}, {Arg: 0, NZ: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{4, 14}, got.NZ()); diff != "" {
		t.Errorf("unexpected assembly (-want +got):\n%s", diff)
	}
	_, err = matrix.Assemble(sparsity.Scalar(), []*matrix.Matrix{x}, [][]matrix.Ref{{{Arg: 0, NZ: 3}}})
	if !errors.Is(err, errs.ErrIndexOutOfRange) {
		t.Errorf("got error %v, want %v", err, errs.ErrIndexOutOfRange)
	}
}
