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

package function_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
)

// inlined returns a function evaluating the graph of f directly.
func inlined(t *testing.T, f *function.Function) *function.Function {
	t.Helper()
	return newFunction(t, "inlined_"+f.Name(), f.Inputs(), f.Outputs(), nil)
}

func sinPlus(t *testing.T) *function.Function {
	x := graph.Sym("x", 2, 1)
	y := graph.Sym("y", 1, 1)
	return newFunction(t, "f", []*graph.Node{x, y}, []*graph.Node{must(t)(graph.Add(graph.Sin(x), y))}, nil)
}

func TestMap(t *testing.T) {
	f := sinPlus(t)
	x := mustMatrix(t)(matrix.FromRows([][]float64{{4, 5}, {5, 7}}))
	y := mustMatrix(t)(matrix.FromRows([][]float64{{3, 8}}))
	want := mustMatrix(t)(matrix.FromRows([][]float64{
		{math.Sin(4) + 3, math.Sin(5) + 8},
		{math.Sin(5) + 3, math.Sin(7) + 8},
	}))
	var results [][]float64
	for _, mode := range []options.ParallelMode{options.Serial, options.Parallel} {
		mf, err := f.Map("", 2, nil, nil, mode, options.Dict{options.KeyMaxWorkers: 2})
		if err != nil {
			t.Fatal(err)
		}
		if got, want := mf.Name(), "map2_f"; got != want {
			t.Errorf("got name %q but want %q", got, want)
		}
		outs := evaluate(t, mf, x, y)
		checkClose(t, mode.String(), outs[0], want)
		checkClose(t, mode.String()+" inlined", evaluate(t, inlined(t, mf), x, y)[0], want)
		results = append(results, outs[0].NZ())
	}
	if diff := cmp.Diff(results[0], results[1]); diff != "" {
		t.Errorf("serial and parallel results differ: diff (-serial +parallel):\n%s", diff)
	}
}

func TestMapMatchesIndependentCalls(t *testing.T) {
	f := sinPlus(t)
	const n = 7
	xs := make([]*matrix.Matrix, n)
	ys := make([]*matrix.Matrix, n)
	var want []*matrix.Matrix
	for i := range n {
		xs[i] = matrix.Column(float64(i), 0.5*float64(i))
		ys[i] = matrix.Scalar(float64(-i))
		want = append(want, evaluate(t, f, xs[i], ys[i])[0])
	}
	x := mustMatrix(t)(matrix.Horzcat(xs...))
	y := mustMatrix(t)(matrix.Horzcat(ys...))
	wantAll := mustMatrix(t)(matrix.Horzcat(want...))
	for _, mode := range []options.ParallelMode{options.Serial, options.Parallel} {
		mf, err := f.Map("m", n, nil, nil, mode, options.Dict{options.KeyMaxWorkers: 3})
		if err != nil {
			t.Fatal(err)
		}
		got := evaluate(t, mf, x, y)[0]
		if diff := cmp.Diff(wantAll.NZ(), got.NZ()); diff != "" {
			t.Errorf("%s: unexpected outputs: diff (-want +got):\n%s", mode, diff)
		}
	}
}

func TestMapSharedAndAccumulated(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	a := graph.Sym("a", 1, 1)
	ax := must(t)(graph.Mul(a, x))
	f := newFunction(t, "f", []*graph.Node{x, a}, []*graph.Node{ax, ax}, nil)
	mf, err := f.Map("m", 3, []bool{true, false}, []bool{true, false}, options.Serial, nil)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := mf.SparsityIn(1)
	if err != nil {
		t.Fatal(err)
	}
	if !sp.IsScalar() {
		t.Errorf("shared input is %s but want 1x1", sp)
	}
	x3 := mustMatrix(t)(matrix.FromRows([][]float64{{1, 2, 3}, {4, 5, 6}}))
	outs := evaluate(t, mf, x3, matrix.Scalar(2))
	checkClose(t, "sum", outs[0], matrix.Column(12, 30))
	checkClose(t, "concatenation", outs[1], mustMatrix(t)(matrix.FromRows([][]float64{{2, 4, 6}, {8, 10, 12}})))
	in := evaluate(t, inlined(t, mf), x3, matrix.Scalar(2))
	checkClose(t, "inlined sum", in[0], outs[0])
	checkClose(t, "inlined concatenation", in[1], outs[1])
}

func TestMapErrors(t *testing.T) {
	f := sinPlus(t)
	if _, err := f.Map("m", 2, []bool{true}, nil, options.Serial, nil); !errors.Is(err, errs.ErrMapAccumShape) {
		t.Errorf("wrong number of replicated flags: got error %v but want %v", err, errs.ErrMapAccumShape)
	}
	if _, err := f.Map("m", 2, nil, nil, options.Serial, options.Dict{"foo": true}); !errors.Is(err, errs.ErrUnknownOption) {
		t.Errorf("unknown option: got error %v but want %v", err, errs.ErrUnknownOption)
	}
	if _, err := f.Map("m", 0, nil, nil, options.Serial, nil); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("no repetition: got error %v but want %v", err, errs.ErrDimensionMismatch)
	}
	mf, err := f.Map("m", 2, nil, nil, options.Serial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mf.Evaluate(matrix.Column(1, 2), matrix.Scalar(1)); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("argument with a single block: got error %v but want %v", err, errs.ErrDimensionMismatch)
	}
}

func TestMapParallelDomainErrors(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{graph.Log(x)}, nil)
	mf, err := f.Map("m", 4, nil, nil, options.Parallel, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = mf.Evaluate(mustMatrix(t)(matrix.FromRows([][]float64{{1, -1, 2, -3}})))
	if !errors.Is(err, errs.ErrDomain) {
		t.Fatalf("got error %v but want %v", err, errs.ErrDomain)
	}
	for _, rep := range []string{"repetition 1", "repetition 3"} {
		if !strings.Contains(err.Error(), rep) {
			t.Errorf("error %q does not report %s", err, rep)
		}
	}
	if strings.Contains(err.Error(), "repetition 0") {
		t.Errorf("error %q reports a repetition that succeeded", err)
	}
}

func TestMapJacobian(t *testing.T) {
	f := sinPlus(t)
	mf, err := f.Map("m", 2, nil, nil, options.Parallel, nil)
	if err != nil {
		t.Fatal(err)
	}
	jac, err := mf.Jacobian(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := jac.SparsityOut(0)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := sp.Spy(), "*...\n.*..\n..*.\n...*\n"; got != want {
		t.Errorf("got jacobian pattern\n%s\nbut want\n%s", got, want)
	}
	x := mustMatrix(t)(matrix.FromRows([][]float64{{4, 5}, {5, 7}}))
	outs := evaluate(t, jac, x, matrix.Scalar(0))
	want := []float64{math.Cos(4), math.Cos(5), math.Cos(5), math.Cos(7)}
	if diff := cmp.Diff(want, outs[0].NZ(), cmp.Comparer(func(a, b float64) bool {
		return math.Abs(a-b) < 1e-12
	})); diff != "" {
		t.Errorf("unexpected jacobian: diff (-want +got):\n%s", diff)
	}
}

func TestMapAccum(t *testing.T) {
	acc := graph.Sym("acc", 1, 1)
	u := graph.Sym("u", 1, 1)
	f := newFunction(t, "f", []*graph.Node{acc, u}, []*graph.Node{
		must(t)(graph.Add(acc, u)),
		must(t)(graph.Mul(acc, u)),
	}, nil)
	mf, err := f.MapAccum("", 3, []int{0}, []int{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	us := mustMatrix(t)(matrix.FromRows([][]float64{{1, 2, 3}}))
	outs := evaluate(t, mf, matrix.Scalar(1), us)
	checkClose(t, "accumulator", outs[0], mustMatrix(t)(matrix.FromRows([][]float64{{2, 4, 7}})))
	checkClose(t, "product", outs[1], mustMatrix(t)(matrix.FromRows([][]float64{{1, 4, 12}})))

	// Manual fold.
	state := matrix.Scalar(1)
	var folded []float64
	for i := range 3 {
		u, err := us.ColumnBlock(i, i+1)
		if err != nil {
			t.Fatal(err)
		}
		res := evaluate(t, f, state, u)
		state = res[0]
		folded = append(folded, res[0].NZ()...)
	}
	if diff := cmp.Diff(folded, outs[0].NZ()); diff != "" {
		t.Errorf("mapaccum differs from a manual fold: diff (-fold +mapaccum):\n%s", diff)
	}
	in := evaluate(t, inlined(t, mf), matrix.Scalar(1), us)
	checkClose(t, "inlined accumulator", in[0], outs[0])
	checkClose(t, "inlined product", in[1], outs[1])

	jac, err := mf.Jacobian(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// d(acc_i)/d(acc_0) = 1 for every repetition.
	got := evaluate(t, jac, matrix.Scalar(1), us)[0]
	if diff := cmp.Diff([][]float64{{1}, {1}, {1}}, got.Dense()); diff != "" {
		t.Errorf("unexpected jacobian: diff (-want +got):\n%s", diff)
	}
}

func TestMapAccumShapeErrors(t *testing.T) {
	acc := graph.Sym("acc", 2, 1)
	u := graph.Sym("u", 1, 1)
	f := newFunction(t, "f", []*graph.Node{acc, u}, []*graph.Node{
		must(t)(graph.Mul(acc, u)),
		graph.Sum(acc),
	}, nil)
	tests := []struct {
		accIn, accOut []int
	}{
		{accIn: []int{0}, accOut: []int{}},
		{accIn: []int{2}, accOut: []int{0}},
		{accIn: []int{0}, accOut: []int{-1}},
		{accIn: []int{0, 0}, accOut: []int{0, 0}},
		{accIn: []int{0}, accOut: []int{1}},
		{accIn: []int{1}, accOut: []int{0}},
	}
	for i, test := range tests {
		_, err := f.MapAccum("m", 2, test.accIn, test.accOut, nil)
		if !errors.Is(err, errs.ErrMapAccumShape) {
			t.Errorf("test %d: accumulators %v -> %v: got error %v but want %v", i, test.accIn, test.accOut, err, errs.ErrMapAccumShape)
		}
	}
	if _, err := f.MapAccum("m", 2, []int{0}, []int{0}, options.Dict{options.KeyParallelization: "parallel"}); !errors.Is(err, errs.ErrUnknownOption) {
		t.Errorf("parallel mapaccum: got error %v but want %v", err, errs.ErrUnknownOption)
	}
}
