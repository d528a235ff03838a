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

package graph_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

func must(t *testing.T) func(*graph.Node, error) *graph.Node {
	return func(n *graph.Node, err error) *graph.Node {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
}

func eval(t *testing.T, inputs, outputs []*graph.Node, args ...*matrix.Matrix) []*matrix.Matrix {
	t.Helper()
	plan, err := graph.NewPlan(inputs, outputs)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := plan.Evaluate(args)
	if err != nil {
		t.Fatal(err)
	}
	return vals
}

func TestHashConsing(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	a := must(t)(graph.Add(x, x))
	b := must(t)(graph.Add(x, x))
	if a != b {
		t.Errorf("x+x built twice returned two different nodes: %d and %d", a.ID(), b.ID())
	}
	if graph.Sin(a) != graph.Sin(b) {
		t.Errorf("sin(x+x) built twice returned two different nodes")
	}
	if y := graph.Sym("x", 2, 1); y == x {
		t.Errorf("two symbols with the same name are the same node")
	}
	if graph.Scalar(3) != graph.Scalar(3) {
		t.Errorf("constant 3 built twice returned two different nodes")
	}
	if graph.Scalar(3) == graph.Scalar(4) {
		t.Errorf("constants 3 and 4 are the same node")
	}
}

func TestPatterns(t *testing.T) {
	a := graph.Symbol("a", sparsity.Diag(3))
	b := graph.Symbol("b", sparsity.Band(3, 1))
	sum := must(t)(graph.Add(a, b))
	want, err := sparsity.Union(a.Sparsity(), b.Sparsity())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Sparsity().Equal(want) {
		t.Errorf("sparsity(a+b) = %s, want %s", sum.Sparsity().Spy(), want.Spy())
	}
	prod := must(t)(graph.Mul(a, b))
	if !prod.Sparsity().IsEmpty() {
		t.Errorf("sparsity(a.*b) = %s, want empty", prod.Sparsity().Spy())
	}
	if got := graph.Cos(a).Sparsity(); !got.IsDense() {
		t.Errorf("sparsity(cos(a)) = %s, want dense", got.Spy())
	}
	if got := graph.Sin(a).Sparsity(); !got.Equal(a.Sparsity()) {
		t.Errorf("sparsity(sin(a)) = %s, want %s", got.Spy(), a.Sparsity().Spy())
	}
	if _, err := graph.Add(graph.Sym("x", 2, 1), graph.Sym("y", 3, 1)); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("adding 2x1 and 3x1: got error %v, want %v", err, errs.ErrDimensionMismatch)
	}
	if _, err := graph.MTimes(graph.Sym("x", 2, 3), graph.Sym("y", 2, 3)); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("2x3 times 2x3: got error %v, want %v", err, errs.ErrDimensionMismatch)
	}
}

func TestConstantFolding(t *testing.T) {
	sum := must(t)(graph.Add(graph.Scalar(1), graph.Scalar(2)))
	if !sum.IsConst() {
		t.Fatalf("1+2 is not a constant: %s", sum)
	}
	if got, _ := sum.Value().Value(); got != 3 {
		t.Errorf("1+2 = %v, want 3", got)
	}
	x := graph.Sym("x", 1, 1)
	if got := must(t)(graph.Add(x, graph.Scalar(0))); got != x {
		t.Errorf("x+0 = %s, want x", got)
	}
	if got := must(t)(graph.Mul(graph.Scalar(1), x)); got != x {
		t.Errorf("1*x = %s, want x", got)
	}
	if got := must(t)(graph.Mul(x, graph.Scalar(0))); !got.IsZero() {
		t.Errorf("x*0 = %s, want 0", got)
	}
	if got := graph.Neg(graph.Neg(x)); got != x {
		t.Errorf("-(-x) = %s, want x", got)
	}
}

func TestEvaluate(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	y := graph.Sym("y", 1, 1)
	shared := graph.Sin(x)
	f := must(t)(graph.Add(shared, y))
	g := must(t)(graph.Mul(shared, shared))
	vals := eval(t, []*graph.Node{x, y}, []*graph.Node{f, g}, matrix.Column(4, 5), matrix.Scalar(3))
	want := []float64{math.Sin(4) + 3, math.Sin(5) + 3}
	if diff := cmp.Diff(want, vals[0].NZ()); diff != "" {
		t.Errorf("unexpected sin(x)+y (-want +got):\n%s", diff)
	}
	want = []float64{math.Sin(4) * math.Sin(4), math.Sin(5) * math.Sin(5)}
	if diff := cmp.Diff(want, vals[1].NZ()); diff != "" {
		t.Errorf("unexpected sin(x)*sin(x) (-want +got):\n%s", diff)
	}
}

func TestMatrixOps(t *testing.T) {
	a := graph.Sym("a", 2, 2)
	v := graph.Sym("v", 2, 1)
	av := must(t)(graph.MTimes(a, v))
	hv := must(t)(graph.Vertcat(av, graph.Sum(v)))
	am, err := matrix.FromRows([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	vals := eval(t, []*graph.Node{a, v}, []*graph.Node{hv, graph.Transpose(a)}, am, matrix.Column(1, 1))
	if diff := cmp.Diff([]float64{3, 7, 2}, vals[0].NZ()); diff != "" {
		t.Errorf("unexpected vertcat(a*v, sum(v)) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]float64{{1, 3}, {2, 4}}, vals[1].Dense()); diff != "" {
		t.Errorf("unexpected transpose (-want +got):\n%s", diff)
	}
	el := must(t)(graph.Element(a, 1, 0))
	vals = eval(t, []*graph.Node{a}, []*graph.Node{el}, am)
	if got, _ := vals[0].Value(); got != 3 {
		t.Errorf("a[1, 0] = %v, want 3", got)
	}
}

func TestFreeSymbol(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	y := graph.Sym("y", 1, 1)
	f := must(t)(graph.Add(x, y))
	if _, err := graph.NewPlan([]*graph.Node{x}, []*graph.Node{f}); !errors.Is(err, errs.ErrArity) {
		t.Errorf("got error %v, want %v", err, errs.ErrArity)
	}
	if _, err := graph.NewPlan([]*graph.Node{x, x, y}, []*graph.Node{f}); !errors.Is(err, errs.ErrArity) {
		t.Errorf("got error %v, want %v", err, errs.ErrArity)
	}
}

func TestDomainError(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	plan, err := graph.NewPlan([]*graph.Node{x}, []*graph.Node{graph.Log(x)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := plan.Evaluate([]*matrix.Matrix{matrix.Scalar(-1)}); !errors.Is(err, errs.ErrDomain) {
		t.Errorf("log(-1): got error %v, want %v", err, errs.ErrDomain)
	}
	if _, err := plan.Evaluate([]*matrix.Matrix{matrix.Scalar(math.E)}); err != nil {
		t.Errorf("log(e): unexpected error %v", err)
	}
}

func TestSubstitute(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	y := graph.Sym("y", 1, 1)
	f := must(t)(graph.Mul(graph.Sin(x), y))
	z := graph.Sym("z", 1, 1)
	subs, err := graph.Substitute([]*graph.Node{f}, []*graph.Node{y}, []*graph.Node{graph.Sq(z)})
	if err != nil {
		t.Fatal(err)
	}
	vals := eval(t, []*graph.Node{x, z}, subs, matrix.Scalar(1), matrix.Scalar(3))
	if got, _ := vals[0].Value(); got != math.Sin(1)*9 {
		t.Errorf("sin(1)*3^2 = %v, want %v", got, math.Sin(1)*9)
	}
	same, err := graph.Substitute([]*graph.Node{f}, []*graph.Node{y}, []*graph.Node{y})
	if err != nil {
		t.Fatal(err)
	}
	if same[0] != f {
		t.Errorf("substituting y with y did not return the original node")
	}
}

func TestNotDifferentiable(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	fl := graph.Floor(x)
	if fl.Differentiable() {
		t.Errorf("floor is differentiable")
	}
	if _, err := fl.Forward([]*graph.Node{graph.Scalar(1)}); !errors.Is(err, errs.ErrNotDifferentiable) {
		t.Errorf("got error %v, want %v", err, errs.ErrNotDifferentiable)
	}
	if d, err := fl.Forward([]*graph.Node{nil}); err != nil || d != nil {
		t.Errorf("zero seed through floor: got %v, %v, want nil, nil", d, err)
	}
}

func TestDependencies(t *testing.T) {
	a := graph.Symbol("a", sparsity.Diag(2))
	v := graph.Sym("v", 2, 1)
	av := must(t)(graph.MTimes(a, v))
	deps, err := av.Dependencies(1)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := deps.Spy(), "*.\n.*\n"; got != want {
		t.Errorf("d(a*v)/dv pattern:\n%s\nwant:\n%s", got, want)
	}
	deps, err = graph.Sum(v).Dependencies(0)
	if err != nil {
		t.Fatal(err)
	}
	if !deps.IsDense() || deps.Rows() != 1 || deps.Cols() != 2 {
		t.Errorf("d(sum(v))/dv pattern %s, want dense 1x2", deps)
	}
}

func TestConstructionErrors(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	y := graph.Sym("y", 3, 1)
	tests := []struct {
		what string
		run  func() (*graph.Node, error)
		want error
	}{
		{
			what: "binary operation as unary",
			run:  func() (*graph.Node, error) { return graph.Unary(graph.OpAdd, x) },
			want: errs.ErrInvalidGraph,
		},
		{
			what: "unary operation as binary",
			run:  func() (*graph.Node, error) { return graph.Binary(graph.OpSin, x, x) },
			want: errs.ErrInvalidGraph,
		},
		{
			what: "make a symbol",
			run: func() (*graph.Node, error) {
				return graph.Make(graph.OpSymbol, nil, graph.Params{Sparsity: sparsity.Dense(1, 1)})
			},
			want: errs.ErrInvalidGraph,
		},
		{
			what: "make with missing children",
			run:  func() (*graph.Node, error) { return graph.Make(graph.OpAdd, []*graph.Node{x}, graph.Params{}) },
			want: errs.ErrArity,
		},
		{
			what: "incompatible operands",
			run:  func() (*graph.Node, error) { return graph.Add(x, y) },
			want: errs.ErrDimensionMismatch,
		},
		{
			what: "substitute an expression",
			run: func() (*graph.Node, error) {
				outs, err := graph.Substitute([]*graph.Node{x}, []*graph.Node{graph.Sin(x)}, []*graph.Node{x})
				if err != nil {
					return nil, err
				}
				return outs[0], nil
			},
			want: errs.ErrInvalidGraph,
		},
	}
	for _, test := range tests {
		if _, err := test.run(); !errors.Is(err, test.want) {
			t.Errorf("%s: got error %v but want %v", test.what, err, test.want)
		}
	}
}
