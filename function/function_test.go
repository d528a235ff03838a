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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
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

func mustMatrix(t *testing.T) func(*matrix.Matrix, error) *matrix.Matrix {
	return func(m *matrix.Matrix, err error) *matrix.Matrix {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
}

func newFunction(t *testing.T, name string, inputs, outputs []*graph.Node, opts options.Dict) *function.Function {
	t.Helper()
	f, err := function.New(name, inputs, outputs, opts)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func evaluate(t *testing.T, f *function.Function, args ...*matrix.Matrix) []*matrix.Matrix {
	t.Helper()
	outs, err := f.Evaluate(args...)
	if err != nil {
		t.Fatal(err)
	}
	return outs
}

func checkClose(t *testing.T, what string, got, want *matrix.Matrix) {
	t.Helper()
	if !got.Sparsity().Equal(want.Sparsity()) {
		t.Errorf("%s: got pattern\n%s\nbut want\n%s", what, got.Sparsity().Spy(), want.Sparsity().Spy())
		return
	}
	if !matrix.AllClose(got, want, 1e-12) {
		t.Errorf("%s: got %s but want %s", what, got, want)
	}
}

func TestArityError(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	y := graph.Sym("y", 1, 1)
	_, err := function.New("f", []*graph.Node{x}, []*graph.Node{must(t)(graph.Add(x, y))}, nil)
	if !errors.Is(err, errs.ErrArity) {
		t.Errorf("got error %v but want %v", err, errs.ErrArity)
	}
	f := newFunction(t, "f", []*graph.Node{x, y}, []*graph.Node{must(t)(graph.Add(x, y))}, nil)
	if _, err := f.Evaluate(matrix.Scalar(1)); !errors.Is(err, errs.ErrArity) {
		t.Errorf("evaluate with missing argument: got error %v but want %v", err, errs.ErrArity)
	}
	if _, err := f.Call(x); !errors.Is(err, errs.ErrArity) {
		t.Errorf("call with missing argument: got error %v but want %v", err, errs.ErrArity)
	}
}

func TestOptions(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	tests := []struct {
		opts options.Dict
		want error
	}{
		{
			opts: options.Dict{"foo": 1},
			want: errs.ErrUnknownOption,
		},
		{
			opts: options.Dict{options.KeyADWeight: "foo"},
			want: errs.ErrInvalidOption,
		},
		{
			opts: options.Dict{options.KeyParallelization: "serial"},
			want: errs.ErrUnknownOption,
		},
		{
			opts: options.Dict{options.KeyOutputScheme: []string{"a", "b"}},
			want: errs.ErrInvalidOption,
		},
		{
			opts: options.Dict{options.KeyInputScheme: []string{"x", "x"}, options.KeyOutputScheme: []string{"a"}},
			want: errs.ErrInvalidOption,
		},
	}
	for i, test := range tests {
		_, err := function.New("f", []*graph.Node{x}, []*graph.Node{graph.Sin(x)}, test.opts)
		if !errors.Is(err, test.want) {
			t.Errorf("test %d: options %v: got error %v but want %v", i, test.opts, err, test.want)
		}
	}
}

func TestSchemes(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	y := graph.Sym("y", 1, 1)
	f := newFunction(t, "f", []*graph.Node{x, y}, []*graph.Node{must(t)(graph.Mul(x, y))}, options.Dict{
		options.KeyInputScheme:  []string{"x", "y"},
		options.KeyOutputScheme: []string{"r"},
	})
	if got, want := f.String(), "f:(x[2x1],y)->(r[2x1])"; got != want {
		t.Errorf("got signature %q but want %q", got, want)
	}
	if i, err := f.IndexIn("y"); err != nil || i != 1 {
		t.Errorf("IndexIn(y) = %d, %v but want 1", i, err)
	}
	if _, err := f.IndexIn("z"); !errors.Is(err, errs.ErrIndexOutOfRange) {
		t.Errorf("IndexIn(z): got error %v but want %v", err, errs.ErrIndexOutOfRange)
	}
	if _, err := f.Input(2); !errors.Is(err, errs.ErrIndexOutOfRange) {
		t.Errorf("Input(2): got error %v but want %v", err, errs.ErrIndexOutOfRange)
	}
	outs, err := f.EvaluateNamed(map[string]*matrix.Matrix{
		"x": matrix.Column(1, 2),
		"y": matrix.Scalar(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	checkClose(t, "r", outs["r"], matrix.Column(3, 6))
	outs, err = f.EvaluateNamed(map[string]*matrix.Matrix{"x": matrix.Column(1, 2)})
	if err != nil {
		t.Fatal(err)
	}
	checkClose(t, "r with y missing", outs["r"], matrix.Column(0, 0))

	g := newFunction(t, "g", []*graph.Node{x}, []*graph.Node{x}, nil)
	if diff := cmp.Diff([]string{"i0"}, g.InputNames()); diff != "" {
		t.Errorf("unexpected default input names: diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"o0"}, g.OutputNames()); diff != "" {
		t.Errorf("unexpected default output names: diff (-want +got):\n%s", diff)
	}
}

func TestEvaluateShared(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	s := graph.Sin(x)
	sum := must(t)(graph.Add(s, s))
	f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{sum, s}, nil)
	outs := evaluate(t, f, matrix.Scalar(1))
	checkClose(t, "sin(x)+sin(x)", outs[0], matrix.Scalar(2*math.Sin(1)))
	checkClose(t, "sin(x)", outs[1], matrix.Scalar(math.Sin(1)))
}

func TestDomainError(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	for _, jit := range []bool{false, true} {
		f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{must(t)(graph.Div(graph.Scalar(1), x))}, options.Dict{options.KeyJIT: jit})
		if _, err := f.Evaluate(matrix.Scalar(0)); !errors.Is(err, errs.ErrDomain) {
			t.Errorf("jit=%v: got error %v but want %v", jit, err, errs.ErrDomain)
		}
	}
}

func TestCall(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{graph.Sin(x)}, nil)
	z := graph.Sym("z", 2, 1)
	outs, err := f.Call(graph.Sq(z))
	if err != nil {
		t.Fatal(err)
	}
	g := newFunction(t, "g", []*graph.Node{z}, outs, nil)
	got := evaluate(t, g, matrix.Column(1, 2))
	checkClose(t, "sin(z^2)", got[0], matrix.Column(math.Sin(1), math.Sin(4)))
	if _, err := f.Call(graph.Sym("w", 3, 1)); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("got error %v but want %v", err, errs.ErrDimensionMismatch)
	}
}

func TestJacobianHessian(t *testing.T) {
	x := graph.Sym("x", 1, 1)
	for _, weight := range []float64{0, 1} {
		f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{graph.Sq(x)}, options.Dict{options.KeyADWeight: weight})
		jac, err := f.Jacobian(0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := jac.NumOut(), 2; got != want {
			t.Fatalf("jacobian function has %d outputs but want %d", got, want)
		}
		outs := evaluate(t, jac, matrix.Scalar(3))
		checkClose(t, "jacobian", outs[0], matrix.Scalar(6))
		checkClose(t, "f", outs[1], matrix.Scalar(9))
		again, err := f.Jacobian(0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if again != jac {
			t.Errorf("jacobian function built twice")
		}

		hess, err := f.Hessian(0, 0)
		if err != nil {
			t.Fatal(err)
		}
		outs = evaluate(t, hess, matrix.Scalar(3))
		checkClose(t, "hessian", outs[0], matrix.Scalar(2))
		checkClose(t, "gradient", outs[1], matrix.Scalar(6))
		checkClose(t, "f", outs[2], matrix.Scalar(9))
		if diff := cmp.Diff([]string{"hess_o0_i0_i0", "grad_o0_i0", "o0"}, hess.OutputNames()); diff != "" {
			t.Errorf("unexpected hessian output names: diff (-want +got):\n%s", diff)
		}
	}
}

func TestDerivativeErrors(t *testing.T) {
	x := graph.Sym("x", 2, 1)
	f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{graph.Sin(x)}, nil)
	if _, err := f.Jacobian(1, 0); !errors.Is(err, errs.ErrIndexOutOfRange) {
		t.Errorf("jacobian of output 1: got error %v but want %v", err, errs.ErrIndexOutOfRange)
	}
	if _, err := f.Hessian(0, 0); !errors.Is(err, errs.ErrDimensionMismatch) {
		t.Errorf("hessian of a vector: got error %v but want %v", err, errs.ErrDimensionMismatch)
	}
	g := newFunction(t, "g", []*graph.Node{x}, []*graph.Node{graph.Floor(x)}, nil)
	if _, err := g.Jacobian(0, 0); !errors.Is(err, errs.ErrNotDifferentiable) {
		t.Errorf("jacobian of floor: got error %v but want %v", err, errs.ErrNotDifferentiable)
	}
	if _, err := g.Evaluate(matrix.Column(1.5, -0.5)); err != nil {
		t.Errorf("evaluating floor: %v", err)
	}
}

func TestHessianSymmetric(t *testing.T) {
	x := graph.Sym("x", 3, 1)
	x0 := must(t)(graph.Element(x, 0, 0))
	x1 := must(t)(graph.Element(x, 1, 0))
	x2 := must(t)(graph.Element(x, 2, 0))
	obj := must(t)(graph.Add(must(t)(graph.Mul(x0, graph.Sin(x1))), graph.Exp(x2)))
	f := newFunction(t, "f", []*graph.Node{x}, []*graph.Node{obj}, nil)
	hess, err := f.Hessian(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := hess.SparsityOut(0)
	if err != nil {
		t.Fatal(err)
	}
	if !sp.IsSymmetric() {
		t.Errorf("hessian pattern is not symmetric:\n%s", sp.Spy())
	}
	outs := evaluate(t, hess, matrix.Column(2, 0.5, 1))
	want := mustMatrix(t)(matrix.FromRows([][]float64{
		{0, math.Cos(0.5), 0},
		{math.Cos(0.5), -2 * math.Sin(0.5), 0},
		{0, 0, math.Exp(1)},
	}))
	if diff := cmp.Diff(want.Dense(), outs[0].Dense(), cmp.Comparer(func(a, b float64) bool {
		return math.Abs(a-b) < 1e-12
	})); diff != "" {
		t.Errorf("unexpected hessian: diff (-want +got):\n%s", diff)
	}
}

func TestExpandAndJIT(t *testing.T) {
	a := graph.Sym("a", 2, 2)
	x := graph.Sym("x", 2, 1)
	ax := must(t)(graph.MTimes(a, x))
	out := must(t)(graph.Add(ax, graph.Sin(x)))
	f := newFunction(t, "f", []*graph.Node{a, x}, []*graph.Node{out, graph.Sum(ax)}, nil)
	args := []*matrix.Matrix{
		mustMatrix(t)(matrix.FromRows([][]float64{{1, 2}, {3, 4}})),
		matrix.Column(0.5, -1),
	}
	want := evaluate(t, f, args...)

	ef, err := f.Expand("")
	if err != nil {
		t.Fatal(err)
	}
	if f.IsScalar() {
		t.Errorf("%s is scalar but has matrix operations", f)
	}
	if !ef.IsScalar() {
		t.Errorf("%s is not scalar", ef)
	}
	got := evaluate(t, ef, args...)
	for i := range want {
		checkClose(t, "expanded output", got[i], want[i])
	}

	jf := newFunction(t, "f", []*graph.Node{a, x}, []*graph.Node{out, graph.Sum(ax)}, options.Dict{options.KeyJIT: true})
	got = evaluate(t, jf, args...)
	for i := range want {
		checkClose(t, "jit output", got[i], want[i])
	}
	prog, err := jf.Program()
	if err != nil {
		t.Fatal(err)
	}
	again, err := jf.Program()
	if err != nil {
		t.Fatal(err)
	}
	if prog != again {
		t.Errorf("program compiled twice")
	}
	if diff := cmp.Diff([]string{"o0", "o1"}, prog.OutputNames()); diff != "" {
		t.Errorf("unexpected program output names: diff (-want +got):\n%s", diff)
	}
}
