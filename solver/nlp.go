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

package solver

import (
	"math"

	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
)

type (
	// Bounds of the decision variables and of the constraints.
	// A nil slice is unbounded.
	Bounds struct {
		LBX, UBX []float64
		LBG, UBG []float64
	}

	// Problem is a nonlinear program:
	//
	//	minimize f(x) subject to lbx <= x <= ubx and lbg <= g(x) <= ubg
	//
	// F and G take the decision variables x, a column vector, as their
	// only input. F has a single 1x1 output. G, which can be nil, has a
	// single column vector output.
	Problem struct {
		F, G   *function.Function
		Bounds Bounds
	}

	// NLP evaluates a problem and its derivatives for a solver.
	NLP struct {
		problem Problem
		n, m    int
		bounds  Bounds

		grad *function.Function
		jacG *function.Function
		lag  *function.Function
	}
)

func checkSignature(what string, f *function.Function) error {
	if f.NumIn() != 1 || f.NumOut() != 1 {
		return errs.Arityf("%s %s must have one input and one output", what, f)
	}
	in, _ := f.SparsityIn(0)
	out, _ := f.SparsityOut(0)
	if !in.IsColumn() {
		return errs.Dimensionf("%s %s: decision variables must be a column vector", what, f)
	}
	if !out.IsColumn() {
		return errs.Dimensionf("%s %s: output must be a column vector", what, f)
	}
	return nil
}

func fillBounds(what string, b []float64, n int, v float64) ([]float64, error) {
	if b == nil {
		b = make([]float64, n)
		for i := range b {
			b[i] = v
		}
		return b, nil
	}
	if len(b) != n {
		return nil, errs.Dimensionf("%s has %d elements but want %d", what, len(b), n)
	}
	return append([]float64{}, b...), nil
}

// NewNLP checks a problem and builds the functions computing its derivatives.
func NewNLP(p Problem) (*NLP, error) {
	if p.F == nil {
		return nil, errs.Arityf("problem without objective")
	}
	if err := checkSignature("objective", p.F); err != nil {
		return nil, err
	}
	fOut, _ := p.F.SparsityOut(0)
	if !fOut.IsScalar() {
		return nil, errs.Dimensionf("objective %s must be 1x1", p.F)
	}
	x, _ := p.F.Input(0)
	nlp := &NLP{problem: p, n: x.Rows()}
	var err error
	if nlp.grad, err = p.F.Jacobian(0, 0); err != nil {
		return nil, err
	}
	lam := graph.Sym("lam_g", 0, 1)
	var g *graph.Node
	if p.G != nil {
		if err := checkSignature("constraints", p.G); err != nil {
			return nil, err
		}
		gx, _ := p.G.Input(0)
		if gx.Rows() != nlp.n {
			return nil, errs.Dimensionf("constraints %s take %d variables but the objective %s takes %d", p.G, gx.Rows(), p.F, nlp.n)
		}
		gOut, _ := p.G.SparsityOut(0)
		nlp.m = gOut.Rows()
		if nlp.jacG, err = p.G.Jacobian(0, 0); err != nil {
			return nil, err
		}
		gs, err := p.G.Call(x)
		if err != nil {
			return nil, err
		}
		g = gs[0]
		lam = graph.Sym("lam_g", nlp.m, 1)
	}
	if nlp.lag, err = lagrangian(p.F, x, g, lam); err != nil {
		return nil, err
	}
	b := p.Bounds
	if nlp.bounds.LBX, err = fillBounds("lbx", b.LBX, nlp.n, math.Inf(-1)); err != nil {
		return nil, err
	}
	if nlp.bounds.UBX, err = fillBounds("ubx", b.UBX, nlp.n, math.Inf(1)); err != nil {
		return nil, err
	}
	if nlp.bounds.LBG, err = fillBounds("lbg", b.LBG, nlp.m, math.Inf(-1)); err != nil {
		return nil, err
	}
	if nlp.bounds.UBG, err = fillBounds("ubg", b.UBG, nlp.m, math.Inf(1)); err != nil {
		return nil, err
	}
	return nlp, nil
}

// lagrangian returns the function sigma*f(x) + lam'*g(x) of x, lam and sigma.
func lagrangian(f *function.Function, x, g, lam *graph.Node) (*function.Function, error) {
	fs, err := f.Call(x)
	if err != nil {
		return nil, err
	}
	sigma := graph.Sym("sigma", 1, 1)
	lag, err := graph.Mul(sigma, fs[0])
	if err != nil {
		return nil, err
	}
	if g != nil {
		lg, err := graph.Dot(lam, g)
		if err != nil {
			return nil, err
		}
		if lag, err = graph.Add(lag, lg); err != nil {
			return nil, err
		}
	}
	opts := f.Options()
	opts.InputScheme = []string{"x", "lam_g", "sigma"}
	opts.OutputScheme = []string{"lag"}
	return function.Build("lag_"+f.Name(), []*graph.Node{x, lam, sigma}, []*graph.Node{lag}, opts)
}

// NumVars returns the number of decision variables.
func (nlp *NLP) NumVars() int { return nlp.n }

// NumConstraints returns the number of constraints.
func (nlp *NLP) NumConstraints() int { return nlp.m }

// Bounds returns the bounds of the problem. Missing bounds are infinite.
func (nlp *NLP) Bounds() Bounds { return nlp.bounds }

func (nlp *NLP) column(what string, v []float64, n int) (*matrix.Matrix, error) {
	if len(v) != n {
		return nil, errs.Dimensionf("%s has %d elements but want %d", what, len(v), n)
	}
	return matrix.FromDense(n, 1, v)
}

// Objective returns f(x).
func (nlp *NLP) Objective(x []float64) (float64, error) {
	xm, err := nlp.column("x", x, nlp.n)
	if err != nil {
		return 0, err
	}
	outs, err := nlp.problem.F.Evaluate(xm)
	if err != nil {
		return 0, err
	}
	return outs[0].Value()
}

// Gradient returns the gradient of f at x.
func (nlp *NLP) Gradient(x []float64) ([]float64, error) {
	xm, err := nlp.column("x", x, nlp.n)
	if err != nil {
		return nil, err
	}
	outs, err := nlp.grad.Evaluate(xm)
	if err != nil {
		return nil, err
	}
	return outs[0].ColMajor(), nil
}

// Constraints returns g(x).
func (nlp *NLP) Constraints(x []float64) ([]float64, error) {
	if nlp.problem.G == nil {
		return []float64{}, nil
	}
	xm, err := nlp.column("x", x, nlp.n)
	if err != nil {
		return nil, err
	}
	outs, err := nlp.problem.G.Evaluate(xm)
	if err != nil {
		return nil, err
	}
	return outs[0].ColMajor(), nil
}

// JacobianSparsity returns the pattern of the Jacobian of the constraints.
func (nlp *NLP) JacobianSparsity() (*sparsity.Pattern, error) {
	if nlp.problem.G == nil {
		return sparsity.Empty(0, nlp.n), nil
	}
	return nlp.problem.G.JacSparsity(0, 0)
}

// Jacobian returns the m x n Jacobian of the constraints at x.
func (nlp *NLP) Jacobian(x []float64) (*matrix.Matrix, error) {
	if nlp.problem.G == nil {
		return matrix.Zeros(sparsity.Empty(0, nlp.n)), nil
	}
	xm, err := nlp.column("x", x, nlp.n)
	if err != nil {
		return nil, err
	}
	outs, err := nlp.jacG.Evaluate(xm)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// HessianSparsity returns the pattern of the Hessian of the Lagrangian.
func (nlp *NLP) HessianSparsity() (*sparsity.Pattern, error) {
	hess, err := nlp.lag.Hessian(0, 0)
	if err != nil {
		return nil, err
	}
	return hess.SparsityOut(0)
}

// Hessian returns the n x n Hessian of sigma*f(x) + lamG'*g(x) at x.
func (nlp *NLP) Hessian(x, lamG []float64, sigma float64) (*matrix.Matrix, error) {
	xm, err := nlp.column("x", x, nlp.n)
	if err != nil {
		return nil, err
	}
	lm, err := nlp.column("lam_g", lamG, nlp.m)
	if err != nil {
		return nil, err
	}
	hess, err := nlp.lag.Hessian(0, 0)
	if err != nil {
		return nil, err
	}
	outs, err := hess.Evaluate(xm, lm, matrix.Scalar(sigma))
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}
