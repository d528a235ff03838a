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

package solver_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/solver"
)

// descent is a projected gradient descent used to exercise the callbacks.
type descent struct {
	steps  int
	closed *int
}

func (d *descent) Init(init *solver.Init) error {
	d.steps = 200
	if v, ok := init.Options["steps"]; ok {
		steps, ok := v.(int)
		if !ok {
			return errors.New("steps must be an integer")
		}
		d.steps = steps
	}
	return nil
}

func (d *descent) Solve(ctx context.Context, nlp *solver.NLP, x0 []float64) (*solver.Solution, error) {
	b := nlp.Bounds()
	x := append([]float64{}, x0...)
	for range d.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grad, err := nlp.Gradient(x)
		if err != nil {
			return nil, err
		}
		for i := range x {
			x[i] = min(max(x[i]-0.25*grad[i], b.LBX[i]), b.UBX[i])
		}
	}
	f, err := nlp.Objective(x)
	if err != nil {
		return nil, err
	}
	g, err := nlp.Constraints(x)
	if err != nil {
		return nil, err
	}
	return &solver.Solution{X: x, F: f, G: g, Stats: map[string]any{"steps": d.steps}}, nil
}

func (d *descent) Close() error {
	if d.closed != nil {
		*d.closed++
	}
	return nil
}

func must(t *testing.T) func(*graph.Node, error) *graph.Node {
	return func(n *graph.Node, err error) *graph.Node {
		t.Helper()
		require.NoError(t, err)
		return n
	}
}

func problem(t *testing.T) solver.Problem {
	x := graph.Sym("x", 2, 1)
	x0 := must(t)(graph.Element(x, 0, 0))
	x1 := must(t)(graph.Element(x, 1, 0))
	obj := must(t)(graph.Add(
		graph.Sq(must(t)(graph.Sub(x0, graph.Scalar(1)))),
		graph.Sq(must(t)(graph.Add(x1, graph.Scalar(2)))),
	))
	f, err := function.New("f", []*graph.Node{x}, []*graph.Node{obj}, nil)
	require.NoError(t, err)
	z := graph.Sym("z", 2, 1)
	sum := graph.Sum(z)
	g, err := function.New("g", []*graph.Node{z}, []*graph.Node{sum}, nil)
	require.NoError(t, err)
	return solver.Problem{F: f, G: g, Bounds: solver.Bounds{LBX: []float64{math.Inf(-1), -1}}}
}

func TestRegistry(t *testing.T) {
	r := solver.NewRegistry()
	closed := 0
	factory := func() solver.Plugin { return &descent{closed: &closed} }
	require.NoError(t, r.Register("descent", factory))
	require.NoError(t, r.Register("another", factory))
	require.ErrorIs(t, r.Register("descent", factory), errs.ErrPlugin)
	require.ErrorIs(t, r.Register("", factory), errs.ErrPlugin)
	require.Equal(t, []string{"another", "descent"}, r.Names())

	_, err := r.Lookup("missing", nil)
	require.ErrorIs(t, err, errs.ErrPlugin)
	_, err = r.Lookup("descent", nil)
	require.NoError(t, err)
	_, err = r.Lookup("another", &solver.Init{})
	require.NoError(t, err)
	_, err = r.Lookup("descent", &solver.Init{Options: map[string]any{"steps": "many"}})
	require.ErrorIs(t, err, errs.ErrInvalidOption)

	require.NoError(t, r.Unregister("another"))
	require.ErrorIs(t, r.Unregister("another"), errs.ErrPlugin)
	require.Equal(t, []string{"descent"}, r.Names())

	require.NoError(t, r.Close())
	require.Equal(t, 2, closed)
	require.NoError(t, r.Close())
	require.Equal(t, 2, closed)
}

func TestNLP(t *testing.T) {
	nlp, err := solver.NewNLP(problem(t))
	require.NoError(t, err)
	require.Equal(t, 2, nlp.NumVars())
	require.Equal(t, 1, nlp.NumConstraints())
	b := nlp.Bounds()
	require.Equal(t, []float64{math.Inf(-1), -1}, b.LBX)
	require.Equal(t, []float64{math.Inf(1), math.Inf(1)}, b.UBX)
	require.Equal(t, []float64{math.Inf(-1)}, b.LBG)

	x := []float64{3, 4}
	f, err := nlp.Objective(x)
	require.NoError(t, err)
	require.InDelta(t, 40, f, 1e-12)
	grad, err := nlp.Gradient(x)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{4, 12}, grad, 1e-12)
	g, err := nlp.Constraints(x)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{7}, g, 1e-12)

	jac, err := nlp.Jacobian(x)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 1}}, jac.Dense())
	jsp, err := nlp.JacobianSparsity()
	require.NoError(t, err)
	require.True(t, jsp.Equal(jac.Sparsity()))

	hess, err := nlp.Hessian(x, []float64{2}, 0.5)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 0}, {0, 1}}, hess.Dense())
	hsp, err := nlp.HessianSparsity()
	require.NoError(t, err)
	require.True(t, hsp.IsSymmetric())

	_, err = nlp.Objective([]float64{1})
	require.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func TestNLPErrors(t *testing.T) {
	p := problem(t)
	p.Bounds.UBG = []float64{1, 2}
	_, err := solver.NewNLP(p)
	require.True(t, errors.Is(err, errs.ErrDimensionMismatch), "got %v", err)

	x := graph.Sym("x", 2, 1)
	vec, err := function.New("vec", []*graph.Node{x}, []*graph.Node{x}, nil)
	require.NoError(t, err)
	_, err = solver.NewNLP(solver.Problem{F: vec})
	require.True(t, errors.Is(err, errs.ErrDimensionMismatch), "got %v", err)

	_, err = solver.NewNLP(solver.Problem{})
	require.Error(t, err)
}

func TestSolve(t *testing.T) {
	r := solver.NewRegistry()
	require.NoError(t, r.Register("descent", func() solver.Plugin { return &descent{} }))
	defer r.Close()

	sol, err := r.Solve(context.Background(), "descent", problem(t), []float64{0, 0}, nil)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{1, -1}, sol.X, 1e-9)
	require.InDelta(t, 1, sol.F, 1e-9)
	require.InDeltaSlice(t, []float64{0}, sol.G, 1e-9)

	_, err = r.Solve(context.Background(), "descent", problem(t), []float64{0}, nil)
	require.True(t, errors.Is(err, errs.ErrDimensionMismatch), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Solve(ctx, "descent", problem(t), []float64{0, 0}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
