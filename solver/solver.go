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

// Package solver connects functions to external numerical solvers.
//
// A solver is a plugin registered under a name in a Registry. A plugin
// receives a nonlinear program through an NLP, which evaluates the
// objective, the constraints and their derivatives from functions.
// No solving algorithm is implemented in this package.
package solver

import (
	"context"

	"go.uber.org/zap"
	"github.com/gx-org/symgraph/api/options"
)

type (
	// Solution returned by a solver.
	Solution struct {
		// X is the value of the decision variables.
		X []float64
		// F is the value of the objective at X.
		F float64
		// G is the value of the constraints at X.
		G []float64
		// LamX are the multipliers of the bounds on X.
		LamX []float64
		// LamG are the multipliers of the constraints.
		LamG []float64
		// Stats reported by the solver.
		Stats map[string]any
	}

	// Init is given to a plugin when it is instantiated.
	Init struct {
		// Options of the plugin. Every plugin validates its own options.
		Options options.Dict
		// Logger used by the plugin.
		Logger *zap.Logger
	}

	// Plugin is a numerical solver.
	Plugin interface {
		// Init initializes the plugin before its first use.
		Init(*Init) error
		// Solve solves a nonlinear program starting from x0.
		// It must return as soon as possible if the context is done.
		Solve(ctx context.Context, nlp *NLP, x0 []float64) (*Solution, error)
		// Close releases the resources of the plugin.
		Close() error
	}

	// Factory instantiates a plugin.
	Factory func() Plugin
)
