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

package function

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"github.com/gx-org/symgraph/codegen"
	"github.com/gx-org/symgraph/lower"
)

// Expand returns a function computing the same outputs as f with a graph
// made only of scalar operations.
func (f *Function) Expand(name string) (*Function, error) {
	if name == "" {
		name = "expand_" + f.name
	}
	outs, err := lower.Expand(f.plan.Outputs())
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", f.name)
	}
	ef, err := f.derive(name, outs, f.outNames)
	if err != nil {
		return nil, err
	}
	f.log().Debug("function expanded",
		zap.String("function", f.name),
		zap.Int("nodes", f.plan.NumNodes()),
		zap.Int("expanded", ef.plan.NumNodes()),
	)
	return ef, nil
}

// IsScalar returns true if all the operations of f are scalar operations.
func (f *Function) IsScalar() bool {
	return lower.IsScalar(f.plan.Outputs())
}

// Program returns the scalar program computing the outputs of f.
// The program is compiled once.
func (f *Function) Program() (*codegen.Program, error) {
	return f.programs.LoadOrCompute(f.name, func() (*codegen.Program, error) {
		prog, err := codegen.Compile(f.name, f.plan.Inputs(), f.plan.Outputs())
		if err != nil {
			return nil, errors.WithMessagef(err, "function %s", f.name)
		}
		if err := prog.SetOutputNames(f.outNames); err != nil {
			return nil, err
		}
		f.log().Debug("function compiled",
			zap.String("function", f.name),
			zap.Int("instructions", len(prog.Instructions())),
			zap.Int("slots", prog.NumSlots()),
		)
		return prog, nil
	})
}
