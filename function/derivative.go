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
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"github.com/gx-org/symgraph/ad"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/internal/metrics"
	"github.com/gx-org/symgraph/sparsity"
)

func (f *Function) ports(oind, iind int) error {
	if err := errs.CheckIndex("output", oind, f.NumOut()); err != nil {
		return errors.WithMessagef(err, "function %s", f.name)
	}
	if err := errs.CheckIndex("input", iind, f.NumIn()); err != nil {
		return errors.WithMessagef(err, "function %s", f.name)
	}
	return nil
}

// JacSparsity returns the pattern of the Jacobian of an output with
// respect to an input. The pattern is computed without evaluating the function.
func (f *Function) JacSparsity(oind, iind int) (*sparsity.Pattern, error) {
	if err := f.ports(oind, iind); err != nil {
		return nil, err
	}
	return f.patterns.LoadOrCompute(derivedKey{kind: "jacsparsity", out: oind, in: iind}, func() (*sparsity.Pattern, error) {
		sp, err := ad.JacSparsity(f.plan.Outputs()[oind], f.plan.Inputs()[iind])
		if err != nil {
			return nil, errors.WithMessagef(err, "function %s", f.name)
		}
		return sp, nil
	})
}

// Jacobian returns a function computing the Jacobian of an output with
// respect to an input. The Jacobian is the first output of the returned
// function, followed by all the outputs of f. The Jacobian of a
// m x n output with respect to a p x q input is a (mn) x (pq) matrix.
//
// Functions are built once: later calls return the same function.
func (f *Function) Jacobian(oind, iind int) (*Function, error) {
	if err := f.ports(oind, iind); err != nil {
		return nil, err
	}
	return f.derived.LoadOrCompute(derivedKey{kind: "jacobian", out: oind, in: iind}, func() (*Function, error) {
		out, in := f.plan.Outputs()[oind], f.plan.Inputs()[iind]
		jac, err := ad.Jacobian(out, in, f.opts.Weight())
		if err != nil {
			return nil, errors.WithMessagef(err, "function %s: jacobian of %s with respect to %s", f.name, f.outNames[oind], f.inNames[iind])
		}
		jacName := fmt.Sprintf("jac_%s_%s", f.outNames[oind], f.inNames[iind])
		jf, err := f.derive("jac_"+f.name, append([]*graph.Node{jac}, f.plan.Outputs()...), append([]string{jacName}, f.outNames...))
		if err != nil {
			return nil, err
		}
		metrics.Derivative("jacobian")
		f.log().Debug("jacobian built",
			zap.String("function", f.name),
			zap.String("output", f.outNames[oind]),
			zap.String("input", f.inNames[iind]),
			zap.Stringer("sparsity", jac.Sparsity()),
			zap.Int("nodes", jf.plan.NumNodes()),
		)
		return jf, nil
	})
}

// Hessian returns a function computing the Hessian of a 1x1 output with
// respect to an input. The outputs of the returned function are the
// Hessian, the gradient and the output itself. The pattern of the Hessian
// is symmetric.
//
// Functions are built once: later calls return the same function.
func (f *Function) Hessian(oind, iind int) (*Function, error) {
	if err := f.ports(oind, iind); err != nil {
		return nil, err
	}
	return f.derived.LoadOrCompute(derivedKey{kind: "hessian", out: oind, in: iind}, func() (*Function, error) {
		out, in := f.plan.Outputs()[oind], f.plan.Inputs()[iind]
		hess, grad, err := ad.Hessian(out, in, f.opts.Weight())
		if err != nil {
			return nil, errors.WithMessagef(err, "function %s: hessian of %s with respect to %s", f.name, f.outNames[oind], f.inNames[iind])
		}
		outName, inName := f.outNames[oind], f.inNames[iind]
		hf, err := f.derive("hess_"+f.name, []*graph.Node{hess, grad, out}, []string{
			fmt.Sprintf("hess_%s_%s_%s", outName, inName, inName),
			fmt.Sprintf("grad_%s_%s", outName, inName),
			outName,
		})
		if err != nil {
			return nil, err
		}
		metrics.Derivative("hessian")
		f.log().Debug("hessian built",
			zap.String("function", f.name),
			zap.String("output", outName),
			zap.String("input", inName),
			zap.Stringer("sparsity", hess.Sparsity()),
			zap.Int("nodes", hf.plan.NumNodes()),
		)
		return hf, nil
	})
}
