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

package codegen

import (
	"github.com/gx-org/symgraph/graph"
	"gopkg.in/yaml.v2"
)

type (
	yamlInstr struct {
		Op     string  `yaml:"op"`
		Args   []int   `yaml:"args,flow,omitempty"`
		Result int     `yaml:"result"`
		Value  float64 `yaml:"value,omitempty"`
		Load   []int   `yaml:"load,flow,omitempty"`
	}

	yamlOutput struct {
		Name   string `yaml:"name"`
		Rows   int    `yaml:"rows"`
		Cols   int    `yaml:"cols"`
		ColInd []int  `yaml:"colind,flow"`
		Row    []int  `yaml:"row,flow"`
		Slots  []int  `yaml:"slots,flow"`
	}

	yamlProgram struct {
		Name    string       `yaml:"name"`
		Inputs  []string     `yaml:"inputs,flow"`
		Slots   int          `yaml:"slots"`
		Instrs  []yamlInstr  `yaml:"instructions"`
		Outputs []yamlOutput `yaml:"outputs"`
	}
)

var _ yaml.Marshaler = (*Program)(nil)

// MarshalYAML returns a YAML representation of the program.
func (p *Program) MarshalYAML() (any, error) {
	yp := yamlProgram{
		Name:  p.name,
		Slots: p.numSlots,
	}
	for _, in := range p.inputs {
		yp.Inputs = append(yp.Inputs, in.Name())
	}
	for _, instr := range p.instrs {
		yi := yamlInstr{
			Op:     instr.Op.String(),
			Args:   instr.Args,
			Result: instr.Result,
			Value:  instr.Value,
		}
		if instr.Op == graph.OpGetNonzeros {
			yi.Load = []int{instr.Input, instr.NZ}
		}
		yp.Instrs = append(yp.Instrs, yi)
	}
	for i, out := range p.outputs {
		yp.Outputs = append(yp.Outputs, yamlOutput{
			Name:   p.outNames[i],
			Rows:   out.Sparsity.Rows(),
			Cols:   out.Sparsity.Cols(),
			ColInd: out.Sparsity.ColInd(),
			Row:    out.Sparsity.Row(),
			Slots:  out.Slots,
		})
	}
	return yp, nil
}
