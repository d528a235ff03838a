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

// Package serial encodes functions into YAML documents and decodes them back.
//
// A document lists the nodes of the graph of a function in topological
// order. Decoding rebuilds the graph with the graph constructors: equal
// structures decode into the same nodes.
package serial

import (
	"github.com/pkg/errors"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
	"github.com/gx-org/symgraph/function"
	"github.com/gx-org/symgraph/graph"
	"github.com/gx-org/symgraph/matrix"
	"github.com/gx-org/symgraph/sparsity"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type (
	// Pattern is the compressed column representation of a sparsity pattern.
	Pattern struct {
		Rows   int   `yaml:"rows"`
		Cols   int   `yaml:"cols"`
		ColInd []int `yaml:"colind,flow"`
		Row    []int `yaml:"row,flow"`
	}

	// Node is a node of a graph.
	Node struct {
		Op       string    `yaml:"op"`
		Name     string    `yaml:"name,omitempty"`
		Args     []int     `yaml:"args,flow,omitempty"`
		Sparsity Pattern   `yaml:"sparsity"`
		Values   []float64 `yaml:"values,flow,omitempty"`
		Indices  []int     `yaml:"indices,flow,omitempty"`
		Terms    [][][]int `yaml:"terms,flow,omitempty"`
	}

	// Document is the representation of a function.
	Document struct {
		Name        string       `yaml:"name"`
		Inputs      []int        `yaml:"inputs,flow"`
		InputNames  []string     `yaml:"input_names,flow"`
		Outputs     []int        `yaml:"outputs,flow"`
		OutputNames []string     `yaml:"output_names,flow"`
		Options     options.Dict `yaml:"options,omitempty"`
		Nodes       []Node       `yaml:"nodes"`
	}
)

func toPattern(sp *sparsity.Pattern) Pattern {
	return Pattern{
		Rows:   sp.Rows(),
		Cols:   sp.Cols(),
		ColInd: sp.ColInd(),
		Row:    sp.Row(),
	}
}

func (p Pattern) pattern() (*sparsity.Pattern, error) {
	return sparsity.New(p.Rows, p.Cols, p.ColInd, p.Row)
}

func toNode(n *graph.Node, index map[*graph.Node]int) Node {
	node := Node{
		Op:       n.Op().String(),
		Name:     n.Name(),
		Sparsity: toPattern(n.Sparsity()),
	}
	for _, c := range n.Children() {
		node.Args = append(node.Args, index[c])
	}
	switch n.Op() {
	case graph.OpConst:
		node.Values = n.Value().NZ()
	case graph.OpGetNonzeros:
		node.Indices = n.Indices()
	case graph.OpAssemble:
		node.Terms = make([][][]int, len(n.Terms()))
		for k, refs := range n.Terms() {
			node.Terms[k] = make([][]int, len(refs))
			for i, ref := range refs {
				node.Terms[k][i] = []int{ref.Arg, ref.NZ}
			}
		}
	}
	return node
}

func encodeOptions(o options.Function) options.Dict {
	d := options.Dict{}
	if o.ADWeight != nil {
		d[options.KeyADWeight] = *o.ADWeight
	}
	if o.JIT {
		d[options.KeyJIT] = true
	}
	if o.Verbose {
		d[options.KeyVerbose] = true
	}
	return d
}

// Marshal returns the document of a function.
func Marshal(f *function.Function) *Document {
	roots := append(append([]*graph.Node{}, f.Outputs()...), f.Inputs()...)
	order := graph.Sort(roots)
	index := make(map[*graph.Node]int, len(order))
	doc := &Document{
		Name:        f.Name(),
		InputNames:  f.InputNames(),
		OutputNames: f.OutputNames(),
		Options:     encodeOptions(f.Options()),
	}
	for i, n := range order {
		index[n] = i
		doc.Nodes = append(doc.Nodes, toNode(n, index))
	}
	for _, in := range f.Inputs() {
		doc.Inputs = append(doc.Inputs, index[in])
	}
	for _, out := range f.Outputs() {
		doc.Outputs = append(doc.Outputs, index[out])
	}
	return doc
}

// Encode returns the YAML encoding of a function.
func Encode(f *function.Function) ([]byte, error) {
	data, err := yaml.Marshal(Marshal(f))
	if err != nil {
		return nil, errs.IOf("cannot encode function %s: %v", f.Name(), err)
	}
	return data, nil
}

func (doc *Document) node(i, at int, nodes []*graph.Node) (*graph.Node, error) {
	if i < 0 || i >= at {
		return nil, errs.Indexf("node %d refers to node %d which is not defined before", at, i)
	}
	return nodes[i], nil
}

func (doc *Document) build(at int, nodes []*graph.Node) (*graph.Node, error) {
	n := doc.Nodes[at]
	sp, err := n.Sparsity.pattern()
	if err != nil {
		return nil, err
	}
	op, ok := graph.ParseOp(n.Op)
	if !ok {
		return nil, errs.Graphf("unknown operation %q", n.Op)
	}
	switch op {
	case graph.OpSymbol:
		return graph.Symbol(n.Name, sp), nil
	case graph.OpConst:
		value, err := matrix.New(sp, n.Values)
		if err != nil {
			return nil, err
		}
		return graph.Const(value), nil
	}
	children := make([]*graph.Node, len(n.Args))
	for i, arg := range n.Args {
		if children[i], err = doc.node(arg, at, nodes); err != nil {
			return nil, err
		}
	}
	params := graph.Params{Sparsity: sp, Indices: n.Indices}
	for _, refs := range n.Terms {
		var term []matrix.Ref
		for _, ref := range refs {
			if len(ref) != 2 {
				return nil, errs.Graphf("invalid reference %v: want [argument, nonzero]", ref)
			}
			term = append(term, matrix.Ref{Arg: ref[0], NZ: ref[1]})
		}
		params.Terms = append(params.Terms, term)
	}
	if op == graph.OpAssemble && len(params.Terms) != sp.NNZ() {
		return nil, errs.Dimensionf("%d terms for %d nonzeros", len(params.Terms), sp.NNZ())
	}
	built, err := graph.Make(op, children, params)
	if err != nil {
		return nil, err
	}
	if !built.Sparsity().Equal(sp) {
		return nil, errs.Dimensionf("%s node has pattern %s but the document declares %s", op, built.Sparsity(), sp)
	}
	return built, nil
}

// Function builds the function of a document. The function logs into logger
// if not nil.
func (doc *Document) Function(logger *zap.Logger) (*function.Function, error) {
	nodes := make([]*graph.Node, len(doc.Nodes))
	for i := range doc.Nodes {
		var err error
		if nodes[i], err = doc.build(i, nodes); err != nil {
			return nil, errors.WithMessagef(err, "function %s: node %d", doc.Name, i)
		}
	}
	ports := func(ids []int) ([]*graph.Node, error) {
		ns := make([]*graph.Node, len(ids))
		for i, id := range ids {
			var err error
			if ns[i], err = doc.node(id, len(nodes), nodes); err != nil {
				return nil, errors.WithMessagef(err, "function %s", doc.Name)
			}
		}
		return ns, nil
	}
	inputs, err := ports(doc.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := ports(doc.Outputs)
	if err != nil {
		return nil, err
	}
	opts := doc.Options.Clone()
	if doc.InputNames != nil {
		opts[options.KeyInputScheme] = doc.InputNames
	}
	if doc.OutputNames != nil {
		opts[options.KeyOutputScheme] = doc.OutputNames
	}
	parsed, err := options.ParseFunction(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %s", doc.Name)
	}
	parsed.Logger = logger
	return function.Build(doc.Name, inputs, outputs, parsed)
}

// Decode builds a function from its YAML encoding.
func Decode(data []byte, logger *zap.Logger) (*function.Function, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errs.IOf("cannot decode function: %v", err)
	}
	return doc.Function(logger)
}
