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

// Package metrics counts the work done by functions.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gx-org/symgraph/base/errs"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds all the metrics of the module.
	Registry = prometheus.NewRegistry()

	evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symgraph_evaluations_total",
			Help: "Number of numerical evaluations of functions.",
		},
		// path: graph, jit, map or mapaccum.
		[]string{"path"},
	)

	mapRepetitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symgraph_map_repetitions_total",
			Help: "Number of repetitions evaluated by map functions.",
		},
		// mode: serial, parallel or accumulate.
		[]string{"mode"},
	)

	derivatives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symgraph_derivatives_total",
			Help: "Number of derivative functions built.",
		},
		// kind: jacobian or hessian.
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(evaluations, mapRepetitions, derivatives)
}

// Evaluation counts an evaluation.
func Evaluation(path string) {
	evaluations.WithLabelValues(path).Inc()
}

// MapRepetitions counts the repetitions of a map evaluation.
func MapRepetitions(mode string, n int) {
	mapRepetitions.WithLabelValues(mode).Add(float64(n))
}

// Derivative counts a derivative function built.
func Derivative(kind string) {
	derivatives.WithLabelValues(kind).Inc()
}

// Dump writes the current value of all counters, one per line.
func Dump(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return errs.IOf("cannot gather metrics: %v", err)
	}
	var lines []string
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", family.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return errs.IOf("cannot write metrics: %v", err)
		}
	}
	return nil
}
