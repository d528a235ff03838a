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
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"github.com/gx-org/symgraph/api/options"
	"github.com/gx-org/symgraph/base/errs"
)

// Registry is a table of solver plugins.
type Registry struct {
	mut       sync.Mutex
	factories map[string]Factory
	instances []Plugin
}

// Default is the registry of the process.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register makes a plugin available under a name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mut.Lock()
	defer r.mut.Unlock()
	if name == "" {
		return errs.Pluginf("cannot register a solver without a name")
	}
	if factory == nil {
		return errs.Pluginf("cannot register solver %s: nil factory", name)
	}
	if _, exists := r.factories[name]; exists {
		return errs.Pluginf("a solver named %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Unregister removes a plugin from the registry.
// Instances of the plugin already created are not closed.
func (r *Registry) Unregister(name string) error {
	r.mut.Lock()
	defer r.mut.Unlock()
	if _, exists := r.factories[name]; !exists {
		return errs.Pluginf("no solver named %s registered", name)
	}
	delete(r.factories, name)
	return nil
}

// Names returns the names of the registered plugins in sorted order.
func (r *Registry) Names() []string {
	r.mut.Lock()
	defer r.mut.Unlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Lookup instantiates and initializes a plugin.
// The registry closes the plugin when the registry is closed.
func (r *Registry) Lookup(name string, init *Init) (Plugin, error) {
	r.mut.Lock()
	factory, exists := r.factories[name]
	r.mut.Unlock()
	if !exists {
		return nil, errs.Pluginf("solver %s not found: available solvers are %v", name, r.Names())
	}
	if init == nil {
		init = &Init{}
	}
	if init.Logger == nil {
		init.Logger = zap.NewNop()
	}
	plugin := factory()
	if err := plugin.Init(init); err != nil {
		return nil, errors.Wrapf(errs.ErrInvalidOption, "cannot initialize solver %s: %v", name, err)
	}
	r.mut.Lock()
	defer r.mut.Unlock()
	r.instances = append(r.instances, plugin)
	return plugin, nil
}

// Close closes all the plugins instantiated by the registry.
func (r *Registry) Close() error {
	r.mut.Lock()
	instances := r.instances
	r.instances = nil
	r.mut.Unlock()
	var err error
	for _, plugin := range instances {
		err = multierr.Append(err, plugin.Close())
	}
	return err
}

// Solve instantiates a plugin and solves a problem with it.
func (r *Registry) Solve(ctx context.Context, name string, p Problem, x0 []float64, opts options.Dict) (*Solution, error) {
	nlp, err := NewNLP(p)
	if err != nil {
		return nil, err
	}
	if len(x0) != nlp.NumVars() {
		return nil, errs.Dimensionf("initial guess has %d elements but the problem has %d variables", len(x0), nlp.NumVars())
	}
	plugin, err := r.Lookup(name, &Init{Options: opts})
	if err != nil {
		return nil, err
	}
	return plugin.Solve(ctx, nlp, x0)
}
