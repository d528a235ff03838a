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
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// pool runs tasks on a fixed number of worker goroutines.
type pool struct {
	wg    sync.WaitGroup
	tasks chan int
	errs  []error
	run   func(int) error
}

func newPool(workers, numTasks int, run func(int) error) *pool {
	p := &pool{
		tasks: make(chan int),
		errs:  make([]error, numTasks),
		run:   run,
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		// Every task owns its error slot.
		if err := p.run(task); err != nil {
			p.errs[task] = errors.WithMessagef(err, "repetition %d", task)
		}
	}
}

func (p *pool) close() error {
	close(p.tasks)
	p.wg.Wait()
	return multierr.Combine(p.errs...)
}

// parallel runs n tasks with a pool of workers.
// The errors of all the failing tasks are returned in task order.
func parallel(workers, n int, run func(int) error) error {
	p := newPool(workers, n, run)
	for i := range n {
		p.tasks <- i
	}
	return p.close()
}

// serial runs n tasks in order and stops at the first error.
func serial(n int, run func(int) error) error {
	for i := range n {
		if err := run(i); err != nil {
			return errors.WithMessagef(err, "repetition %d", i)
		}
	}
	return nil
}
