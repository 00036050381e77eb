// Copyright 2026 The Serbo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serbo

import (
	"sync"

	"github.com/samber/lo"
)

// registry holds the instances of a Manager, in the order they were added.
// It never holds its lock while waiting on an instance.
type registry struct {
	names []string
	insts map[string]*Instance
	mx    sync.RWMutex
}

func newRegistry() *registry {
	return &registry{insts: make(map[string]*Instance)}
}

func (r *registry) insert(name string, inst *Instance) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if _, ok := r.insts[name]; ok {
		return ErrNameExists
	}
	r.insts[name] = inst
	r.names = append(r.names, name)
	return nil
}

// remove takes the instance out of the registry.  The instance must be
// Stopped; it is retired first, so that a Start racing with the removal
// either completes before it (and the removal fails), or fails itself.
func (r *registry) remove(name string) (*Instance, error) {
	inst, e := r.get(name)
	if e != nil {
		return nil, e
	}
	if e := inst.retire(); e != nil {
		return nil, e
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.insts[name] == inst {
		delete(r.insts, name)
		r.names = lo.Without(r.names, name)
	}
	return inst, nil
}

func (r *registry) get(name string) (*Instance, error) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	if inst, ok := r.insts[name]; ok {
		return inst, nil
	}
	return nil, ErrNotFound
}

func (r *registry) has(name string) bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	_, ok := r.insts[name]
	return ok
}

// list returns the names in insertion order.
func (r *registry) list() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]string(nil), r.names...)
}

// instances returns the instances in insertion order.
func (r *registry) instances() []*Instance {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return lo.Map(r.names, func(name string, _ int) *Instance {
		return r.insts[name]
	})
}

func (r *registry) len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.names)
}
