// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statesync

import (
	"fmt"
	"sort"
	"sync"
)

// EngineRegistry holds the synchronizers running in the process, at most
// one per name.
type EngineRegistry struct {
	// engines is the engine registry
	engines map[string]*Engine
	// engine registry lock
	lock sync.RWMutex
}

var defaultRegistry = NewEngineRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *EngineRegistry {
	return defaultRegistry
}

// NewEngineRegistry returns an empty registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{engines: make(map[string]*Engine)}
}

// Register adds the engine, fails if an engine with the same name is
// already registered.
func (er *EngineRegistry) Register(engine *Engine) error {
	er.lock.Lock()
	defer er.lock.Unlock()

	if _, exists := er.engines[engine.Name()]; exists {
		return fmt.Errorf("synchronizer '%s' is already registered", engine.Name())
	}
	er.engines[engine.Name()] = engine
	return nil
}

// Unregister removes the engine with the given name.
func (er *EngineRegistry) Unregister(name string) error {
	er.lock.Lock()
	defer er.lock.Unlock()

	if _, exists := er.engines[name]; !exists {
		return fmt.Errorf("synchronizer '%s' is not registered", name)
	}
	delete(er.engines, name)
	return nil
}

// Lookup returns the engine with the given name.
func (er *EngineRegistry) Lookup(name string) (*Engine, bool) {
	er.lock.RLock()
	defer er.lock.RUnlock()

	engine, found := er.engines[name]
	return engine, found
}

// Names returns names of all registered engines in the sorted order.
func (er *EngineRegistry) Names() []string {
	er.lock.RLock()
	defer er.lock.RUnlock()

	var names []string
	for name := range er.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses returns the published status of every registered engine.
func (er *EngineRegistry) Statuses() []EngineStatus {
	var statuses []EngineStatus
	for _, name := range er.Names() {
		if engine, found := er.Lookup(name); found {
			statuses = append(statuses, engine.Status())
		}
	}
	return statuses
}
