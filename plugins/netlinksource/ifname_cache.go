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

package netlinksource

import (
	"sync/atomic"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/pkg/errors"
)

// DefaultIfNameCacheSize is the number of interfaces remembered by the resolver
// when the size is not configured.
const DefaultIfNameCacheSize = 1024

// LookupFunc asks the OS for the name of the interface with the given index.
type LookupFunc func(index int) (string, error)

// IfNameResolver translates interface indexes to names. Names learned
// from link events are cached, the OS is asked only on a cache miss.
type IfNameResolver struct {
	cache   *arc.ARCCache[int, string]
	lookup  LookupFunc
	lookups uint64
}

// NewIfNameResolver returns resolver with a cache of the given size.
// If <lookup> is nil, the interface is looked up in the current network
// namespace.
func NewIfNameResolver(size int, lookup LookupFunc) (*IfNameResolver, error) {
	if size <= 0 {
		size = DefaultIfNameCacheSize
	}
	cache, err := arc.NewARC[int, string](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create interface name cache")
	}
	if lookup == nil {
		lookup = lookupIfName
	}
	return &IfNameResolver{
		cache:  cache,
		lookup: lookup,
	}, nil
}

// Name returns the name of the interface with the given index.
func (r *IfNameResolver) Name(index int) (string, error) {
	if name, cached := r.cache.Get(index); cached {
		return name, nil
	}
	atomic.AddUint64(&r.lookups, 1)
	name, err := r.lookup(index)
	if err != nil {
		return "", NewInterfaceResolutionError(index, err)
	}
	if name == "" {
		return "", NewInterfaceResolutionError(index, errors.New("empty interface name"))
	}
	r.cache.Add(index, name)
	return name, nil
}

// Update records the name carried by a link event.
func (r *IfNameResolver) Update(index int, name string) {
	if index <= 0 || name == "" {
		return
	}
	r.cache.Add(index, name)
}

// Forget removes the interface from the cache (the index may get reused).
func (r *IfNameResolver) Forget(index int) {
	r.cache.Remove(index)
}

// Lookups returns the number of OS lookups performed so far.
func (r *IfNameResolver) Lookups() uint64 {
	return atomic.LoadUint64(&r.lookups)
}
