// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package object

import (
	"context"

	"github.com/envytools/demmt/core/log"
)

// benignDestroys are handle suffixes the blob destroys without ever creating.
var benignDestroys = map[uint32]bool{
	0x0014: true, 0x0202: true, 0x0301: true, 0x0308: true, 0x0360: true,
	0x0371: true, 0x1e00: true, 0x1e01: true, 0x1e10: true, 0x1e20: true,
}

// Registry owns the fifos of a trace and the decoders of each class.
type Registry struct {
	Chipset uint32
	// Nouveau is set for traces of the open source driver, which never
	// reports object handles.
	Nouveau bool

	factories map[uint32]Factory
	// off holds per-class overrides of allOff.
	off    map[uint32]bool
	allOff bool
	fifos  map[uint32]*Fifo
	order  []*Fifo
	owner  map[uint32]*Fifo
	def    *Fifo
}

// NewRegistry returns a registry with the builtin class decoders.
func NewRegistry(chipset uint32) *Registry {
	r := &Registry{
		Chipset:   chipset,
		factories: map[uint32]Factory{},
		off:       map[uint32]bool{},
		fifos:     map[uint32]*Fifo{},
		owner:     map[uint32]*Fifo{},
	}
	registerBuiltins(r)
	return r
}

// Register installs the decoder factory of class.
func (r *Registry) Register(class uint32, f Factory) { r.factories[class] = f }

// SetEnabled turns the decoder of class on or off. Objects of a disabled
// class are still tracked but their methods are not interpreted.
func (r *Registry) SetEnabled(class uint32, enabled bool) {
	r.off[class] = !enabled
}

// SetAllEnabled turns every class decoder on or off.
func (r *Registry) SetAllEnabled(enabled bool) {
	r.allOff = !enabled
	r.off = map[uint32]bool{}
}

func (r *Registry) factory(class uint32) Factory {
	off, ok := r.off[class]
	if !ok {
		off = r.allOff
	}
	if off {
		return nil
	}
	return r.factories[class]
}

// Default returns the fifo used when the trace never creates one.
func (r *Registry) Default() *Fifo {
	if r.def == nil {
		r.def = r.newFifo(0, 0)
	}
	return r.def
}

func (r *Registry) newFifo(handle, class uint32) *Fifo {
	f := &Fifo{Handle: handle, Class: class, Chipset: r.Chipset, registry: r}
	return f
}

// SetChipset updates the chipset of the registry and of every fifo.
func (r *Registry) SetChipset(chipset uint32) {
	r.Chipset = chipset
	for _, f := range r.order {
		f.Chipset = chipset
	}
	if r.def != nil {
		r.def.Chipset = chipset
	}
}

// Fifo returns the fifo with handle or nil.
func (r *Registry) Fifo(handle uint32) *Fifo { return r.fifos[handle] }

// Fifos returns all fifos in creation order.
func (r *Registry) Fifos() []*Fifo { return r.order }

// Owner returns the fifo holding the object with handle.
func (r *Registry) Owner(handle uint32) *Fifo { return r.owner[handle] }

// Active returns the fifo command streams are decoded against: the most
// recently created one, or the default fifo.
func (r *Registry) Active() *Fifo {
	if n := len(r.order); n > 0 {
		return r.order[n-1]
	}
	return r.Default()
}

// Create records the creation of an object. Channel classes create a new
// fifo; other objects are added to the parent fifo, or to the default one if
// the parent is not a fifo.
func (r *Registry) Create(ctx context.Context, parent, handle, class uint32) *Object {
	switch {
	case IsFifoClass(class):
		f := r.newFifo(handle, class)
		r.fifos[handle] = f
		r.order = append(r.order, f)
		log.D(ctx, "fifo 0x%08x created (class: 0x%04x)", handle, class)
		return nil
	case isDeviceClass(class):
		return nil
	}
	f := r.fifos[parent]
	if f == nil {
		f = r.Active()
	}
	return f.Add(handle, class)
}

// Destroy records the destruction of the object or fifo with handle.
func (r *Registry) Destroy(ctx context.Context, parent, handle uint32) {
	if f := r.fifos[handle]; f != nil {
		delete(r.fifos, handle)
		for i, o := range r.order {
			if o == f {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		for _, o := range f.objects {
			delete(r.owner, o.Handle)
		}
		return
	}
	if f := r.owner[handle]; f != nil && f.Remove(handle) {
		return
	}
	if f := r.fifos[parent]; f != nil && f.Remove(handle) {
		return
	}
	if benignDestroys[handle&0xffff] {
		return
	}
	log.E(ctx, "trying to destroy object 0x%08x / 0x%08x which does not exist!", parent, handle)
}
