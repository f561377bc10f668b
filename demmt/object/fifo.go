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
	"github.com/envytools/demmt/demmt/macro"
)

// Subchannels is the number of subchannels of a fifo.
const Subchannels = 8

// Fifo is a GPU execution context. It owns its objects, its subchannel
// bindings and its macro storage.
type Fifo struct {
	Handle  uint32
	Class   uint32
	Chipset uint32
	Macro   macro.Program

	registry *Registry
	objects  []*Object
	subchans [Subchannels]uint32
}

// Objects returns the objects of the fifo in creation order.
func (f *Fifo) Objects() []*Object { return f.objects }

// Add creates an object of class with handle in the fifo.
func (f *Fifo) Add(handle, class uint32) *Object {
	o := &Object{Handle: handle, Class: class, Desc: ClassName(class), Fifo: f}
	if f.registry != nil {
		if factory := f.registry.factory(class); factory != nil {
			o.Decoder = factory(o)
		}
		f.registry.owner[handle] = f
	}
	f.objects = append(f.objects, o)
	return o
}

// Remove deletes the object with handle. It returns false if there was none.
func (f *Fifo) Remove(handle uint32) bool {
	for i, o := range f.objects {
		if o.Handle == handle {
			f.objects = append(f.objects[:i], f.objects[i+1:]...)
			if f.registry != nil && f.registry.owner[handle] == f {
				delete(f.registry.owner, handle)
			}
			return true
		}
	}
	return false
}

// Get returns the object with the given handle or name.
func (f *Fifo) Get(handle uint32) *Object {
	if handle == 0 {
		return nil
	}
	for _, o := range f.objects {
		if o.Handle == handle {
			return o
		}
	}
	for _, o := range f.objects {
		if o.Name == handle {
			return o
		}
	}
	return nil
}

// SetName assigns the alternative handle name to the object with handle.
func (f *Fifo) SetName(ctx context.Context, handle, name uint32) bool {
	for _, o := range f.objects {
		if o.Handle == handle {
			o.Name = name
			return true
		}
	}
	log.E(ctx, "setting name 0x%08x of 0x%08x: no object", name, handle)
	return false
}

// Lookup returns the object with the given handle or name. On GF100 and later
// unknown handles are assumed to carry their class in the low 16 bits.
func (f *Fifo) Lookup(ctx context.Context, handle uint32) *Object {
	if o := f.Get(handle); o != nil || handle == 0 {
		return o
	}
	if f.Chipset < 0xc0 {
		return nil
	}
	if f.registry == nil || !f.registry.Nouveau {
		log.E(ctx, "Guessing handle 0x%08x, driver forgot to call NVRM_MTHD_FIFO_IB_OBJECT_INFO?", handle)
	}
	return f.Add(handle, handle&0xffff)
}

// Subchannel returns the object bound to subchannel i, or nil if nothing is
// bound or the bound object was destroyed.
func (f *Fifo) Subchannel(i int) *Object {
	h := f.subchans[i]
	if h == 0 {
		return nil
	}
	for _, o := range f.objects {
		if o.Handle == h {
			return o
		}
	}
	return nil
}

// Bind binds o to subchannel i. A nil o unbinds the subchannel.
func (f *Fifo) Bind(i int, o *Object) {
	if o == nil {
		f.subchans[i] = 0
		return
	}
	f.subchans[i] = o.Handle
}
