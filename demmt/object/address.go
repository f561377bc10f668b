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
	"fmt"

	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/color"
)

// AddressPair describes a pair of methods that together carry a 40-bit GPU
// address. Length > 1 describes an array of pairs spaced Stride bytes apart.
type AddressPair struct {
	Name   string
	Field  string
	High   uint32
	Low    uint32
	Length uint32
	Stride uint32
	// CheckOffset is added to the address for a second lookup before the
	// address is reported as unmapped. Limit registers point one byte
	// past their buffer.
	CheckOffset int64
}

func (p AddressPair) count() uint32 {
	if p.Length == 0 {
		return 1
	}
	return p.Length
}

func (p AddressPair) name(i uint32, half string) string {
	field := half
	if p.Field != "" {
		field = p.Field + "_" + half
	}
	if p.Length > 1 {
		return arrayName(p.Name, i, field)
	}
	if p.Name == "" {
		return field
	}
	return p.Name + "_" + field
}

type addressSlot struct {
	address uint64
	mapped  *buffer.Buffer
	prev    *buffer.Buffer
}

// Addresses tracks the GPU addresses an object was given and annotates the
// buffers they point into.
type Addresses struct {
	pairs []AddressPair
	slots [][]addressSlot
}

// NewAddresses returns the address tracker for pairs.
func NewAddresses(pairs ...AddressPair) *Addresses {
	a := &Addresses{pairs: pairs, slots: make([][]addressSlot, len(pairs))}
	for i, p := range pairs {
		a.slots[i] = make([]addressSlot, p.count())
	}
	return a
}

// find returns the pair index, the element and whether mthd is the high half.
func (a *Addresses) find(mthd uint32) (int, uint32, bool, bool) {
	for i, p := range a.pairs {
		stride := p.Stride
		for j := uint32(0); j < p.count(); j++ {
			switch mthd {
			case p.High + j*stride:
				return i, j, true, true
			case p.Low + j*stride:
				return i, j, false, true
			}
			if stride == 0 {
				break
			}
		}
	}
	return 0, 0, false, false
}

// MethodName names the address methods.
func (a *Addresses) MethodName(mthd uint32) string {
	i, j, high, ok := a.find(mthd)
	if !ok {
		return ""
	}
	if high {
		return a.pairs[i].name(j, "ADDRESS_HIGH")
	}
	return a.pairs[i].name(j, "ADDRESS_LOW")
}

// IsLow returns true if mthd is the low half of an address pair.
func (a *Addresses) IsLow(mthd uint32) bool {
	_, _, high, ok := a.find(mthd)
	return ok && !high
}

// Address returns the last address assembled for mthd, which must name either
// half of a pair.
func (a *Addresses) Address(mthd uint32) uint64 {
	i, j, _, ok := a.find(mthd)
	if !ok {
		return 0
	}
	return a.slots[i][j].address
}

// Mapped returns the buffer the address of mthd was found in.
func (a *Addresses) Mapped(mthd uint32) *buffer.Buffer {
	i, j, _, ok := a.find(mthd)
	if !ok {
		return nil
	}
	return a.slots[i][j].mapped
}

// Terse handles m if it is an address method and reports whether it did.
func (a *Addresses) Terse(ctx context.Context, env *Env, m Method) bool {
	i, j, high, ok := a.find(m.Mthd)
	if !ok {
		return false
	}
	s := &a.slots[i][j]
	if high {
		s.address = uint64(m.Data) << 32
		s.prev, s.mapped = s.mapped, nil
		return true
	}
	obj, method, _ := Describe(m.Object, color.Plain, m.Mthd, m.Data)
	a.setLow(env, s, m.Data, obj+"."+method, a.pairs[i].CheckOffset)
	return true
}

func (a *Addresses) setLow(env *Env, s *addressSlot, data uint32, usage string, checkOffset int64) {
	p := env.Palette
	s.address |= uint64(data)
	if env.DecodePB {
		fmt.Fprintf(env.Out, " [0x%x]", s.address)
	}
	b := env.FindGPU(s.address)
	s.mapped = b

	if s.prev != nil {
		s.prev.ClearUsage(usage)
		s.prev = nil
	}

	if b != nil && env.DecodePB && s.address != b.GPUStart {
		fmt.Fprintf(env.Out, " [0x%x+0x%x]", b.GPUStart, s.address-b.GPUStart)
	}

	if b != nil && env.BufferUsage {
		b.SetUsage(usage, s.address)
		for _, u := range b.Usages {
			if env.DecodePB && u.Desc != "" && u.Desc != usage && s.address >= u.Address {
				fmt.Fprintf(env.Out, " [%s+0x%x]", p.Wrap(p.Name, u.Desc), s.address-u.Address)
			}
		}
	}

	if s.address != 0 && s.address != 0xffffffffff && b == nil {
		if checkOffset != 0 && env.FindGPU(uint64(int64(s.address)+checkOffset)) != nil {
			return
		}
		fmt.Fprintf(env.Out, " [%s]", p.Wrap(p.Err, "address not mapped, possible driver bug"))
	}
}
