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

// Package buffer tracks the memory images of traced mappings and the CPU and
// GPU addresses they are known by.
package buffer

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/envytools/demmt/core/fault"
	"github.com/envytools/demmt/demmt/region"
)

const (
	// ErrNoSuchBuffer is returned for an event that names an unknown buffer id.
	ErrNoSuchBuffer = fault.Const("Buffer does not exist")
	// ErrWriteOutOfRange is returned for a write past the end of a buffer.
	ErrWriteOutOfRange = fault.Const("Write past the end of buffer")
)

// PageSize is the granularity mmap lengths are rounded up to.
const PageSize = 4096

// MaxUsages is the number of usage annotations kept per buffer.
const MaxUsages = 32

// GPUOnly is the id of a buffer that has a GPU address but no CPU mapping.
const GPUOnly = -1

// Type classifies the contents of a buffer.
type Type uint8

const (
	// Push buffers hold command stream words.
	Push Type = 1 << iota
	// IB buffers hold an indirect buffer ring from IBOffset onwards.
	IB
	// User buffers hold the legacy DMA_PUT pointer.
	User
)

func (t Type) String() string {
	parts := []string{}
	for _, n := range []struct {
		t    Type
		name string
	}{{Push, "PUSH"}, {IB, "IB"}, {User, "USER"}} {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Usage is a named use of an address inside a buffer.
type Usage struct {
	Desc    string
	Address uint64
}

// Buffer is the image of one traced memory mapping.
type Buffer struct {
	// ID is the trace id of the CPU mapping, or GPUOnly.
	ID int
	// Length is the size of the image in bytes.
	Length     uint64
	CPUStart   uint64
	GPUStart   uint64
	MmapOffset uint64
	// Data1 and Data2 correlate GPU side allocations with later mappings.
	Data1, Data2 uint64
	Type         Type
	// IBOffset is where the IB ring starts when Type includes IB.
	IBOffset uint32
	// Written holds the ranges written since the last flush.
	Written region.Set
	Usages  [MaxUsages]Usage
	// State is decode continuation state, owned by the command stream
	// decoder.
	State interface{}

	data    []byte
	gpuSpan uint64
}

// Bytes returns the image, allocating it on first use.
func (b *Buffer) Bytes() []byte {
	if uint64(len(b.data)) != b.Length {
		b.resize(b.Length)
	}
	return b.data
}

func (b *Buffer) resize(length uint64) {
	switch {
	case uint64(len(b.data)) == length:
	case uint64(cap(b.data)) >= length:
		old := len(b.data)
		b.data = b.data[:length]
		if int(length) > old {
			clear(b.data[old:])
		}
	default:
		grown := make([]byte, length)
		copy(grown, b.data)
		b.data = grown
	}
	b.Length = length
}

// Word returns the little-endian 32-bit word at offset.
func (b *Buffer) Word(offset uint64) uint32 {
	return binary.LittleEndian.Uint32(b.Bytes()[offset:])
}

// Half returns the little-endian 16-bit value at offset.
func (b *Buffer) Half(offset uint64) uint16 {
	return binary.LittleEndian.Uint16(b.Bytes()[offset:])
}

// Byte returns the byte at offset.
func (b *Buffer) Byte(offset uint64) uint8 { return b.Bytes()[offset] }

// ContainsGPU returns true if addr falls inside the GPU range of b.
func (b *Buffer) ContainsGPU(addr uint64) bool {
	return b.GPUStart != 0 && addr >= b.GPUStart && addr < b.GPUStart+b.Length
}

// SetUsage records desc as a use of addr. An existing usage with the same
// description is updated. It returns false if the table is full.
func (b *Buffer) SetUsage(desc string, addr uint64) bool {
	free := -1
	for i := range b.Usages {
		switch u := &b.Usages[i]; {
		case u.Desc == desc:
			u.Address = addr
			return true
		case u.Desc == "" && free < 0:
			free = i
		}
	}
	if free < 0 {
		return false
	}
	b.Usages[free] = Usage{Desc: desc, Address: addr}
	return true
}

// ClearUsage removes the usage named desc.
func (b *Buffer) ClearUsage(desc string) {
	for i := range b.Usages {
		if b.Usages[i].Desc == desc {
			b.Usages[i] = Usage{}
			return
		}
	}
}

func (b *Buffer) String() string {
	usages := []string{}
	for _, u := range b.Usages {
		if u.Desc != "" {
			usages = append(usages, u.Desc)
		}
	}
	return fmt.Sprintf("buffer %d, len: 0x%08x, mmap_offset: 0x%08x, cpu_addr: 0x%016x, gpu_addr: 0x%016x, "+
		"data1: 0x%08x, data2: 0x%08x, type: %v, ib_offset: 0x%08x, usage: %s",
		b.ID, b.Length, b.MmapOffset, b.CPUStart, b.GPUStart, b.Data1, b.Data2, b.Type, b.IBOffset,
		strings.Join(usages, ", "))
}
