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

package buffer

import (
	"context"

	"github.com/envytools/demmt/demmt/region"
)

// DiscoverRing scans the pending writes of b for a pointer to the command
// ring. On IB-capable chipsets it looks for an IB entry that points at the
// start of a mapped buffer. Otherwise it looks for a DMA_PUT write at offset
// 0x40. It returns the type that was assigned to b, or 0 if nothing matched.
func (r *Registry) DiscoverRing(ctx context.Context, b *Buffer) Type {
	for _, reg := range b.Written.Regions() {
		if r.IBSupported {
			if r.discoverIB(b, reg) {
				return IB
			}
			continue
		}
		if b.Type == User {
			return 0
		}
		if r.discoverUser(b, reg) {
			return User
		}
	}
	return 0
}

func (r *Registry) discoverIB(b *Buffer, reg region.Region) bool {
	if reg.End-reg.Start < 8 {
		return false
	}
	w0, w1 := b.Word(reg.Start), b.Word(reg.Start+4)
	if w0 == 0 || w1 == 0 || w0&3 != 0 {
		return false
	}
	addr := uint64(w1&0xff)<<32 | uint64(w0&^3)
	size := 4 * uint64((w1&0x7fffffff)>>10)
	target := r.FindLive(func(c *Buffer) bool {
		return c.GPUStart != 0 && c.GPUStart == addr && c.Length >= size
	})
	if target == nil {
		return false
	}
	r.RingID = b.ID
	r.RingOffset = uint32(reg.Start)
	b.Type |= IB
	b.IBOffset = uint32(reg.Start)
	return true
}

func (r *Registry) discoverUser(b *Buffer, reg region.Region) bool {
	if reg.Start != 0x40 || reg.End < 0x44 {
		return false
	}
	addr := uint64(b.Word(0x40))
	if addr == 0 {
		return false
	}
	target := r.FindLive(func(c *Buffer) bool { return c.ContainsGPU(addr) })
	if target == nil {
		return false
	}
	r.RingID = b.ID
	b.Type = User
	return true
}
