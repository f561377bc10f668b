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

package pushbuf

import (
	"context"
	"fmt"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/object"
)

// DMAPut is the offset of the DMA_PUT register in a USER buffer.
const DMAPut = 0x40

// User decodes a legacy ring driven by writes to DMA_PUT. The commands
// between the previous and the new put pointer are decoded on every change.
type User struct {
	PB *Decoder

	prevPut uint64
	put     uint64
	last    *buffer.Buffer
}

// NewUser returns a USER ring decoder for fifo.
func NewUser(fifo *object.Fifo, env *object.Env) *User {
	return &User{PB: NewDecoder(fifo, env)}
}

// Decode consumes the word written at offset addr of the USER buffer and
// returns its description.
func (u *User) Decode(ctx context.Context, addr uint64, data uint32) string {
	if u.last != nil && u.prevPut != u.put {
		u.print(ctx)
	}
	if addr != DMAPut {
		return ""
	}
	put := uint64(data)
	b := u.last
	if b != nil && (put < b.GPUStart || put >= b.GPUStart+b.Length) {
		b = nil
	}
	if b == nil {
		if b = u.PB.Env.FindGPU(put); b != nil {
			u.prevPut = b.GPUStart
		}
	}
	u.last = b
	if b != nil {
		u.put = put
	}

	desc := fmt.Sprintf("DMA_PUT: 0x%08x", data)
	switch {
	case b == nil:
		return desc + ", not found!"
	case b.ID == buffer.GPUOnly:
		u.last = nil
		return desc + ", found, but disabled"
	}
	return desc + fmt.Sprintf(", buffer id: %d", b.ID)
}

// End decodes the commands up to the last put pointer.
func (u *User) End(ctx context.Context) {
	if u.last != nil && u.prevPut != u.put {
		u.print(ctx)
	}
}

func (u *User) print(ctx context.Context) {
	b := u.last
	end := b.GPUStart + b.Length
	if u.put < u.prevPut {
		next := u.PB.PrintRange(ctx, b, u.prevPut, (end-u.prevPut)/4)
		if u.put >= b.GPUStart && u.put < end &&
			next >= b.GPUStart && next < end &&
			next <= u.put && next <= 0xffffffff {
			log.I(ctx, "pushbuffer wraparound")
			u.prevPut = next
		} else {
			log.I(ctx, "confused, dma_put: 0x%x, nextaddr: 0x%x, buffer: <0x%08x,0x%08x>, resetting state",
				u.put, next, b.GPUStart, end)
			u.last = nil
			u.prevPut = u.put
			return
		}
	}
	u.PB.PrintRange(ctx, b, u.prevPut, (u.put-u.prevPut)/4)
	u.prevPut = u.put
}
