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
	"strings"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/object"
)

// IB decodes the indirect buffer ring. Each entry is a pair of words naming
// a command stream by GPU address and length. An entry is decoded when the
// next one starts or the ring region ends.
type IB struct {
	PB *Decoder

	Address    uint64
	Size       uint32
	NotMain    bool
	NoPrefetch bool
	Unk8       bool

	word   int
	target *buffer.Buffer
}

// NewIB returns an IB ring decoder for fifo.
func NewIB(fifo *object.Fifo, env *object.Env) *IB {
	return &IB{PB: NewDecoder(fifo, env)}
}

// Start resets the ring decoder at the start of a written region.
func (ib *IB) Start() {
	ib.PB.Reset()
	*ib = IB{PB: ib.PB}
}

// Decode consumes one ring word and returns its description.
func (ib *IB) Decode(ctx context.Context, data uint32) string {
	defer func() { ib.word++ }()
	if ib.word&1 == 0 {
		ib.flush(ctx)
		ib.Address = uint64(data &^ 3)
		if data&3 != 0 {
			log.I(ctx, "invalid ib entry, low2: %d", data&3)
		}
		return fmt.Sprintf("IB: addrlow: 0x%08x", ib.Address)
	}

	ib.Address |= uint64(data&0xff) << 32
	ib.Unk8 = (data>>8)&1 != 0
	ib.NotMain = (data>>9)&1 != 0
	ib.Size = (data & 0x7fffffff) >> 10
	ib.NoPrefetch = data>>31 != 0

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "IB: address: 0x%08x, size: %d", ib.Address, ib.Size)
	if ib.NotMain {
		sb.WriteString(", not_main")
	}
	if ib.NoPrefetch {
		sb.WriteString(", no_prefetch?")
	}
	if ib.Unk8 {
		sb.WriteString(", unk8")
	}
	ib.target = ib.PB.Env.FindGPU(ib.Address)
	switch b := ib.target; {
	case b == nil:
		sb.WriteString(", not found!")
	case b.ID == buffer.GPUOnly:
		sb.WriteString(", found, but cpu_mapping unknown")
	default:
		fmt.Fprintf(sb, ", buffer id: %d", b.ID)
	}
	return sb.String()
}

// End decodes the pending entry.
func (ib *IB) End(ctx context.Context) { ib.flush(ctx) }

func (ib *IB) flush(ctx context.Context) {
	b := ib.target
	if b == nil {
		return
	}
	ib.target = nil
	ib.PB.PrintRange(ctx, b, ib.Address, uint64(ib.Size))
}
