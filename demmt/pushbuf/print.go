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

// Print decodes words as a command stream located at gpuAddr. Every word is
// printed as a PB line and every method write is dispatched to the object it
// targets. It returns the target of a jump that ended the stream, or the
// address just past the last word.
func (d *Decoder) Print(ctx context.Context, words []uint32, gpuAddr uint64) uint64 {
	env := d.Env
	for _, w := range words {
		desc, next := d.Decode(ctx, w, true)
		if next != 0 {
			log.I(ctx, "decoding aborted, cmd: \"%s\", nextaddr: 0x%08x", desc, next)
			return next
		}
		if env.DecodePB {
			fmt.Fprintf(env.Out, "PB: 0x%08x %s", w, desc)
		}
		m := object.Method{
			Object:     d.Object(),
			Subchannel: d.Subchannel,
			Mthd:       d.Mthd,
			Data:       d.Data,
			Last:       d.Size == 0,
		}
		if d.HasData {
			object.Dispatch(ctx, env, m)
		}
		if env.DecodePB {
			fmt.Fprintln(env.Out)
		}
		if d.HasData {
			object.Finish(ctx, env, m)
		}
	}
	return gpuAddr + uint64(len(words))*4
}

// words returns count command words of b starting at GPU address addr. The
// range is cut at the end of the buffer image.
func words(ctx context.Context, b *buffer.Buffer, addr, count uint64) []uint32 {
	offset := addr - b.GPUStart
	have := uint64(len(b.Bytes()))
	if offset >= have {
		log.W(ctx, "gpu address 0x%x is outside the image of buffer %d", addr, b.ID)
		return nil
	}
	if offset+count*4 > have {
		log.W(ctx, "command range 0x%x+0x%x runs past the end of buffer %d", addr, count*4, b.ID)
		count = (have - offset) / 4
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = b.Word(offset + uint64(i)*4)
	}
	return out
}

// PrintRange decodes count words of b starting at GPU address addr.
func (d *Decoder) PrintRange(ctx context.Context, b *buffer.Buffer, addr, count uint64) uint64 {
	return d.Print(ctx, words(ctx, b, addr, count), addr)
}
