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

// Package pushbuf decodes GPU command streams: plain pushbuffers, the
// indirect buffer ring and the legacy USER ring.
package pushbuf

import (
	"context"
	"fmt"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/object"
)

// Decoder is the pushbuffer state machine. It decodes one command word at a
// time against the subchannel table of Fifo.
type Decoder struct {
	Fifo *object.Fifo
	Env  *object.Env

	// Subchannel, Addr, Size and Incr describe the current command.
	Subchannel int
	Addr       uint32
	Size       uint32
	Incr       uint32
	// Invalid is set once the stream was found to be inconsistent with the
	// known subchannel bindings.
	Invalid bool
	// NextCommandOffset is the buffer offset the next command word is
	// expected at.
	NextCommandOffset uint64

	// Mthd and Data hold the method write carried by the last decoded word
	// when HasData is true.
	Mthd    uint32
	Data    uint32
	HasData bool

	long bool
}

// NewDecoder returns a decoder for streams of fifo.
func NewDecoder(fifo *object.Fifo, env *object.Env) *Decoder {
	return &Decoder{Fifo: fifo, Env: env}
}

// Reset returns the decoder to the start of a stream.
func (d *Decoder) Reset() { *d = Decoder{Fifo: d.Fifo, Env: d.Env} }

// Object returns the object bound to the current subchannel.
func (d *Decoder) Object() *object.Object { return d.Fifo.Subchannel(d.Subchannel) }

func (d *Decoder) chipset() uint32 { return d.Fifo.Chipset }

// Decode consumes one command word and returns its description. A non-zero
// address is returned when the word transfers control elsewhere, in which
// case decoding of the current stream should stop. With safe set, a
// subchannel that is rebound to a different object follows the new binding;
// otherwise the stream is marked invalid.
func (d *Decoder) Decode(ctx context.Context, data uint32, safe bool) (string, uint64) {
	d.HasData = false
	if d.Size != 0 {
		return d.method(ctx, data, safe), 0
	}
	if data == 0 && !d.long {
		return "NOP", 0
	}
	var desc string
	var next uint64
	var done bool
	if d.chipset() >= 0xc0 {
		desc, done = d.headerGF100(ctx, data)
	} else {
		desc, next, done = d.headerNV04(ctx, data)
	}
	if done {
		return desc, next
	}
	d.Mthd = d.Addr
	d.bindDefault(ctx)
	desc = d.header()
	if d.Object() == nil && d.Addr != 0 && !d.Invalid {
		log.I(ctx, "subchannel %d does not have bound object and first command does not bind it, marking this buffer invalid", d.Subchannel)
		d.Invalid = true
	}
	return desc, 0
}

// headerGF100 decodes a GF100 command header. It returns true if the word
// was fully handled.
func (d *Decoder) headerGF100(ctx context.Context, data uint32) (string, bool) {
	mode := data >> 29
	d.Addr = (data & 0x1fff) << 2
	d.Subchannel = int(data>>13) & 7
	d.Size = (data >> 16) & 0x1fff
	switch mode {
	case 3:
		d.Incr = 0
	case 5:
		d.Incr = 1
	case 1:
		d.Incr = d.Size
	case 4:
		d.Mthd, d.Data, d.HasData = d.Addr, d.Size, true
		d.Size = 0
		return d.describe(), true
	case 0:
		d.Incr = 1
		d.Size = (data >> 18) & 0x7ff
		if typ := (data >> 16) & 3; typ != 0 {
			d.Size = 0
			switch typ {
			case 1:
				return fmt.Sprintf("SLI conditional, mask: 0x%x", (data&0xfff0)>>4), true
			case 2:
				return fmt.Sprintf("SLI user mask store: 0x%x", (data&0xfff0)>>4), true
			}
			return "SLI conditional from user mask", true
		}
		if !d.Invalid {
			log.I(ctx, "unusual, old-style inc mthd")
		}
	case 2:
		d.Incr = 0
		d.Size = (data >> 18) & 0x7ff
		if typ := (data >> 16) & 3; typ != 0 {
			d.Size = 0
			return fmt.Sprintf("invalid old-style non-inc mthd, type: %d", typ), true
		}
		if !d.Invalid {
			log.I(ctx, "unusual, old-style non-inc mthd")
		}
	default:
		d.Size = 0
		return fmt.Sprintf("unknown mode %d", mode), true
	}
	return "", false
}

// headerNV04 decodes a pre-GF100 command header.
func (d *Decoder) headerNV04(ctx context.Context, data uint32) (string, uint64, bool) {
	if d.long {
		d.Size = data & 0xffffff
		d.long = false
		return fmt.Sprintf("size %d", d.Size), 0, true
	}
	mode := data >> 29
	d.Addr = data & 0x1ffc
	d.Subchannel = int(data>>13) & 7
	d.Size = (data >> 18) & 0x7ff
	switch data & 3 {
	case 0:
		switch mode {
		case 0:
			switch (data >> 16) & 3 {
			case 0:
				d.Incr = d.Size
			case 1:
				d.Size = 0
				return fmt.Sprintf("SLI conditional, mask: 0x%x", (data&0xfff0)>>4), 0, true
			case 2:
				d.Size = 0
				return "return", 0, true
			case 3:
				d.Incr = 0
				d.Size = 0
				d.long = true
			}
		case 1:
			return fmt.Sprintf("jump (old) to 0x%x", data&0x1ffffffc), 1, true
		case 2:
			d.Incr = 0
		default:
			d.Size = 0
			return fmt.Sprintf("unknown mode, top 3 bits: %d", mode), 0, true
		}
	case 1:
		addr := data &^ 3
		d.Size = 0
		return fmt.Sprintf("jump to 0x%x", addr), uint64(addr), true
	case 2:
		// Calls are not followed, there is no return address stack.
		d.Size = 0
		return fmt.Sprintf("call 0x%x", data&^3), 0, true
	default:
		d.Size = 0
		return fmt.Sprintf("unknown type, bottom 2 bits: %d", data&3), 0, true
	}
	return "", 0, false
}

// defaultClass returns the class the blob driver implicitly binds to
// subchannel i on GK104 and later.
func defaultClass(chipset uint32, i int) uint32 {
	switch i {
	case 0:
		switch {
		case chipset == 0xea:
			return 0xa297
		case chipset < 0xf0:
			return 0xa097
		case chipset < 0x110:
			return 0xa197
		}
		return 0xb097
	case 1:
		switch {
		case chipset < 0xf0:
			return 0xa0c0
		case chipset < 0x100:
			return 0xa1c0
		}
		return 0xb0c0
	case 2:
		if chipset < 0xf0 {
			return 0xa040
		}
		return 0xa140
	case 3:
		return 0x902d
	case 4:
		if chipset < 0x100 {
			return 0xa0b5
		}
		return 0xb0b5
	}
	return 0
}

func (d *Decoder) bindDefault(ctx context.Context) {
	if d.chipset() < 0xe0 || d.Object() != nil {
		return
	}
	if class := defaultClass(d.chipset(), d.Subchannel); class != 0 {
		d.Fifo.Bind(d.Subchannel, d.Fifo.Lookup(ctx, class))
	}
}

func (d *Decoder) header() string {
	incr := "constant"
	if d.Incr != 0 {
		incr = "increment"
	}
	sub := ""
	if o := d.Object(); o != nil {
		if name := object.ClassName(o.Class); name != "" {
			sub = fmt.Sprintf(" (class: 0x%04x, desc: %s, handle: 0x%08x)", o.Class, name, o.Handle)
		} else {
			sub = fmt.Sprintf(" (class: 0x%04x, handle: 0x%08x)", o.Class, o.Handle)
		}
	}
	if d.long {
		return fmt.Sprintf("size ?, subchannel %d%s, offset 0x%04x, %s", d.Subchannel, sub, d.Addr, incr)
	}
	return fmt.Sprintf("size %d, subchannel %d%s, offset 0x%04x, %s", d.Size, d.Subchannel, sub, d.Addr, incr)
}

func (d *Decoder) method(ctx context.Context, data uint32, safe bool) string {
	d.Mthd, d.Data, d.HasData = d.Addr, data, true
	if d.Addr == 0 {
		switch cur := d.Object(); {
		case cur == nil && d.Invalid:
			log.I(ctx, "this is invalid buffer, not going to bind object 0x%08x to subchannel %d", data, d.Subchannel)
		case cur == nil:
			d.Fifo.Bind(d.Subchannel, d.Fifo.Lookup(ctx, data))
		case data != cur.Handle && safe:
			d.Fifo.Bind(d.Subchannel, d.Fifo.Lookup(ctx, data))
		case data != cur.Handle && !d.Invalid:
			log.I(ctx, "subchannel %d is already taken, marking this buffer invalid", d.Subchannel)
			d.Invalid = true
		}
	}
	desc := d.describe()
	if d.Incr != 0 {
		d.Addr += 4
		d.Incr--
	}
	d.Size--
	return desc
}

func (d *Decoder) describe() string {
	if !d.Env.DecodePB {
		return ""
	}
	obj, mthd, val := object.Describe(d.Object(), d.Env.Palette, d.Mthd, d.Data)
	if d.Mthd == 0 {
		return fmt.Sprintf("  %s mapped to subchannel %d", obj, d.Subchannel)
	}
	return fmt.Sprintf("  %s.%s = %s", obj, mthd, val)
}
