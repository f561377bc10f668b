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

package pushbuf_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/object"
	"github.com/envytools/demmt/demmt/pushbuf"
)

type write struct{ mthd, data uint32 }

func setup(chipset uint32) (*object.Fifo, *object.Env, *buffer.Registry, *bytes.Buffer) {
	out := &bytes.Buffer{}
	buffers := buffer.NewRegistry(func(context.Context, *buffer.Buffer) error { return nil })
	r := object.NewRegistry(chipset)
	r.Nouveau = true
	env := &object.Env{Out: out, Buffers: buffers, Palette: color.Plain, DecodePB: true}
	return r.Default(), env, buffers, out
}

// decodeAll feeds words to d and returns the method writes they carried.
func decodeAll(ctx context.Context, d *pushbuf.Decoder, safe bool, words ...uint32) []write {
	got := []write{}
	for _, w := range words {
		d.Decode(ctx, w, safe)
		if d.HasData {
			got = append(got, write{d.Mthd, d.Data})
		}
	}
	return got
}

func TestLegacyHeader(t *testing.T) {
	ctx := log.Testing(t)
	f, env, _, _ := setup(0x50)
	d := pushbuf.NewDecoder(f, env)
	header := uint32(3<<18 | 2<<13 | 0x100)
	desc, next := d.Decode(ctx, header, true)
	assert.For(ctx, "header").ThatString(desc).Equals("size 3, subchannel 2, offset 0x0100, increment")
	assert.ThatWord(assert.For(ctx, "next"), next).Equals(0)
	got := decodeAll(ctx, d, true, 0xa, 0xb, 0xc)
	assert.For(ctx, "writes").ThatSlice(got).Equals([]write{{0x100, 0xa}, {0x104, 0xb}, {0x108, 0xc}})
	assert.For(ctx, "unbound subchannel").ThatBoolean(d.Invalid).IsTrue()
	desc, _ = d.Decode(ctx, 0, true)
	assert.For(ctx, "nop").ThatString(desc).Equals("NOP")
}

func TestLegacyCommands(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name string
		word uint32
		desc string
		next uint64
	}{
		{"jump", 0x00001001, "jump to 0x1000", 0x1000},
		{"old jump", 0x20001000, "jump (old) to 0x1000", 1},
		{"call", 0x00002002, "call 0x2000", 0},
		{"return", 0x00020000, "return", 0},
		{"sli", 0x00010120, "SLI conditional, mask: 0x12", 0},
		{"bad type", 0x00000003, "unknown type, bottom 2 bits: 3", 0},
		{"bad mode", 0x60000000, "unknown mode, top 3 bits: 3", 0},
		{"non-increasing", 0x40080200, "size 2, subchannel 0, offset 0x0200, constant", 0},
	} {
		ctx := log.Enter(ctx, test.name)
		f, env, _, _ := setup(0x50)
		d := pushbuf.NewDecoder(f, env)
		desc, next := d.Decode(ctx, test.word, true)
		assert.For(ctx, "desc").ThatString(desc).Equals(test.desc)
		assert.ThatWord(assert.For(ctx, "next"), next).Equals(test.next)
	}
}

func TestLongCommand(t *testing.T) {
	ctx := log.Testing(t)
	f, env, _, _ := setup(0x50)
	d := pushbuf.NewDecoder(f, env)
	desc, _ := d.Decode(ctx, 0x00034400, true)
	assert.For(ctx, "long header").ThatString(desc).Equals("size ?, subchannel 2, offset 0x0400, constant")
	desc, _ = d.Decode(ctx, 2, true)
	assert.For(ctx, "length").ThatString(desc).Equals("size 2")
	got := decodeAll(ctx, d, true, 7, 8)
	assert.For(ctx, "writes").ThatSlice(got).Equals([]write{{0x400, 7}, {0x400, 8}})
}

func TestGF100Headers(t *testing.T) {
	ctx := log.Testing(t)
	f, env, _, _ := setup(0xc0)
	f.Add(0xbeef, 0x902d)
	d := pushbuf.NewDecoder(f, env)

	desc, _ := d.Decode(ctx, 0x20012000, true)
	assert.For(ctx, "header").ThatString(desc).Equals("size 1, subchannel 1, offset 0x0000, increment")
	desc, _ = d.Decode(ctx, 0xbeef, true)
	assert.For(ctx, "bind").ThatString(desc).Equals("  GF100_2D mapped to subchannel 1")

	desc, _ = d.Decode(ctx, 0x80052088, true)
	assert.For(ctx, "immediate").ThatString(desc).Equals("  GF100_2D.DST_ADDRESS_HIGH = 0x5")
	assert.For(ctx, "immediate write").That(write{d.Mthd, d.Data}).Equals(write{0x220, 5})

	desc, _ = d.Decode(ctx, 0x60022094, true)
	assert.For(ctx, "constant").ThatString(desc).Equals(
		"size 2, subchannel 1 (class: 0x902d, desc: GF100_2D, handle: 0x0000beef), offset 0x0250, constant")
	got := decodeAll(ctx, d, true, 1, 2)
	assert.For(ctx, "constant writes").ThatSlice(got).Equals([]write{{0x250, 1}, {0x250, 2}})

	d.Decode(ctx, 0xa0032088, true)
	got = decodeAll(ctx, d, true, 1, 2, 3)
	assert.For(ctx, "increment once").ThatSlice(got).Equals([]write{{0x220, 1}, {0x224, 2}, {0x224, 3}})

	desc, _ = d.Decode(ctx, 0x000100a0, true)
	assert.For(ctx, "sli").ThatString(desc).Equals("SLI conditional, mask: 0xa")
	desc, _ = d.Decode(ctx, 0xe0000000, true)
	assert.For(ctx, "bad mode").ThatString(desc).Equals("unknown mode 7")
}

func TestRebinding(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name    string
		safe    bool
		bound   uint32
		invalid bool
	}{
		{"safe", true, 2, false},
		{"unsafe", false, 1, true},
	} {
		ctx := log.Enter(ctx, test.name)
		f, env, _, _ := setup(0x50)
		f.Add(1, 0x5039)
		f.Add(2, 0x502d)
		d := pushbuf.NewDecoder(f, env)
		decodeAll(ctx, d, test.safe, 0x00040000, 1, 0x00040000, 2)
		assert.ThatWord(assert.For(ctx, "bound"), f.Subchannel(0).Handle).Equals(uint64(test.bound))
		assert.For(ctx, "invalid").ThatBoolean(d.Invalid).Equals(test.invalid)
	}
}

func TestDefaultSubchannels(t *testing.T) {
	ctx := log.Testing(t)
	f, env, _, _ := setup(0xe4)
	d := pushbuf.NewDecoder(f, env)
	desc, _ := d.Decode(ctx, 0x20016088, true)
	assert.For(ctx, "header").ThatString(desc).Equals(
		"size 1, subchannel 3 (class: 0x902d, desc: GF100_2D, handle: 0x0000902d), offset 0x0220, increment")
	assert.For(ctx, "valid").ThatBoolean(d.Invalid).IsFalse()
	assert.ThatWord(assert.For(ctx, "class"), f.Subchannel(3).Class).Equals(0x902d)
}

func le32(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func mapCommands(ctx context.Context, buffers *buffer.Registry, id int, gpu uint64, words ...uint32) *buffer.Buffer {
	b, err := buffers.Mmap(ctx, id, 0x7f0000000000+uint64(id)<<16, 0x1000, uint64(id)<<12, nil)
	assert.For(ctx, "mmap").ThatError(err).Succeeded()
	buffers.SetGPU(b, gpu)
	assert.For(ctx, "write").ThatError(buffers.RegisterWrite(ctx, id, 0, le32(words...))).Succeeded()
	return b
}

func TestPrint(t *testing.T) {
	ctx := log.Testing(t)
	f, env, buffers, out := setup(0x50)
	f.Add(0xbeef, 0x5039)
	mapCommands(ctx, buffers, 1, 0x20000000, 0x00040000, 0xbeef)
	ib := pushbuf.NewIB(f, env)
	ib.Start()
	assert.For(ctx, "low").ThatString(ib.Decode(ctx, 0x20000000)).Equals("IB: addrlow: 0x20000000")
	assert.For(ctx, "high").ThatString(ib.Decode(ctx, 2<<10|1<<9)).Equals(
		"IB: address: 0x20000000, size: 2, not_main, buffer id: 1")
	assert.For(ctx, "pending").ThatString(out.String()).Equals("")
	ib.End(ctx)
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"PB: 0x00040000 size 1, subchannel 0, offset 0x0000, increment\n" +
			"PB: 0x0000beef   NV50_M2MF mapped to subchannel 0\n")
	assert.ThatWord(assert.For(ctx, "object register"), f.Subchannel(0).Reg(0)).Equals(0xbeef)

	out.Reset()
	ib.Decode(ctx, 0x30000000)
	assert.For(ctx, "missing").ThatString(ib.Decode(ctx, 1<<10)).Equals("IB: address: 0x30000000, size: 1, not found!")
	ib.End(ctx)
	assert.For(ctx, "nothing decoded").ThatString(out.String()).Equals("")
}

func TestPrintStopsAtJump(t *testing.T) {
	ctx := log.Testing(t)
	f, env, _, out := setup(0x50)
	d := pushbuf.NewDecoder(f, env)
	next := d.Print(ctx, []uint32{0, 0x00001001, 0}, 0x4000)
	assert.ThatWord(assert.For(ctx, "next"), next).Equals(0x1000)
	assert.For(ctx, "output").ThatString(out.String()).Equals("PB: 0x00000000 NOP\n")
	next = d.Print(ctx, []uint32{0, 0}, 0x4000)
	assert.ThatWord(assert.For(ctx, "end"), next).Equals(0x4008)
}

func TestUser(t *testing.T) {
	ctx := log.Testing(t)
	f, env, buffers, out := setup(0x40)
	f.Add(0xbeef, 0x5039)
	mapCommands(ctx, buffers, 2, 0x10000, 0x00040000, 0xbeef, 0, 0)
	u := pushbuf.NewUser(f, env)

	assert.For(ctx, "other register").ThatString(u.Decode(ctx, 0x44, 1)).Equals("")
	assert.For(ctx, "put").ThatString(u.Decode(ctx, pushbuf.DMAPut, 0x10008)).Equals(
		"DMA_PUT: 0x00010008, buffer id: 2")
	u.End(ctx)
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"PB: 0x00040000 size 1, subchannel 0, offset 0x0000, increment\n" +
			"PB: 0x0000beef   NV50_M2MF mapped to subchannel 0\n")

	out.Reset()
	u.Decode(ctx, pushbuf.DMAPut, 0x10010)
	u.End(ctx)
	assert.For(ctx, "advance").ThatString(out.String()).Equals("PB: 0x00000000 NOP\nPB: 0x00000000 NOP\n")

	assert.For(ctx, "unknown").ThatString(u.Decode(ctx, pushbuf.DMAPut, 0x90000)).Equals(
		"DMA_PUT: 0x00090000, not found!")
}
