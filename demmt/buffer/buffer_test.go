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

package buffer_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
)

type flushed struct {
	id      int
	regions string
}

type recorder struct{ flushes []flushed }

func (r *recorder) decode(ctx context.Context, b *buffer.Buffer) error {
	r.flushes = append(r.flushes, flushed{b.ID, b.Written.String()})
	return nil
}

func newRegistry() (*buffer.Registry, *recorder) {
	rec := &recorder{}
	return buffer.NewRegistry(rec.decode), rec
}

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func TestMmapWrite(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	b, err := r.Mmap(ctx, 1, 0x7f0000, 10, 0x1000, nil)
	assert.For(ctx, "mmap").ThatError(err).Succeeded()
	assert.ThatWord(assert.For(ctx, "length"), b.Length).Equals(buffer.PageSize)
	assert.For(ctx, "type").That(b.Type).Equals(buffer.Push)

	err = r.RegisterWrite(ctx, 1, 8, le32(0xdeadbeef))
	assert.For(ctx, "write").ThatError(err).Succeeded()
	assert.ThatWord(assert.For(ctx, "word"), b.Word(8)).Equals(0xdeadbeef)
	assert.ThatWord(assert.For(ctx, "half"), b.Half(10)).Equals(0xdead)
	assert.For(ctx, "written").ThatString(b.Written.String()).Equals("[0x8, 0xc)")
	assert.For(ctx, "dirty").ThatBoolean(r.Dirty()).IsTrue()
}

func TestWriteErrors(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	_, err := r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
	assert.For(ctx, "mmap").ThatError(err).Succeeded()

	err = r.RegisterWrite(ctx, 1, 0xffe, le32(1))
	assert.For(ctx, "out of range").ThatError(err).HasCause(buffer.ErrWriteOutOfRange)
	err = r.RegisterWrite(ctx, 2, 0, le32(1))
	assert.For(ctx, "no such buffer").ThatError(err).HasCause(buffer.ErrNoSuchBuffer)
	err = r.Munmap(ctx, 7)
	assert.For(ctx, "munmap unknown").ThatError(err).HasCause(buffer.ErrNoSuchBuffer)
}

func TestWriteBuffering(t *testing.T) {
	ctx := log.Testing(t)
	r, rec := newRegistry()
	for _, id := range []int{1, 2} {
		_, err := r.Mmap(ctx, id, uint64(id)<<20, 0x1000, 0, nil)
		assert.For(ctx, "mmap %d", id).ThatError(err).Succeeded()
	}
	for _, w := range []struct {
		id     int
		offset uint64
	}{{1, 0}, {1, 4}, {2, 0}} {
		err := r.RegisterWrite(ctx, w.id, w.offset, le32(0x11))
		assert.For(ctx, "write %d:%d", w.id, w.offset).ThatError(err).Succeeded()
	}
	assert.For(ctx, "flushes").ThatSlice(rec.flushes).Equals([]flushed{{1, "[0x0, 0x8)"}})
	b1, _ := r.Get(1)
	b2, _ := r.Get(2)
	assert.For(ctx, "buffer 1 pending").ThatBoolean(b1.Written.Empty()).IsTrue()
	assert.For(ctx, "buffer 2 pending").ThatString(b2.Written.String()).Equals("[0x0, 0x4)")

	assert.For(ctx, "read").ThatError(r.RegisterRead(ctx)).Succeeded()
	assert.For(ctx, "flushes").ThatSlice(rec.flushes).Equals([]flushed{{1, "[0x0, 0x8)"}, {2, "[0x0, 0x4)"}})
	assert.For(ctx, "dirty").ThatBoolean(r.Dirty()).IsFalse()
}

func TestFlushOnMapping(t *testing.T) {
	ctx := log.Testing(t)
	r, rec := newRegistry()
	r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
	r.RegisterWrite(ctx, 1, 0, le32(1))
	r.Mmap(ctx, 2, 0x1000, 0x1000, 0, nil)
	assert.For(ctx, "after mmap").ThatInteger(len(rec.flushes)).Equals(1)
	r.RegisterWrite(ctx, 2, 0, le32(1))
	r.Munmap(ctx, 1)
	assert.For(ctx, "after munmap").ThatInteger(len(rec.flushes)).Equals(2)
	r.RegisterWrite(ctx, 2, 4, le32(1))
	r.Mremap(ctx, 2, 0x2000, 0x2000, 0, buffer.Tags{})
	assert.For(ctx, "after mremap").ThatInteger(len(rec.flushes)).Equals(3)
	b, _ := r.Get(2)
	assert.ThatWord(assert.For(ctx, "remapped length"), b.Length).Equals(0x2000)
	assert.ThatWord(assert.For(ctx, "data kept"), b.Word(4)).Equals(1)
}

func TestGPUOnlyAdoption(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	b, _ := r.Mmap(ctx, 3, 0x1000, 0x2000, 0x5000, nil)
	r.SetGPU(b, 0x200000)
	r.RegisterWrite(ctx, 3, 0x10, le32(0xcafe))
	r.Flush(ctx)

	assert.For(ctx, "munmap").ThatError(r.Munmap(ctx, 3)).Succeeded()
	assert.For(ctx, "live").ThatInteger(len(r.Live())).Equals(0)
	assert.For(ctx, "gpu only").ThatInteger(len(r.GPUOnly())).Equals(1)
	assert.For(ctx, "gpu only id").ThatInteger(r.GPUOnly()[0].ID).Equals(buffer.GPUOnly)
	assert.For(ctx, "still found by gpu").That(r.FindGPU(0x200010)).Equals(b)

	again, _ := r.Mmap(ctx, 4, 0x9000, 0x2000, 0x5000, nil)
	assert.For(ctx, "adopted").That(again).Equals(b)
	assert.For(ctx, "id").ThatInteger(again.ID).Equals(4)
	assert.ThatWord(assert.For(ctx, "contents"), again.Word(0x10)).Equals(0xcafe)
	assert.For(ctx, "gpu only").ThatInteger(len(r.GPUOnly())).Equals(0)
}

func TestGPUOnlyTags(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	g := r.RegisterGPUOnly(ctx, 0x400000, 0x1000, 0, buffer.Tags{Data1: 0xc1d00001, Data2: 0x5c000002})
	b, _ := r.Mmap(ctx, 1, 0x1000, 0x1000, 0x9000, &buffer.Tags{Data1: 0xc1d00001, Data2: 0x5c000002})
	assert.For(ctx, "adopted").That(b).Equals(g)
	assert.ThatWord(assert.For(ctx, "gpu"), b.GPUStart).Equals(0x400000)

	g = r.RegisterGPUOnly(ctx, 0x800000, 0x1000, 0, buffer.Tags{Data1: 1, Data2: 2})
	r.FreeGPUOnly(g)
	assert.For(ctx, "freed").That(r.FindGPU(0x800000)).IsNil()
}

func TestHints(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	r.AddHint(0x7000, buffer.Tags{Data1: 0xaa, Data2: 0xbb})
	other, _ := r.Mmap(ctx, 1, 0, 0x1000, 0x6000, nil)
	assert.ThatWord(assert.For(ctx, "other"), other.Data1).Equals(0)
	b, _ := r.Mmap(ctx, 2, 0, 0x1000, 0x7000, nil)
	assert.ThatWord(assert.For(ctx, "data1"), b.Data1).Equals(0xaa)
	assert.ThatWord(assert.For(ctx, "data2"), b.Data2).Equals(0xbb)
	assert.For(ctx, "by offset").That(r.FindByMmapOffset(0x7000)).Equals(b)
}

func TestRingType(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name     string
		ib       bool
		offset   uint32
		expected buffer.Type
	}{
		{"user", false, 0, buffer.User},
		{"ib", true, 0, buffer.IB},
		{"ib with push", true, 0x100, buffer.IB | buffer.Push},
	} {
		ctx := log.Enter(ctx, test.name)
		r, _ := newRegistry()
		r.IBSupported = test.ib
		r.RingID = 5
		r.RingOffset = test.offset
		b, _ := r.Mmap(ctx, 5, 0, 0x1000, 0, nil)
		assert.For(ctx, "type").That(b.Type).Equals(test.expected)
		other, _ := r.Mmap(ctx, 6, 0, 0x1000, 0, nil)
		assert.For(ctx, "other").That(other.Type).Equals(buffer.Push)
	}
}

func TestDiscoverIB(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	r.IBSupported = true
	pb, _ := r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
	r.SetGPU(pb, 0x1_2000_0000)
	ring, _ := r.Mmap(ctx, 2, 0, 0x4000, 0, nil)
	r.RegisterWrite(ctx, 2, 0x2000, le32(0x20000000))
	r.RegisterWrite(ctx, 2, 0x2004, le32(0x01|(0x100<<10)))

	assert.For(ctx, "found").That(r.DiscoverRing(ctx, ring)).Equals(buffer.IB)
	assert.For(ctx, "ring id").ThatInteger(r.RingID).Equals(2)
	assert.ThatWord(assert.For(ctx, "ring offset"), r.RingOffset).Equals(0x2000)
	assert.ThatWord(assert.For(ctx, "ib offset"), ring.IBOffset).Equals(0x2000)
	assert.For(ctx, "type").That(ring.Type).Equals(buffer.IB | buffer.Push)
}

func TestDiscoverIBRejects(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name   string
		w0, w1 uint32
	}{
		{"low bits", 0x20000001, 0x01 | (0x100 << 10)},
		{"zero", 0, 0x01 | (0x100 << 10)},
		{"too long", 0x20000000, 0x01 | (0x401 << 10)},
		{"wrong address", 0x30000000, 0x01 | (0x100 << 10)},
	} {
		ctx := log.Enter(ctx, test.name)
		r, _ := newRegistry()
		r.IBSupported = true
		pb, _ := r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
		r.SetGPU(pb, 0x1_2000_0000)
		ring, _ := r.Mmap(ctx, 2, 0, 0x1000, 0, nil)
		r.RegisterWrite(ctx, 2, 0, append(le32(test.w0), le32(test.w1)...))
		assert.For(ctx, "found").That(r.DiscoverRing(ctx, ring)).Equals(buffer.Type(0))
		assert.For(ctx, "ring id").ThatInteger(r.RingID).Equals(-1)
	}
}

func TestDiscoverUser(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	pb, _ := r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
	r.SetGPU(pb, 0x40000)
	ctrl, _ := r.Mmap(ctx, 5, 0, 0x1000, 0, nil)

	r.RegisterWrite(ctx, 5, 0x44, le32(0x40100))
	assert.For(ctx, "wrong offset").That(r.DiscoverRing(ctx, ctrl)).Equals(buffer.Type(0))
	r.Flush(ctx)

	r.RegisterWrite(ctx, 5, 0x40, le32(0x40100))
	assert.For(ctx, "found").That(r.DiscoverRing(ctx, ctrl)).Equals(buffer.User)
	assert.For(ctx, "type").That(ctrl.Type).Equals(buffer.User)
	assert.For(ctx, "ring id").ThatInteger(r.RingID).Equals(5)
}

func TestFindGPU(t *testing.T) {
	ctx := log.Testing(t)
	r, _ := newRegistry()
	a, _ := r.Mmap(ctx, 1, 0, 0x1000, 0, nil)
	b, _ := r.Mmap(ctx, 2, 0, 0x2000, 0, nil)
	r.SetGPU(a, 0x10000)
	r.SetGPU(b, 0x20000)
	r.RegisterWrite(ctx, 2, 0x100, le32(0x12345678))
	for _, test := range []struct {
		addr     uint64
		expected *buffer.Buffer
	}{
		{0, nil},
		{0xffff, nil},
		{0x10000, a},
		{0x10fff, a},
		{0x11000, nil},
		{0x21fff, b},
		{0x22000, nil},
	} {
		ctx := log.Enter(ctx, fmt.Sprintf("0x%x", test.addr))
		assert.For(ctx, "buffer").That(r.FindGPU(test.addr)).Equals(test.expected)
	}
	assert.For(ctx, "data").ThatSlice(r.GPUData(0x20100, 4)).Equals(le32(0x12345678))
	assert.For(ctx, "straddle").ThatSlice(r.GPUData(0x21ffe, 4)).IsEmpty()

	r.SetGPU(a, 0)
	assert.For(ctx, "unmapped").That(r.FindGPU(0x10000)).IsNil()
}

func TestUsages(t *testing.T) {
	ctx := log.Testing(t)
	b := &buffer.Buffer{ID: 3, Type: buffer.Push}
	assert.For(ctx, "set").ThatBoolean(b.SetUsage("VERTEX_ARRAY", 0x100)).IsTrue()
	assert.For(ctx, "set").ThatBoolean(b.SetUsage("INDEX_ARRAY", 0x200)).IsTrue()
	assert.For(ctx, "update").ThatBoolean(b.SetUsage("VERTEX_ARRAY", 0x300)).IsTrue()
	assert.ThatWord(assert.For(ctx, "updated"), b.Usages[0].Address).Equals(0x300)
	b.ClearUsage("VERTEX_ARRAY")
	assert.For(ctx, "string").ThatString(b.String()).HasSuffix("usage: INDEX_ARRAY")
	for i := 0; i < buffer.MaxUsages-1; i++ {
		b.SetUsage(fmt.Sprintf("U%d", i), 0)
	}
	assert.For(ctx, "full").ThatBoolean(b.SetUsage("ONE_TOO_MANY", 0)).IsFalse()
}
