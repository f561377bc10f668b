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

package session_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/config"
	"github.com/envytools/demmt/demmt/session"
	"github.com/envytools/demmt/demmt/trace"
)

func le32(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func newSession(chipset config.Chipset) (*session.Session, *config.Options, *bytes.Buffer) {
	out := &bytes.Buffer{}
	opts := config.Defaults()
	opts.Chipset = chipset
	return session.New(out, opts, color.Plain), opts, out
}

func handle(ctx context.Context, s *session.Session, records ...trace.Record) {
	for _, r := range records {
		err := s.Handle(ctx, r)
		assert.For(ctx, "handle %T", r).ThatError(err).Succeeded()
	}
}

func TestBufferedWrites(t *testing.T) {
	ctx := log.Testing(t)
	out := &bytes.Buffer{}
	opts := config.Defaults()
	opts.Chipset = 0x40
	opts.PBPointer = config.PBPointer{Set: true, ID: 9}
	s := session.New(out, opts, color.Plain)

	id := trace.MakeIoctlID(3, 0x99, 1, 8)
	stream := &bytes.Buffer{}
	e := trace.NewEncoder(stream)
	for _, r := range []trace.Record{
		&trace.Mmap{ID: 2, Start: 0x7000, Len: 0x1000, Offset: 0x20000},
		&trace.Write{ID: 2, Data: le32(0, 0, 0x1234)},
		&trace.Ioctl{FD: 3, ID: id, Data: make([]byte, 8)},
		&trace.Ioctl{Post: true, FD: 3, ID: id, Data: make([]byte, 8)},
		&trace.Ioctl{FD: 3, ID: id, Data: make([]byte, 8)},
	} {
		assert.For(ctx, "encode").ThatError(e.Encode(r)).Succeeded()
	}

	err := s.Run(ctx, stream)
	assert.For(ctx, "run").ThatError(err).Succeeded()
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"ioctl pre  0x01 (0xc0089901), fd: 3, dir: rw, size:    8, flushing buffered writes\n" +
			"w 2:0x0000-0x0008, 0x00000000\n" +
			"w 2:0x0008, 0x00001234  \n" +
			"ioctl pre  0x01 (0xc0089901), fd: 3, dir: rw, size:    8, no dirty buffers\n")
	assert.For(ctx, "nouveau").ThatBoolean(s.Nouveau()).IsFalse()
}

func TestUserRing(t *testing.T) {
	ctx := log.Testing(t)
	s, _, out := newSession(0x40)

	handle(ctx, s, &trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000})
	cmds, err := s.Buffers.Get(1)
	assert.For(ctx, "get").ThatError(err).Succeeded()
	s.Buffers.SetGPU(cmds, 0x20000000)

	handle(ctx, s,
		&trace.Mmap{ID: 5, Start: 0x3000, Len: 0x1000, Offset: 0x20000},
		&trace.Write{ID: 5, Offset: 0, Data: le32(0)},
		&trace.Write{ID: 5, Offset: 0x40, Data: le32(0x20000010)},
		&trace.Read{ID: 5, Offset: 0x44, Data: le32(0)},
	)

	assert.For(ctx, "ring").ThatInteger(s.Buffers.RingID).Equals(5)
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"USER buffer: 5\n" +
			"w 5:0x0000-0x0004, 0x00000000\n" +
			"w 5:0x0040, 0x20000010  DMA_PUT: 0x20000010, buffer id: 1\n" +
			strings.Repeat("PB: 0x00000000 NOP\n", 4) +
			"r 5:0x0044, 0x00000000 \n")
}

func TestIBRing(t *testing.T) {
	ctx := log.Testing(t)
	s, _, out := newSession(0xc0)

	handle(ctx, s, &trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000})
	cmds, err := s.Buffers.Get(1)
	assert.For(ctx, "get").ThatError(err).Succeeded()
	s.Buffers.SetGPU(cmds, 0x20000000)

	handle(ctx, s,
		&trace.Mmap{ID: 7, Start: 0x3000, Len: 0x1000, Offset: 0x30000},
		&trace.Write{ID: 7, Data: le32(0x20000000, 2<<10)},
	)
	assert.For(ctx, "finish").ThatError(s.Finish(ctx)).Succeeded()

	assert.For(ctx, "ring").ThatInteger(s.Buffers.RingID).Equals(7)
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"IB buffer: 7\n" +
			"w 7:0x0000, 0x20000000  IB: addrlow: 0x20000000\n" +
			"w 7:0x0004, 0x00000800  IB: address: 0x20000000, size: 2, buffer id: 1\n" +
			strings.Repeat("PB: 0x00000000 NOP\n", 2))
}

func TestFindMode(t *testing.T) {
	ctx := log.Testing(t)
	out := &bytes.Buffer{}
	opts := config.Defaults()
	opts.Chipset = 0xc0
	opts.SetFindMode()
	s := session.New(out, opts, color.Plain)

	handle(ctx, s, &trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000})
	cmds, _ := s.Buffers.Get(1)
	s.Buffers.SetGPU(cmds, 0x20000000)
	handle(ctx, s,
		&trace.Mmap{ID: 7, Start: 0x3000, Len: 0x1000, Offset: 0x30000},
		&trace.Write{ID: 7, Data: le32(0x20000000, 2<<10)},
	)
	assert.For(ctx, "finish").ThatError(s.Finish(ctx)).Succeeded()
	assert.For(ctx, "output").ThatString(out.String()).Equals("possible IB buffer: 7\n")
}

func TestGPUOnlyMapping(t *testing.T) {
	ctx := log.Testing(t)
	s, _, _ := newSession(0xc0)
	bufs := s.Buffers

	handle(ctx, s, &trace.NvGPUMap{Data1: 0xc1, Data3: 0xd3, GPUStart: 0x40000000, Len: 0x2000})
	assert.For(ctx, "gpu only after map").ThatInteger(len(bufs.GPUOnly())).Equals(1)

	handle(ctx, s, &trace.NvMmap{ID: 3, Start: 0x5000, Len: 0x2000, Offset: 0x70000, Data1: 0xc1, Data2: 0xd3})
	b, err := bufs.Get(3)
	assert.For(ctx, "get").ThatError(err).Succeeded()
	assert.For(ctx, "gpu only after mmap").ThatInteger(len(bufs.GPUOnly())).Equals(0)
	assert.ThatWord(assert.For(ctx, "adopted gpu start"), b.GPUStart).Equals(0x40000000)
	assert.For(ctx, "find gpu").That(bufs.FindGPU(0x40000010)).Equals(b)

	handle(ctx, s, &trace.NvGPUUnmap{Data1: 0xc1, Data3: 0xd3, GPUStart: 0x40000000})
	assert.ThatWord(assert.For(ctx, "cleared gpu start"), b.GPUStart).Equals(0)

	handle(ctx, s, &trace.NvGPUMap{Data1: 0xc1, Data3: 0xd3, GPUStart: 0x48000000, Len: 0x2000})
	assert.ThatWord(assert.For(ctx, "remapped gpu start"), b.GPUStart).Equals(0x48000000)

	handle(ctx, s, &trace.NvUnmap{MmapOffset: 0x70000})
	assert.For(ctx, "live after unmap").ThatInteger(len(bufs.Live())).Equals(0)
	assert.For(ctx, "gpu only after unmap").ThatInteger(len(bufs.GPUOnly())).Equals(1)

	handle(ctx, s, &trace.NvGPUUnmap{Data1: 0xc1, Data3: 0xd3, GPUStart: 0x48000000})
	assert.For(ctx, "gpu only after gpu unmap").ThatInteger(len(bufs.GPUOnly())).Equals(0)
}

func TestAllocMapHint(t *testing.T) {
	ctx := log.Testing(t)
	s, _, _ := newSession(0xc0)

	handle(ctx, s,
		&trace.NvAllocMap{Data1: 0xa1, Data2: 0xa2, MmapOffset: 0x90000},
		&trace.Mmap{ID: 4, Start: 0x9000, Len: 0x1000, Offset: 0x90000},
	)
	b, err := s.Buffers.Get(4)
	assert.For(ctx, "get").ThatError(err).Succeeded()
	assert.ThatWord(assert.For(ctx, "data1"), b.Data1).Equals(0xa1)
	assert.ThatWord(assert.For(ctx, "data2"), b.Data2).Equals(0xa2)
}

func TestDRMIoctl(t *testing.T) {
	ctx := log.Testing(t)
	s, _, out := newSession(0xc0)
	id := trace.MakeIoctlID(3, 0x64, 0x3f, 4)

	handle(ctx, s,
		&trace.Ioctl{FD: 4, ID: id, Data: le32(1)},
		&trace.Ioctl{Post: true, FD: 4, ID: id, Data: le32(1)},
	)
	assert.For(ctx, "nouveau").ThatBoolean(s.Nouveau()).IsTrue()
	assert.For(ctx, "objects").ThatBoolean(s.Objects.Nouveau).IsTrue()
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"ioctl pre  0x3f (0xc004643f), fd: 4, dir: rw, size:    4, no dirty buffers\n" +
			"ioctl post 0x3f (0xc004643f), fd: 4, dir: rw, size:    4\n")
}

func TestNvidiaIoctlIsSilent(t *testing.T) {
	ctx := log.Testing(t)
	s, _, out := newSession(0xc0)
	id := trace.MakeIoctlID(3, 0x46, 0x2a, 32)
	handle(ctx, s,
		&trace.NvIoctl{FD: 5, ID: id, Data: make([]byte, 32)},
		&trace.NvIoctl{Post: true, FD: 5, ID: id, Data: make([]byte, 32)},
	)
	assert.For(ctx, "output").ThatString(out.String()).Equals("")
}

func TestReadFormats(t *testing.T) {
	ctx := log.Testing(t)
	s, opts, out := newSession(0xc0)
	opts.Filters.GPUAddr = true

	handle(ctx, s, &trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000})
	b, _ := s.Buffers.Get(1)
	s.Buffers.SetGPU(b, 0x20000000)
	handle(ctx, s,
		&trace.Read{ID: 1, Offset: 0x10, Data: []byte{0xab}},
		&trace.Read{ID: 1, Offset: 0x12, Data: []byte{0x34, 0x12}},
		&trace.Read{ID: 1, Offset: 0x20, Data: le32(1, 2)},
		&trace.ReadAddr{Addr: 0x1030, Data: le32(3)},
	)
	assert.For(ctx, "output").ThatString(out.String()).Equals(
		"r 1:0x0010 (gpu=0x20000010), 0xab\n" +
			"r 1:0x0012 (gpu=0x20000012), 0x1234\n" +
			"r 1:0x0020 (gpu=0x20000020), 0x00000001 0x00000002 \n" +
			"r 1:0x0030 (gpu=0x20000030), 0x00000003 \n")
}

func TestMessage(t *testing.T) {
	ctx := log.Testing(t)
	s, _, out := newSession(0xc0)
	handle(ctx, s,
		&trace.Message{Kind: trace.TagMessage, Text: []byte("hello")},
		&trace.Message{Kind: trace.TagMessage2, Text: []byte("world")},
	)
	assert.For(ctx, "output").ThatString(out.String()).Equals("MSG: =hello\nMSG: -world\n")
}

func TestFlushOnBufferChange(t *testing.T) {
	ctx := log.Testing(t)
	out := &bytes.Buffer{}
	opts := config.Defaults()
	opts.Chipset = 0x40
	opts.PBPointer = config.PBPointer{Set: true, ID: 9}
	s := session.New(out, opts, color.Plain)

	handle(ctx, s,
		&trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000},
		&trace.Mmap{ID: 2, Start: 0x2000, Len: 0x1000, Offset: 0x20000},
		&trace.Write{ID: 1, Offset: 0, Data: le32(0x11)},
		&trace.Write{ID: 1, Offset: 4, Data: le32(0x22)},
	)
	assert.For(ctx, "buffered").ThatString(out.String()).Equals("")

	handle(ctx, s, &trace.Write{ID: 2, Offset: 0, Data: le32(0x33)})
	assert.For(ctx, "flushed").ThatString(out.String()).Equals(
		"w 1:0x0000, 0x00000011  \n" +
			"w 1:0x0004, 0x00000022  \n")
	b, _ := s.Buffers.Get(1)
	assert.For(ctx, "regions").ThatBoolean(b.Written.Empty()).IsTrue()
}

func TestDecodeTracesBuffer(t *testing.T) {
	ctx := log.Testing(t)
	out := &bytes.Buffer{}
	opts := config.Defaults()
	opts.Chipset = 0x40
	opts.PBPointer = config.PBPointer{Set: true, ID: 9}
	opts.ForcePushbuf = true
	s := session.New(out, opts, color.Plain)

	var traces [][]string
	lctx := log.PutHandler(ctx, log.NewHandler(func(m *log.Message) {
		if strings.HasPrefix(m.Text, "restarting pushbuf decode") {
			traces = append(traces, m.Trace)
		}
	}, nil))
	lctx = log.PutFilter(lctx, log.SeverityFilter(log.Debug))

	handle(lctx, s,
		&trace.Mmap{ID: 1, Start: 0x1000, Len: 0x1000, Offset: 0x10000},
		&trace.Write{ID: 1, Offset: 8, Data: le32(0x11)},
	)
	assert.For(ctx, "flush").ThatError(s.Finish(lctx)).Succeeded()
	assert.For(ctx, "traces").ThatSlice(traces).DeepEquals([][]string{{"buffer 1"}})
}

func TestRunReportsBrokenRecord(t *testing.T) {
	ctx := log.Testing(t)
	s, _, _ := newSession(0x40)
	stream := &bytes.Buffer{}
	err := trace.NewEncoder(stream).Encode(&trace.Message{Kind: trace.TagMessage, Text: []byte("mmt")})
	assert.For(ctx, "encode").ThatError(err).Succeeded()
	stream.WriteString("Z\n")

	err = s.Run(ctx, stream)
	assert.For(ctx, "cause").ThatError(err).HasCause(trace.ErrUnknownRecord)
	assert.For(ctx, "message").ThatString(err).HasPrefix("decoding stopped after 1 records")
}
