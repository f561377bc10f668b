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

package session

import (
	"bytes"
	"context"
	eb "encoding/binary"
	"fmt"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/data/endian"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/object"
	"github.com/envytools/demmt/demmt/pushbuf"
)

func reader(data []byte) binary.Reader {
	return endian.Reader(bytes.NewReader(data), eb.LittleEndian)
}

// streams is the decode state kept with each buffer.
type streams struct {
	fifo *object.Fifo
	pb   *pushbuf.Decoder
	ib   *pushbuf.IB
	user *pushbuf.User
}

// streams returns the decoders of b, rebuilding them when the active fifo
// changed since they were created.
func (s *Session) streams(b *buffer.Buffer) *streams {
	fifo := s.Objects.Active()
	st, ok := b.State.(*streams)
	if !ok || st.fifo != fifo {
		st = &streams{
			fifo: fifo,
			pb:   pushbuf.NewDecoder(fifo, s.decode),
			ib:   pushbuf.NewIB(fifo, s.decode),
			user: pushbuf.NewUser(fifo, s.decode),
		}
		b.State = st
	}
	return st
}

// decodeBuffer prints the pending writes of b. It is called by the buffer
// registry for every dirty buffer when writes are flushed.
func (s *Session) decodeBuffer(ctx context.Context, b *buffer.Buffer) error {
	ctx = log.Enter(ctx, fmt.Sprintf("buffer %d", b.ID))
	find := s.opts.FindPBPointer
	if find || (!s.nouveau && s.Buffers.RingID < 0) {
		s.discover(ctx, b, find)
		if find {
			return nil
		}
	}
	st := s.streams(b)
	for _, reg := range b.Written.Regions() {
		s.region(ctx, b, st, reg.Start, reg.End)
	}
	return nil
}

func (s *Session) discover(ctx context.Context, b *buffer.Buffer, find bool) {
	var name string
	switch s.Buffers.DiscoverRing(ctx, b) {
	case buffer.IB:
		name = "IB"
	case buffer.User:
		name = "USER"
	default:
		return
	}
	f := &s.opts.Filters
	if !find && !(f.Info && f.PB) {
		return
	}
	prefix := ""
	if find {
		prefix = "possible "
	}
	fmt.Fprintf(s.out, "%s%s buffer: %d\n", prefix, name, b.ID)
}

// skipZeroes returns the offset of the first non-zero unit of [addr, end).
func skipZeroes(b *buffer.Buffer, addr, end uint64) uint64 {
	for addr < end {
		switch left := end - addr; {
		case left >= 4:
			if b.Word(addr) != 0 {
				return addr
			}
			addr += 4
		case left >= 2:
			if b.Half(addr) != 0 {
				return addr
			}
			addr += 2
		default:
			if b.Byte(addr) != 0 {
				return addr
			}
			addr++
		}
	}
	return addr
}

// region prints and decodes the written range [addr, end) of b.
func (s *Session) region(ctx context.Context, b *buffer.Buffer, st *streams, addr, end uint64) {
	f := &s.opts.Filters
	if b.Type&(buffer.Push|buffer.User) != 0 && addr+4 <= b.Length && b.Word(addr) == 0 {
		start := addr
		addr = skipZeroes(b, addr, end)
		if start == st.pb.NextCommandOffset {
			st.pb.NextCommandOffset = addr
		}
		if f.Write {
			fmt.Fprintf(s.out, "w %d:0x%04x%s-0x%04x%s, 0x00000000\n",
				b.ID, start, s.gpuComment(b, start), addr, s.gpuComment(b, addr))
		}
	}
	if addr == end {
		return
	}

	inIB := b.Type&buffer.IB != 0 && addr >= uint64(b.IBOffset) && addr < b.Length
	switch {
	case inIB:
		st.ib.Start()
	case b.Type&buffer.Push != 0 && s.opts.ForcePushbuf:
		if addr != st.pb.NextCommandOffset {
			log.I(ctx, "restarting pushbuf decode on buffer %d: %x != %x", b.ID, addr, st.pb.NextCommandOffset)
			st.pb.Reset()
		}
		if st.pb.Invalid {
			log.I(ctx, "restarting pushbuf decode on buffer %d", b.ID)
			st.pb.Reset()
		}
	}

	for addr < end {
		c := s.gpuComment(b, addr)
		switch left := end - addr; {
		case left >= 4:
			w := b.Word(addr)
			switch {
			case inIB:
				desc := st.ib.Decode(ctx, w)
				if f.Write {
					fmt.Fprintf(s.out, "w %d:0x%04x%s, 0x%08x  %s\n", b.ID, addr, c, w, desc)
				}
			case b.Type&buffer.Push != 0:
				s.pushWord(ctx, b, st, addr, w, c)
			case b.Type&buffer.User != 0:
				desc := st.user.Decode(ctx, addr, w)
				if f.Write {
					fmt.Fprintf(s.out, "w %d:0x%04x%s, 0x%08x  %s\n", b.ID, addr, c, w, desc)
				}
			}
			addr += 4
		case left >= 2:
			if f.Write {
				fmt.Fprintf(s.out, "w %d:0x%04x%s, 0x%04x\n", b.ID, addr, c, b.Half(addr))
			}
			addr += 2
		default:
			if f.Write {
				fmt.Fprintf(s.out, "w %d:0x%04x%s, 0x%02x\n", b.ID, addr, c, b.Byte(addr))
			}
			addr++
		}
	}

	switch {
	case inIB:
		st.ib.End(ctx)
	case b.Type&buffer.User != 0:
		st.user.End(ctx)
	}
}

// pushWord prints a word of a plain command buffer. With forced decoding the
// word is also run through the pushbuffer decoder, which cannot check the
// subchannel bindings of a stream it joined midway.
func (s *Session) pushWord(ctx context.Context, b *buffer.Buffer, st *streams, addr uint64, w uint32, c string) {
	pb := st.pb
	desc := ""
	var m object.Method
	dispatch := false
	if s.opts.ForcePushbuf {
		desc, _ = pb.Decode(ctx, w, false)
		if pb.HasData {
			dispatch = true
			m = object.Method{
				Object:     pb.Object(),
				Subchannel: pb.Subchannel,
				Mthd:       pb.Mthd,
				Data:       pb.Data,
				Last:       pb.Size == 0,
			}
		}
	}
	pb.NextCommandOffset = addr + 4
	write := s.opts.Filters.Write
	if write {
		invalid := ""
		if pb.Invalid {
			invalid = "INVALID "
		}
		fmt.Fprintf(s.out, "w %d:0x%04x%s, 0x%08x  %s%s", b.ID, addr, c, w, invalid, desc)
	}
	if dispatch {
		object.Dispatch(ctx, s.decode, m)
	}
	if write {
		fmt.Fprintln(s.out)
	}
	if dispatch {
		object.Finish(ctx, s.decode, m)
	}
}
