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

// Package session ties the trace reader to the buffer, object and ioctl
// trackers. A Session consumes trace records in order and prints the
// decoded activity.
package session

import (
	"context"
	"fmt"
	"io"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/config"
	"github.com/envytools/demmt/demmt/ioctl"
	"github.com/envytools/demmt/demmt/object"
	"github.com/envytools/demmt/demmt/trace"
	"github.com/pkg/errors"
)

// Session is the state of a single decode run.
type Session struct {
	Buffers *buffer.Registry
	Objects *object.Registry
	Ioctls  *ioctl.Registry

	out     io.Writer
	opts    *config.Options
	palette color.Palette
	decode  *object.Env
	ioctl   *ioctl.Env
	// nouveau is set once a DRM ioctl was seen.
	nouveau bool
}

// New returns a session printing to out with the settings of opts.
func New(out io.Writer, opts *config.Options, palette color.Palette) *Session {
	f := &opts.Filters
	s := &Session{
		out:     out,
		opts:    opts,
		palette: palette,
		Objects: object.NewRegistry(uint32(opts.Chipset)),
		Ioctls:  ioctl.NewRegistry(),
	}
	s.Buffers = buffer.NewRegistry(s.decodeBuffer)
	s.Buffers.IBSupported = opts.Chipset.IBSupported()
	if opts.PBPointer.Set {
		s.Buffers.RingID = opts.PBPointer.ID
		s.Buffers.RingOffset = opts.PBPointer.Offset
	}
	opts.ApplyClasses(s.Objects)
	s.decode = &object.Env{
		Out:            out,
		Buffers:        s.Buffers,
		Palette:        palette,
		DecodePB:       f.PB,
		BufferUsage:    f.BufferUsage,
		MacroRT:        f.MacroRT,
		MacroRTVerbose: f.MacroRTVerbose,
		MacroDis:       f.MacroDis,
	}
	s.ioctl = &ioctl.Env{
		Out:      out,
		Palette:  palette,
		Objects:  s.Objects,
		Decode:   s.decode,
		Describe: f.IoctlDesc,
	}
	ioctl.RegisterDRM(s.Ioctls, s.ioctl)
	ioctl.RegisterNvidia(s.Ioctls)
	return s
}

// Nouveau returns true once the trace was found to come from the nouveau
// driver.
func (s *Session) Nouveau() bool { return s.nouveau }

// Run decodes every record of the trace in and then finishes the session.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	r := trace.NewReader(in)
	n := 0
	err := r.Decode(ctx, func(ctx context.Context, rec trace.Record) error {
		n++
		return s.Handle(ctx, rec)
	})
	if err != nil {
		return log.Errf(ctx, err, "decoding stopped after %d records", n)
	}
	return s.Finish(ctx)
}

// Finish flushes the pending writes and prints the buffer summary.
func (s *Session) Finish(ctx context.Context) error {
	if err := s.Buffers.Flush(ctx); err != nil {
		return err
	}
	if s.opts.Filters.BufferUsage {
		s.Buffers.Dump(ctx)
	}
	return nil
}

// Handle applies a single trace record.
func (s *Session) Handle(ctx context.Context, rec trace.Record) error {
	f := &s.opts.Filters
	switch r := rec.(type) {
	case *trace.Read:
		return s.read(ctx, int(r.ID), uint64(r.Offset), r.Data)
	case *trace.ReadAddr:
		b, offset := s.byAddress(ctx, r.Addr)
		if b == nil {
			return nil
		}
		return s.read(ctx, b.ID, offset, r.Data)
	case *trace.Write:
		return s.write(ctx, int(r.ID), uint64(r.Offset), r.Data)
	case *trace.WriteAddr:
		b, offset := s.byAddress(ctx, r.Addr)
		if b == nil {
			return nil
		}
		return s.write(ctx, b.ID, offset, r.Data)
	case *trace.Mmap:
		if f.SysMmap {
			fd := ""
			if r.V2 {
				fd = fmt.Sprintf(", fd: %d", r.FD)
			}
			log.I(ctx, "mmap: address: 0x%x, length: 0x%08x, id: %d, offset: 0x%08x%s", r.Start, r.Len, r.ID, r.Offset, fd)
		}
		_, err := s.Buffers.Mmap(ctx, int(r.ID), r.Start, r.Len, r.Offset, nil)
		return err
	case *trace.Unmap:
		if f.SysMunmap {
			log.I(ctx, "munmap: address: 0x%x, length: 0x%08x, id: %d, offset: 0x%08x, data1: 0x%08x, data2: 0x%08x",
				r.Start, r.Len, r.ID, r.Offset, r.Data1, r.Data2)
		}
		return s.Buffers.Munmap(ctx, int(r.ID))
	case *trace.Mremap:
		if f.SysMremap {
			log.I(ctx, "mremap: old_address: 0x%x, new_address: 0x%x, old_length: 0x%08x, new_length: 0x%08x, id: %d, offset: 0x%08x, data1: 0x%08x, data2: 0x%08x",
				r.OldStart, r.Start, r.OldLen, r.Len, r.ID, r.Offset, r.Data1, r.Data2)
		}
		if err := s.Buffers.Flush(ctx); err != nil {
			return err
		}
		return s.Buffers.Mremap(ctx, int(r.ID), r.Start, r.Len, r.Offset, buffer.Tags{Data1: r.Data1, Data2: r.Data2})
	case *trace.Open:
		if f.SysOpen {
			log.I(ctx, "sys_open: %s, flags: 0x%x, mode: 0x%x, ret: %d", r.Path, r.Flags, r.Mode, int32(r.Ret))
		}
	case *trace.Dup:
		if f.SysOpen {
			log.I(ctx, "sys_dup: old: %d, new: %d", r.OldFD, r.NewFD)
		}
	case *trace.WriteFD:
		if f.SysWrite {
			s.out.Write(r.Data)
		}
	case *trace.Sync:
		if f.Info {
			log.I(ctx, "sync %d", r.ID)
		}
	case *trace.Message:
		if f.Msg {
			fmt.Fprintf(s.out, "MSG: %c%s\n", r.Kind, r.Text)
		}
	case *trace.Ioctl:
		return s.handleIoctl(ctx, ioctl.CallOf(r))
	case *trace.NvIoctl:
		return s.handleIoctl(ctx, ioctl.Call{Post: r.Post, FD: r.FD, ID: r.ID, Data: r.Data, Dumps: r.Dumps})
	case *trace.NvDump:
	default:
		return s.nested(ctx, rec)
	}
	return nil
}

// byAddress resolves a CPU address to a live buffer and an offset into it.
func (s *Session) byAddress(ctx context.Context, addr uint64) (*buffer.Buffer, uint64) {
	b := s.Buffers.FindLive(func(b *buffer.Buffer) bool {
		return addr >= b.CPUStart && addr < b.CPUStart+b.Length
	})
	if b == nil {
		log.W(ctx, "no buffer is mapped at 0x%x", addr)
		return nil, 0
	}
	return b, addr - b.CPUStart
}

func (s *Session) write(ctx context.Context, id int, offset uint64, data []byte) error {
	if err := s.Buffers.RegisterWrite(ctx, id, offset, data); err != nil {
		return errors.Wrapf(err, "write to buffer %d at 0x%x", id, offset)
	}
	return nil
}

func (s *Session) read(ctx context.Context, id int, offset uint64, data []byte) error {
	if err := s.Buffers.RegisterRead(ctx); err != nil {
		return err
	}
	if !s.opts.Filters.Read {
		return nil
	}
	b, err := s.Buffers.Get(id)
	if err != nil {
		return errors.Wrapf(err, "read from buffer %d", id)
	}
	c := s.gpuComment(b, offset)
	r := reader(data)
	switch n := len(data); n {
	case 1:
		fmt.Fprintf(s.out, "r %d:0x%04x%s, 0x%02x\n", id, offset, c, r.Uint8())
	case 2:
		fmt.Fprintf(s.out, "r %d:0x%04x%s, 0x%04x\n", id, offset, c, r.Uint16())
	case 4, 8, 16, 32:
		fmt.Fprintf(s.out, "r %d:0x%04x%s, ", id, offset, c)
		for i := 0; i < n; i += 4 {
			fmt.Fprintf(s.out, "0x%08x ", r.Uint32())
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

// gpuComment returns the GPU address annotation of a buffer offset.
func (s *Session) gpuComment(b *buffer.Buffer, offset uint64) string {
	if !s.opts.Filters.GPUAddr || b.GPUStart == 0 {
		return ""
	}
	return fmt.Sprintf(" (gpu=0x%08x)", b.GPUStart+offset)
}

func (s *Session) markNouveau() {
	s.nouveau = true
	s.Objects.Nouveau = true
}

func (s *Session) handleIoctl(ctx context.Context, c ioctl.Call) error {
	if c.Post {
		s.ioctlPost(ctx, c)
		return nil
	}
	return s.ioctlPre(ctx, c)
}

func (s *Session) ioctlPre(ctx context.Context, c ioctl.Call) error {
	if c.ID.Type() == ioctl.TypeDRM {
		s.markNouveau()
	}
	raw := true
	if d := s.Ioctls.Find(c.ID); d != nil {
		raw = d.Pre(ctx, c)
	}
	raw = raw || s.opts.Filters.IoctlRaw
	if raw {
		s.rawIoctl("ioctl pre ", c)
	}
	if !s.Buffers.Dirty() {
		if raw {
			fmt.Fprint(s.out, ", no dirty buffers\n")
		}
		return nil
	}
	if raw {
		fmt.Fprint(s.out, ", flushing buffered writes\n")
	}
	return s.Buffers.Flush(ctx)
}

func (s *Session) ioctlPost(ctx context.Context, c ioctl.Call) {
	raw := false
	if d := s.Ioctls.Find(c.ID); d != nil {
		raw = d.Post(ctx, c)
	}
	if raw || s.opts.Filters.IoctlRaw {
		s.rawIoctl("ioctl post", c)
		fmt.Fprintln(s.out)
	}
}

func (s *Session) rawIoctl(what string, c ioctl.Call) {
	size := c.ID.Size()
	fmt.Fprintf(s.out, "%s 0x%02x (0x%08x), fd: %d, dir: %2s, size: %4d",
		what, c.ID.Nr(), uint32(c.ID), c.FD, c.ID.DirString(), size)
	if int(size) != len(c.Data) {
		fmt.Fprintf(s.out, ", data.len: %d", len(c.Data))
	}
	if s.opts.Filters.IoctlRaw {
		fmt.Fprint(s.out, ", data:")
		r := reader(c.Data)
		for i := 0; i+4 <= len(c.Data); i += 4 {
			fmt.Fprintf(s.out, " 0x%08x", r.Uint32())
		}
	}
}
