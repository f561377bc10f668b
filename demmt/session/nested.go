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
	"context"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/ioctl"
	"github.com/envytools/demmt/demmt/trace"
)

// nested applies a record emitted by the proprietary driver tracer.
func (s *Session) nested(ctx context.Context, rec trace.Record) error {
	verbose := s.opts.Filters.NVRM
	bufs := s.Buffers
	switch r := rec.(type) {
	case *trace.NvCreateObject:
		if verbose {
			log.I(ctx, "create object: obj1: 0x%08x, obj2: 0x%08x, class: 0x%08x, name: \"%s\"", r.Obj1, r.Obj2, r.Class, r.Name)
		}
		s.Objects.Create(ctx, r.Obj1, r.Obj2, r.Class)
	case *trace.NvDestroyObject:
		if verbose {
			log.I(ctx, "destroy object: obj1: 0x%08x, obj2: 0x%08x", r.Obj1, r.Obj2)
		}
		s.Objects.Destroy(ctx, r.Obj1, r.Obj2)
	case *trace.NvCallMethod:
		if verbose {
			log.I(ctx, "call method: data1: 0x%08x, data2: 0x%08x", r.Data1, r.Data2)
		}
	case *trace.NvCallMethodData:
		if verbose {
			log.I(ctx, "call method data: cnt: %d, tx: 0x%x, data.len: %d", r.Cnt, r.Tx, len(r.Data))
		}
	case *trace.NvCreateMapped:
		if verbose {
			log.I(ctx, "create mapped object: mmap_offset: 0x%x, data1: 0x%08x, data2: 0x%08x, type: 0x%08x", r.MmapOffset, r.Data1, r.Data2, r.Type)
		}
		if r.MmapOffset == 0 {
			return nil
		}
		tags := buffer.Tags{Data1: uint64(r.Data1), Data2: uint64(r.Data2)}
		if b := bufs.FindByMmapOffset(r.MmapOffset); b != nil {
			b.Data1, b.Data2 = tags.Data1, tags.Data2
			return nil
		}
		bufs.AddHint(r.MmapOffset, tags)
	case *trace.NvCreateDMA:
		if verbose {
			log.I(ctx, "create dma object, name: 0x%08x, type: 0x%08x, parent: 0x%08x", r.Name, r.Type, r.Parent)
		}
	case *trace.NvAllocMap:
		if verbose {
			log.I(ctx, "allocate map: mmap_offset: 0x%x, data1: 0x%08x, data2: 0x%08x", r.MmapOffset, r.Data1, r.Data2)
		}
		s.allocMap(ctx, r)
	case *trace.NvGPUMap:
		if verbose {
			log.I(ctx, "gpu map: data1: 0x%08x, data2: 0x%08x, data3: 0x%08x, gpu_start: 0x%08x, len: 0x%08x", r.Data1, r.Data2, r.Data3, r.GPUStart, r.Len)
		}
		s.gpuMap(ctx, r)
	case *trace.NvGPUUnmap:
		if verbose {
			log.I(ctx, "gpu unmap: data1: 0x%08x, data2: 0x%08x, data3: 0x%08x, gpu_start: 0x%08x", r.Data1, r.Data2, r.Data3, r.GPUStart)
		}
		s.gpuUnmap(ctx, r)
	case *trace.NvMmap:
		if s.opts.Filters.SysMmap {
			log.I(ctx, "mmap: address: 0x%x, length: 0x%08x, id: %d, offset: 0x%08x, data1: 0x%08x, data2: 0x%08x", r.Start, r.Len, r.ID, r.Offset, r.Data1, r.Data2)
		}
		_, err := bufs.Mmap(ctx, int(r.ID), r.Start, r.Len, r.Offset, &buffer.Tags{Data1: r.Data1, Data2: r.Data2})
		return err
	case *trace.NvUnmap:
		if verbose {
			log.I(ctx, "deallocate map: mmap_offset: 0x%x, data1: 0x%08x, data2: 0x%08x", r.MmapOffset, r.Data1, r.Data2)
		}
		b := bufs.FindByMmapOffset(r.MmapOffset)
		if b == nil {
			log.W(ctx, "couldn't find buffer to free")
			return nil
		}
		return bufs.Munmap(ctx, b.ID)
	case *trace.NvBind:
		if verbose {
			log.I(ctx, "bind: data1: 0x%08x, data2: 0x%08x", r.Data1, r.Data2)
		}
	case *trace.NvCreateDriver:
		if verbose {
			log.I(ctx, "create driver object: obj1: 0x%08x, obj2: 0x%08x, addr: 0x%x", r.Obj1, r.Obj2, r.Addr)
		}
	case *trace.NvCreateDevice:
		if verbose {
			log.I(ctx, "create device object: obj1: 0x%08x", r.Obj1)
		}
	case *trace.NvCreateContext:
		if verbose {
			log.I(ctx, "create context object: obj1: 0x%08x", r.Obj1)
		}
	case *trace.NvIoctl4D:
		if verbose {
			log.I(ctx, "ioctl4d: %s", r.Str)
		}
	case *trace.NvMark:
		if s.opts.Filters.Msg {
			log.I(ctx, "mark: %s", r.Str)
		}
	case *trace.NouveauPushbuf:
		return ioctl.DecodePushbufData(ctx, s.ioctl, r.Data)
	default:
		log.W(ctx, "unhandled record %T", rec)
	}
	return nil
}

func (s *Session) allocMap(ctx context.Context, r *trace.NvAllocMap) {
	bufs := s.Buffers
	tags := buffer.Tags{Data1: uint64(r.Data1), Data2: uint64(r.Data2)}
	if b := bufs.FindByMmapOffset(r.MmapOffset); b != nil {
		b.Data1, b.Data2 = tags.Data1, tags.Data2
		return
	}
	g := bufs.FindGPUOnly(func(b *buffer.Buffer) bool {
		return b.Data1 == tags.Data1 && b.Data2 == tags.Data2
	})
	if g != nil {
		log.D(ctx, "gpu only buffer found, merging")
		g.MmapOffset = r.MmapOffset
		return
	}
	bufs.AddHint(r.MmapOffset, tags)
}

// gpuMap gives a GPU address to the mapping tagged with data1 and data3, or
// registers a GPU-only buffer when nothing is mapped yet.
func (s *Session) gpuMap(ctx context.Context, r *trace.NvGPUMap) {
	bufs := s.Buffers
	b := bufs.FindLive(func(b *buffer.Buffer) bool {
		return b.Data1 == uint64(r.Data1) && b.Data2 == uint64(r.Data3) && b.Length == uint64(r.Len)
	})
	if b != nil {
		log.D(ctx, "setting gpu address for buffer %d to 0x%08x", b.ID, r.GPUStart)
		bufs.SetGPU(b, r.GPUStart)
		return
	}
	bufs.RegisterGPUOnly(ctx, r.GPUStart, uint64(r.Len), 0, buffer.Tags{Data1: uint64(r.Data1), Data2: uint64(r.Data3)})
}

func (s *Session) gpuUnmap(ctx context.Context, r *trace.NvGPUUnmap) {
	bufs := s.Buffers
	match := func(b *buffer.Buffer) bool {
		return b.Data1 == uint64(r.Data1) && b.Data2 == uint64(r.Data3) && b.GPUStart == r.GPUStart
	}
	if b := bufs.FindLive(match); b != nil {
		log.D(ctx, "clearing gpu address for buffer %d (was: 0x%08x)", b.ID, b.GPUStart)
		bufs.SetGPU(b, 0)
		return
	}
	if g := bufs.FindGPUOnly(match); g != nil {
		log.D(ctx, "deregistering gpu only buffer of size %d", g.Length)
		bufs.FreeGPUOnly(g)
		return
	}
	log.W(ctx, "gpu only buffer not found")
}
