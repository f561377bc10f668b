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

package ioctl

import (
	"context"
	"fmt"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/object"
)

// Nouveau command numbers.
const (
	NouveauGetParam      = 0x40
	NouveauSetParam      = 0x41
	NouveauChannelAlloc  = 0x42
	NouveauChannelFree   = 0x43
	NouveauGrobjAlloc    = 0x44
	NouveauNotifierAlloc = 0x45
	NouveauGpuobjFree    = 0x46
	NouveauGemNew        = 0x80
	NouveauGemPushbuf    = 0x81
	NouveauGemCPUPrep    = 0x82
	NouveauGemCPUFini    = 0x83
	NouveauGemInfo       = 0x84
)

var nouveauNames = map[uint8]string{
	NouveauGetParam:      "DRM_NOUVEAU_GETPARAM",
	NouveauSetParam:      "DRM_NOUVEAU_SETPARAM",
	NouveauChannelAlloc:  "DRM_NOUVEAU_CHANNEL_ALLOC",
	NouveauChannelFree:   "DRM_NOUVEAU_CHANNEL_FREE",
	NouveauGrobjAlloc:    "DRM_NOUVEAU_GROBJ_ALLOC",
	NouveauNotifierAlloc: "DRM_NOUVEAU_NOTIFIEROBJ_ALLOC",
	NouveauGpuobjFree:    "DRM_NOUVEAU_GPUOBJ_FREE",
	NouveauGemNew:        "DRM_NOUVEAU_GEM_NEW",
	NouveauGemPushbuf:    "DRM_NOUVEAU_GEM_PUSHBUF",
	NouveauGemCPUPrep:    "DRM_NOUVEAU_GEM_CPU_PREP",
	NouveauGemCPUFini:    "DRM_NOUVEAU_GEM_CPU_FINI",
	NouveauGemInfo:       "DRM_NOUVEAU_GEM_INFO",
}

var paramNames = []string{
	"?", "?", "?",
	"PCI_VENDOR", "PCI_DEVICE", "BUS_TYPE", "FB_PHYSICAL", "AGP_PHYSICAL",
	"FB_SIZE", "AGP_SIZE", "PCI_PHYSICAL", "CHIPSET_ID", "VM_VRAM_BASE",
	"GRAPH_UNITS", "PTIMER_TIME", "HAS_BO_USAGE", "HAS_PAGEFLIP",
}

const paramChipsetID = 11

func paramName(p uint64) string {
	if p < uint64(len(paramNames)) {
		return paramNames[p]
	}
	return "???"
}

// ChannelClass is the class the fifo of a nouveau channel is tracked with.
const ChannelClass = 0x506f

// ChannelHandle returns the handle the fifo of nouveau channel ch is tracked
// under. The kernel never exposes one.
func ChannelHandle(ch uint32) uint32 { return 0xf1f0e000 | ch&0xfff }

// nouveau decodes the driver specific DRM commands.
type nouveau struct {
	env *Env
}

type gemInfo struct {
	Handle    uint32
	Domain    uint32
	Size      uint64
	Offset    uint64
	MapHandle uint64
	TileMode  uint32
	TileFlags uint32
}

func readGemInfo(r binary.Reader) gemInfo {
	g := gemInfo{Handle: r.Uint32(), Domain: r.Uint32()}
	g.Size, g.Offset, g.MapHandle = r.Uint64(), r.Uint64(), r.Uint64()
	g.TileMode, g.TileFlags = r.Uint32(), r.Uint32()
	return g
}

func (e *Env) gemInfo(g gemInfo) string {
	return fmt.Sprintf("handle: %s, domain: %s, size: %s, gpu_start: %s, mmap_offset: %s, tile_mode: 0x%02x, tile_flags: 0x%04x",
		e.num(fmt.Sprintf("%3d", g.Handle)), domain(g.Domain),
		e.num(fmt.Sprintf("0x%x", g.Size)), e.Palette.Wrap(e.Palette.Target, fmt.Sprintf("0x%x", g.Offset)),
		e.num(fmt.Sprintf("0x%x", g.MapHandle)), g.TileMode, g.TileFlags)
}

type gemPushbuf struct {
	Channel   uint32
	NrBuffers uint32
	Buffers   uint64
	NrRelocs  uint32
	NrPush    uint32
	Relocs    uint64
	Push      uint64
	Suffix0   uint32
	Suffix1   uint32
	VRAM      uint64
	GART      uint64
}

func readGemPushbuf(r binary.Reader) gemPushbuf {
	p := gemPushbuf{Channel: r.Uint32(), NrBuffers: r.Uint32(), Buffers: r.Uint64()}
	p.NrRelocs, p.NrPush = r.Uint32(), r.Uint32()
	p.Relocs, p.Push = r.Uint64(), r.Uint64()
	p.Suffix0, p.Suffix1 = r.Uint32(), r.Uint32()
	p.VRAM, p.GART = r.Uint64(), r.Uint64()
	return p
}

func (e *Env) gemPushbuf(p gemPushbuf) string {
	return fmt.Sprintf("channel: %d, nr_buffers: %s, buffers: 0x%x, nr_relocs: %s, relocs: 0x%x, nr_push: %s, push: 0x%x, suffix0: 0x%x, suffix1: 0x%x, vram_available: %d, gart_available: %d",
		p.Channel, e.num(p.NrBuffers), p.Buffers, e.num(p.NrRelocs), p.Relocs,
		e.num(p.NrPush), p.Push, p.Suffix0, p.Suffix1, p.VRAM, p.GART)
}

func (n *nouveau) Pre(ctx context.Context, c Call) bool {
	env := n.env
	name := env.name(nouveauNames[c.ID.Nr()])
	r := c.Args()
	switch c.ID.Nr() {
	case NouveauGetParam:
	case NouveauSetParam:
		param, value := r.Uint64(), r.Uint64()
		env.printf("%s, param: %s (0x%x), value: 0x%x\n", name, paramName(param), param, value)
	case NouveauChannelAlloc:
		fb, tt := r.Uint32(), r.Uint32()
		env.printf("%s pre,  fb_ctxdma: 0x%x, tt_ctxdma: 0x%x\n", name, fb, tt)
	case NouveauChannelFree:
		env.printf("%s, channel: %d\n", name, r.Uint32())
	case NouveauGrobjAlloc:
		ch, handle, class := r.Uint32(), r.Uint32(), r.Uint32()
		env.printf("%s, channel: %d, handle: %s, class: %s\n", name, ch,
			env.num(fmt.Sprintf("0x%x", handle)), env.Palette.Wrap(env.Palette.Name, fmt.Sprintf("0x%x", class)))
	case NouveauNotifierAlloc:
		ch, handle, size := r.Uint32(), r.Uint32(), r.Uint32()
		env.printf("%s pre,  channel: %d, handle: 0x%x, size: %d\n", name, ch, handle, size)
	case NouveauGpuobjFree:
		ch, handle := r.Uint32(), r.Uint32()
		env.printf("%s, channel: %d, handle: 0x%x\n", name, ch, handle)
	case NouveauGemNew:
		info := readGemInfo(r)
		hint, align := r.Uint32(), r.Uint32()
		env.printf("%s pre,  %s, channel_hint: %d, align: 0x%06x\n", name, env.gemInfo(info), hint, align)
	case NouveauGemPushbuf:
		env.printf("%s pre,  %s\n", name, env.gemPushbuf(readGemPushbuf(r)))
	case NouveauGemCPUPrep:
		handle, flags := r.Uint32(), r.Uint32()
		env.printf("%s, handle: %s, flags: 0x%x\n", name, env.num(fmt.Sprintf("%3d", handle)), flags)
	case NouveauGemCPUFini:
		env.printf("%s, handle: %d\n", name, r.Uint32())
	case NouveauGemInfo:
		env.printf("%s pre,  handle: %s\n", name, env.num(fmt.Sprintf("%3d", r.Uint32())))
	default:
		return true
	}
	return false
}

func (n *nouveau) Post(ctx context.Context, c Call) bool {
	env := n.env
	name := env.name(nouveauNames[c.ID.Nr()])
	failed := c.Ret != 0 || c.Err != 0
	r := c.Args()
	switch c.ID.Nr() {
	case NouveauGetParam:
		param, value := r.Uint64(), r.Uint64()
		env.printf("%s, param: %14s (0x%x), value: %s%s\n", name, paramName(param), param,
			env.num(fmt.Sprintf("0x%x", value)), retErr(env.Palette, c))
		if param == paramChipsetID && env.Objects.Chipset == 0 && !failed {
			log.I(ctx, "chipset 0x%x reported by the driver", value)
			env.Objects.SetChipset(uint32(value))
		}
	case NouveauSetParam:
		if failed {
			param, value := r.Uint64(), r.Uint64()
			env.printf("%s, param: %s (0x%x), value: 0x%x%s\n", name, paramName(param), param, value, retErr(env.Palette, c))
		}
	case NouveauChannelAlloc:
		fb, tt, ch := r.Uint32(), r.Uint32(), r.Uint32()
		domains, notifier := r.Uint32(), r.Uint32()
		subchans := ""
		for i := 0; i < object.Subchannels; i++ {
			handle, class := r.Uint32(), r.Uint32()
			if handle != 0 || class != 0 {
				subchans += fmt.Sprintf(" subchan[%d]=<h:0x%x, c:0x%x>", i, handle, class)
			}
		}
		nr := r.Uint32()
		env.printf("%s post, fb_ctxdma: 0x%x, tt_ctxdma: 0x%x, channel: %d, pushbuf_domains: %s, notifier: 0x%x, nr_subchan: %d%s%s\n",
			name, fb, tt, ch, domain(domains), notifier, nr, subchans, retErr(env.Palette, c))
		if !failed {
			env.Objects.Create(ctx, 0, ChannelHandle(ch), ChannelClass)
		}
	case NouveauChannelFree:
		ch := r.Uint32()
		if failed {
			env.printf("%s, channel: %d%s\n", name, ch, retErr(env.Palette, c))
		}
		env.Objects.Destroy(ctx, 0, ChannelHandle(ch))
	case NouveauGrobjAlloc:
		ch, handle, class := r.Uint32(), r.Uint32(), r.Uint32()
		if failed {
			env.printf("%s, channel: %d, handle: 0x%x, class: 0x%x%s\n", name, ch, handle, class, retErr(env.Palette, c))
		}
		n.grobj(ctx, ch, handle, class)
	case NouveauNotifierAlloc:
		ch, handle, size, offset := r.Uint32(), r.Uint32(), r.Uint32(), r.Uint32()
		env.printf("%s post, channel: %d, handle: 0x%x, size: %d, offset: %d%s\n",
			name, ch, handle, size, offset, retErr(env.Palette, c))
	case NouveauGpuobjFree:
		ch, handle := r.Uint32(), r.Uint32()
		if failed {
			env.printf("%s, channel: %d, handle: 0x%x%s\n", name, ch, handle, retErr(env.Palette, c))
		}
		env.Objects.Destroy(ctx, ChannelHandle(ch), handle)
	case NouveauGemNew:
		info := readGemInfo(r)
		hint, align := r.Uint32(), r.Uint32()
		env.printf("%s post, %s, channel_hint: %d, align: 0x%06x%s\n", name, env.gemInfo(info), hint, align, retErr(env.Palette, c))
		n.gem(ctx, info)
	case NouveauGemPushbuf:
		p := readGemPushbuf(r)
		env.printf("%s post, %s%s\n", name, env.gemPushbuf(p), retErr(env.Palette, c))
		bos := c.Pointer(p.Buffers)
		push := c.Pointer(p.Push)
		relocs := c.Pointer(p.Relocs)
		if bos != nil || push != nil || relocs != nil {
			fifo := env.Objects.Fifo(ChannelHandle(p.Channel))
			Submit(ctx, env, fifo,
				limit(readBOs(bos), p.NrBuffers),
				limit(readPushes(push), p.NrPush),
				limit(readRelocs(relocs), p.NrRelocs))
		}
	case NouveauGemCPUPrep:
		if failed {
			handle, flags := r.Uint32(), r.Uint32()
			env.printf("%s, handle: %d, flags: 0x%x%s\n", name, handle, flags, retErr(env.Palette, c))
		}
	case NouveauGemCPUFini:
		if failed {
			env.printf("%s, handle: %d%s\n", name, r.Uint32(), retErr(env.Palette, c))
		}
	case NouveauGemInfo:
		info := readGemInfo(r)
		env.printf("%s post, %s%s\n", name, env.gemInfo(info), retErr(env.Palette, c))
		n.gem(ctx, info)
	default:
		return true
	}
	return false
}

// grobj registers a graphics object in the fifo of channel ch. Nouveau
// binds objects by class, so the class doubles as the object name.
func (n *nouveau) grobj(ctx context.Context, ch, handle, class uint32) {
	objs := n.env.Objects
	o := objs.Create(ctx, ChannelHandle(ch), handle, class)
	if o == nil {
		return
	}
	o.Fifo.SetName(ctx, handle, class)
}

// gem records the GPU address of a GEM object on its buffer. Objects that
// are not mapped yet are kept as GPU-only buffers until their mmap shows up.
func (n *nouveau) gem(ctx context.Context, g gemInfo) {
	bufs := n.env.Decode.Buffers
	if g.Offset == 0 {
		return
	}
	if b := bufs.FindByMmapOffset(g.MapHandle); b != nil {
		if b.GPUStart != g.Offset {
			bufs.SetGPU(b, g.Offset)
		}
		return
	}
	if b := bufs.FindGPU(g.Offset); b != nil && b.GPUStart == g.Offset {
		return
	}
	bufs.RegisterGPUOnly(ctx, g.Offset, g.Size, g.MapHandle, buffer.Tags{})
}
