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

package buffer

import (
	"context"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/core/math/interval"
	"github.com/pkg/errors"
)

// DecodeFunc is called for every buffer with pending writes when the
// registry flushes.
type DecodeFunc func(ctx context.Context, b *Buffer) error

// Tags are the correlation values carried by vendor mmap records.
type Tags struct {
	Data1, Data2 uint64
}

type hint struct {
	mmapOffset uint64
	tags       Tags
}

const noWrite = -1

// Registry owns every buffer of a decode session.
type Registry struct {
	// IBSupported selects IB rather than USER rings for the ring buffer.
	IBSupported bool
	// RingID is the id of the buffer holding the ring pointer, or -1.
	RingID int
	// RingOffset is the offset of the IB ring inside the ring buffer.
	RingOffset uint32

	decode  DecodeFunc
	byID    map[int]*Buffer
	live    []*Buffer
	gpuOnly []*Buffer
	hints   []hint
	gpu     interval.ValueSpanList[*Buffer]
	last    int
}

// NewRegistry returns an empty registry that hands flushed buffers to decode.
func NewRegistry(decode DecodeFunc) *Registry {
	return &Registry{
		RingID: -1,
		decode: decode,
		byID:   map[int]*Buffer{},
		last:   noWrite,
	}
}

// Get returns the live buffer with the given id.
func (r *Registry) Get(id int) (*Buffer, error) {
	if b, ok := r.byID[id]; ok {
		return b, nil
	}
	return nil, errors.Wrapf(ErrNoSuchBuffer, "buffer %d", id)
}

// Live returns the mapped buffers, most recently mapped first.
func (r *Registry) Live() []*Buffer { return r.live }

// GPUOnly returns the buffers that have a GPU address but no CPU mapping.
func (r *Registry) GPUOnly() []*Buffer { return r.gpuOnly }

// Dirty returns true if any buffer has pending writes.
func (r *Registry) Dirty() bool {
	for _, b := range r.live {
		if !b.Written.Empty() {
			return true
		}
	}
	return false
}

// Flush decodes every buffer with pending writes and then clears the pending
// writes of all buffers.
func (r *Registry) Flush(ctx context.Context) error {
	defer r.clear()
	for _, b := range r.live {
		if b.Written.Empty() {
			continue
		}
		log.D(ctx, "flushing buffer %d: %v", b.ID, &b.Written)
		if err := r.decode(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) clear() {
	for _, b := range r.live {
		b.Written.Clear()
	}
	r.last = noWrite
}

func (r *Registry) flushIfDirty(ctx context.Context, why string) error {
	if !r.Dirty() {
		return nil
	}
	log.D(ctx, "%s, flushing buffered writes", why)
	return r.Flush(ctx)
}

// RegisterRead flushes pending writes before a read is observed.
func (r *Registry) RegisterRead(ctx context.Context) error {
	return r.flushIfDirty(ctx, "read registered")
}

// RegisterWrite copies data into buffer id at offset and records the range as
// pending. A write to a different buffer than the previous write flushes
// first.
func (r *Registry) RegisterWrite(ctx context.Context, id int, offset uint64, data []byte) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	if r.last != noWrite && r.last != id && r.Dirty() {
		log.D(ctx, "new region write registered (new: %d, old: %d), flushing buffered writes", id, r.last)
		if err := r.Flush(ctx); err != nil {
			return err
		}
	}
	r.last = id
	end := offset + uint64(len(data))
	if end > b.Length || end < offset {
		log.E(ctx, "buffer %d is too small (%d) for write starting at %d and length %d", id, b.Length, offset, len(data))
		log.D(ctx, "currently buffered writes for id %d: %v", id, &b.Written)
		return errors.Wrapf(ErrWriteOutOfRange, "buffer %d, offset 0x%x, length %d", id, offset, len(data))
	}
	copy(b.Bytes()[offset:], data)
	if err := b.Written.Insert(offset, uint64(len(data))); err != nil {
		log.D(ctx, "currently buffered writes for id %d: %v", id, &b.Written)
		return errors.Wrapf(err, "buffer %d", id)
	}
	return nil
}

func roundUp(length uint64) uint64 { return (length + PageSize - 1) &^ (PageSize - 1) }

// Mmap registers a new CPU mapping with the given trace id. tags is nil for
// plain mmaps. A GPU-only buffer with matching tags or mmap offset is adopted
// instead of allocating a new image.
func (r *Registry) Mmap(ctx context.Context, id int, cpuStart, length, mmapOffset uint64, tags *Tags) (*Buffer, error) {
	if err := r.flushIfDirty(ctx, "mmap"); err != nil {
		return nil, err
	}
	length = roundUp(length)

	var b *Buffer
	for i, g := range r.gpuOnly {
		if (tags != nil && g.Data1 == tags.Data1 && g.Data2 == tags.Data2) || g.MmapOffset == mmapOffset {
			log.D(ctx, "gpu only buffer found (0x%016x), merging", g.GPUStart)
			b = g
			r.gpuOnly = append(r.gpuOnly[:i], r.gpuOnly[i+1:]...)
			break
		}
	}
	if b == nil {
		b = &Buffer{}
	}
	if old, ok := r.byID[id]; ok && old != b {
		log.W(ctx, "buffer %d mapped again without munmap", id)
		r.dropLive(old)
	}

	b.ID = id
	b.CPUStart = cpuStart
	b.resize(length)
	r.updateGPU(b)
	if b.MmapOffset != 0 && b.MmapOffset != mmapOffset {
		log.E(ctx, "different mmap offset of gpu only buffer 0x%x != 0x%x", b.MmapOffset, mmapOffset)
	}
	b.MmapOffset = mmapOffset
	if tags != nil {
		b.Data1, b.Data2 = tags.Data1, tags.Data2
	}
	for i, h := range r.hints {
		if h.mmapOffset != mmapOffset {
			continue
		}
		if b.Data1 != h.tags.Data1 || b.Data2 != h.tags.Data2 {
			log.D(ctx, "binding data1: 0x%08x, data2: 0x%08x to buffer id: %d", h.tags.Data1, h.tags.Data2, id)
			b.Data1, b.Data2 = h.tags.Data1, h.tags.Data2
		}
		r.hints = append(r.hints[:i], r.hints[i+1:]...)
		break
	}
	b.Type = Push
	if id == r.RingID {
		if r.IBSupported {
			b.Type = IB
			if r.RingOffset != 0 {
				b.Type |= Push
				b.IBOffset = r.RingOffset
			}
		} else {
			b.Type = User
		}
	}

	r.live = append([]*Buffer{b}, r.live...)
	r.byID[id] = b
	return b, nil
}

// Munmap removes the CPU mapping of buffer id. A buffer with a GPU address
// keeps its image and moves to the GPU-only list.
func (r *Registry) Munmap(ctx context.Context, id int) error {
	if err := r.flushIfDirty(ctx, "munmap"); err != nil {
		return err
	}
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	r.dropLive(b)
	if b.GPUStart != 0 {
		b.ID = GPUOnly
		b.CPUStart = 0
		r.gpuOnly = append([]*Buffer{b}, r.gpuOnly...)
		return nil
	}
	r.free(b)
	return nil
}

// Mremap moves and resizes buffer id.
func (r *Registry) Mremap(ctx context.Context, id int, start, length, mmapOffset uint64, tags Tags) error {
	if err := r.flushIfDirty(ctx, "mremap"); err != nil {
		return err
	}
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	b.resize(length)
	b.CPUStart = start
	b.MmapOffset = mmapOffset
	b.Data1, b.Data2 = tags.Data1, tags.Data2
	r.updateGPU(b)
	return nil
}

func (r *Registry) dropLive(b *Buffer) {
	for i, l := range r.live {
		if l == b {
			r.live = append(r.live[:i], r.live[i+1:]...)
			break
		}
	}
	if r.byID[b.ID] == b {
		delete(r.byID, b.ID)
	}
}

func (r *Registry) free(b *Buffer) {
	r.setGPU(b, 0)
	b.Written.Clear()
	b.Usages = [MaxUsages]Usage{}
	b.data = nil
}

// RegisterGPUOnly records a GPU allocation that has no CPU mapping yet.
func (r *Registry) RegisterGPUOnly(ctx context.Context, gpuStart, length, mmapOffset uint64, tags Tags) *Buffer {
	log.D(ctx, "registering gpu only buffer, gpu_address: 0x%x, size: 0x%x", gpuStart, length)
	b := &Buffer{
		ID:         GPUOnly,
		Type:       Push,
		Length:     length,
		MmapOffset: mmapOffset,
		Data1:      tags.Data1,
		Data2:      tags.Data2,
	}
	r.setGPU(b, gpuStart)
	r.gpuOnly = append([]*Buffer{b}, r.gpuOnly...)
	return b
}

// FreeGPUOnly forgets a GPU-only buffer.
func (r *Registry) FreeGPUOnly(b *Buffer) {
	for i, g := range r.gpuOnly {
		if g == b {
			r.gpuOnly = append(r.gpuOnly[:i], r.gpuOnly[i+1:]...)
			r.free(b)
			return
		}
	}
}

// AddHint remembers tags for a mapping at mmapOffset that has not been
// mmapped yet. The next Mmap at that offset takes the tags.
func (r *Registry) AddHint(mmapOffset uint64, tags Tags) {
	r.hints = append(r.hints, hint{mmapOffset: mmapOffset, tags: tags})
}

// FindByMmapOffset returns the live buffer mapped at mmapOffset.
func (r *Registry) FindByMmapOffset(mmapOffset uint64) *Buffer {
	for _, b := range r.live {
		if b.MmapOffset == mmapOffset {
			return b
		}
	}
	return nil
}

// FindGPUOnly returns the first GPU-only buffer that pred accepts.
func (r *Registry) FindGPUOnly(pred func(*Buffer) bool) *Buffer {
	for _, b := range r.gpuOnly {
		if pred(b) {
			return b
		}
	}
	return nil
}

// FindLive returns the first live buffer that pred accepts.
func (r *Registry) FindLive(pred func(*Buffer) bool) *Buffer {
	for _, b := range r.live {
		if pred(b) {
			return b
		}
	}
	return nil
}

// SetGPU assigns a GPU address to b. An address of 0 removes it.
func (r *Registry) SetGPU(b *Buffer, gpuStart uint64) { r.setGPU(b, gpuStart) }

func (r *Registry) setGPU(b *Buffer, gpuStart uint64) {
	if b.gpuSpan != 0 {
		r.gpu.Clear(interval.U64Span{Start: b.GPUStart, End: b.GPUStart + b.gpuSpan})
		b.gpuSpan = 0
	}
	b.GPUStart = gpuStart
	if gpuStart != 0 && b.Length != 0 {
		b.gpuSpan = b.Length
		r.gpu.Set(interval.U64Span{Start: gpuStart, End: gpuStart + b.Length}, b)
	}
}

func (r *Registry) updateGPU(b *Buffer) {
	if b.GPUStart != 0 && b.gpuSpan != b.Length {
		r.setGPU(b, b.GPUStart)
	}
}

// FindGPU returns the buffer whose GPU range contains addr.
func (r *Registry) FindGPU(addr uint64) *Buffer {
	if addr == 0 {
		return nil
	}
	b, _, ok := r.gpu.Find(addr)
	if !ok {
		return nil
	}
	return b
}

// GPUData returns length bytes of the image at GPU address addr, or nil if
// the range is not inside a single buffer.
func (r *Registry) GPUData(addr, length uint64) []byte {
	b := r.FindGPU(addr)
	if b == nil {
		return nil
	}
	offset := addr - b.GPUStart
	if offset+length > b.Length {
		return nil
	}
	return b.Bytes()[offset : offset+length]
}

// Dump logs every live buffer.
func (r *Registry) Dump(ctx context.Context) {
	for _, b := range r.live {
		log.I(ctx, "%v", b)
	}
}
