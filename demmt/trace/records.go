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

package trace

import "github.com/envytools/demmt/core/data/binary"

// Record is a single decoded trace record.
type Record interface {
	encode(w binary.Writer)
}

// Read is a read of a mapped buffer, addressed by buffer id.
type Read struct {
	ID     uint32
	Offset uint32
	Data   []byte
}

// ReadAddr is a read addressed by CPU virtual address.
type ReadAddr struct {
	Addr uint64
	Data []byte
}

// Write is a write to a mapped buffer, addressed by buffer id.
type Write struct {
	ID     uint32
	Offset uint32
	Data   []byte
}

// WriteAddr is a write addressed by CPU virtual address.
type WriteAddr struct {
	Addr uint64
	Data []byte
}

// Mmap is an mmap of the traced device. The V2 form also carries the
// protection, flags and file descriptor of the call.
type Mmap struct {
	V2     bool
	Offset uint64
	Prot   uint32
	Flags  uint32
	FD     uint32
	ID     uint32
	Start  uint64
	Len    uint64
}

// Unmap is an munmap of a traced mapping.
type Unmap struct {
	Offset uint64
	ID     uint32
	Start  uint64
	Len    uint64
	Data1  uint64
	Data2  uint64
}

// Mremap is an mremap of a traced mapping.
type Mremap struct {
	Offset   uint64
	ID       uint32
	OldStart uint64
	OldLen   uint64
	Data1    uint64
	Data2    uint64
	Start    uint64
	Len      uint64
}

// Open is an open syscall.
type Open struct {
	Flags uint32
	Mode  uint32
	Ret   uint32
	Path  []byte
}

// WriteFD is a write syscall.
type WriteFD struct {
	FD   uint32
	Data []byte
}

// Dup is a dup syscall.
type Dup struct {
	OldFD uint32
	NewFD uint32
}

// Sync is a synchronisation marker.
type Sync struct {
	ID uint32
}

// Message is a free text line. Kind is '=' or '-'.
type Message struct {
	Kind byte
	Text []byte
}

// Ioctl is an ioctl call seen before (Post false) or after (Post true) the
// kernel handled it. Ret and Err are only recorded after the call.
type Ioctl struct {
	Post  bool
	FD    uint32
	ID    IoctlID
	Ret   uint64
	Err   uint64
	Data  []byte
	Dumps Dumps
}

func data8(w binary.Writer, data []byte) {
	w.Uint8(uint8(len(data)))
	w.Data(data)
}

func (r *Read) encode(w binary.Writer) {
	w.Uint8(TagRead)
	w.Uint32(r.ID)
	w.Uint32(r.Offset)
	data8(w, r.Data)
	w.Uint8(EOR)
}

func (r *ReadAddr) encode(w binary.Writer) {
	w.Uint8(TagReadAddr)
	w.Uint64(r.Addr)
	data8(w, r.Data)
	w.Uint8(EOR)
}

func (r *Write) encode(w binary.Writer) {
	w.Uint8(TagWrite)
	w.Uint32(r.ID)
	w.Uint32(r.Offset)
	data8(w, r.Data)
	w.Uint8(EOR)
}

func (r *WriteAddr) encode(w binary.Writer) {
	w.Uint8(TagWriteAddr)
	w.Uint64(r.Addr)
	data8(w, r.Data)
	w.Uint8(EOR)
}

func (r *Mmap) encode(w binary.Writer) {
	if r.V2 {
		w.Uint8(TagMmap2)
		w.Uint64(r.Offset)
		w.Uint32(r.Prot)
		w.Uint32(r.Flags)
		w.Uint32(r.FD)
	} else {
		w.Uint8(TagMmap)
		w.Uint64(r.Offset)
	}
	w.Uint32(r.ID)
	w.Uint64(r.Start)
	w.Uint64(r.Len)
	w.Uint8(EOR)
}

func (r *Unmap) encode(w binary.Writer) {
	w.Uint8(TagUnmap)
	w.Uint64(r.Offset)
	w.Uint32(r.ID)
	w.Uint64(r.Start)
	w.Uint64(r.Len)
	w.Uint64(r.Data1)
	w.Uint64(r.Data2)
	w.Uint8(EOR)
}

func (r *Mremap) encode(w binary.Writer) {
	w.Uint8(TagMremap)
	w.Uint64(r.Offset)
	w.Uint32(r.ID)
	w.Uint64(r.OldStart)
	w.Uint64(r.OldLen)
	w.Uint64(r.Data1)
	w.Uint64(r.Data2)
	w.Uint64(r.Start)
	w.Uint64(r.Len)
	w.Uint8(EOR)
}

func (r *Open) encode(w binary.Writer) {
	w.Uint8(TagOpen)
	w.Uint32(r.Flags)
	w.Uint32(r.Mode)
	w.Uint32(r.Ret)
	w.Blob(r.Path)
	w.Uint8(EOR)
}

func (r *WriteFD) encode(w binary.Writer) {
	w.Uint8(TagWriteFD)
	w.Uint32(r.FD)
	w.Blob(r.Data)
	w.Uint8(EOR)
}

func (r *Dup) encode(w binary.Writer) {
	w.Uint8(TagDup)
	w.Uint32(r.OldFD)
	w.Uint32(r.NewFD)
	w.Uint8(EOR)
}

func (r *Sync) encode(w binary.Writer) {
	w.Uint8(TagSync)
	w.Uint32(r.ID)
	w.Uint8(EOR)
}

func (r *Message) encode(w binary.Writer) {
	kind := r.Kind
	if kind == 0 {
		kind = TagMessage
	}
	w.Uint8(kind)
	w.Data(r.Text)
	w.Uint8('\n')
}

func (r *Ioctl) encode(w binary.Writer) {
	if r.Post {
		w.Uint8(TagIoctlPost)
	} else {
		w.Uint8(TagIoctlPre)
	}
	w.Uint32(r.FD)
	w.Uint32(uint32(r.ID))
	if r.Post {
		w.Uint64(r.Ret)
		w.Uint64(r.Err)
	}
	w.Blob(r.Data)
	w.Uint8(EOR)
	for _, d := range r.Dumps {
		w.Uint8(TagDump)
		w.Uint64(d.Addr)
		w.Blob(d.Data)
		w.Uint8(EOR)
	}
}
