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

// Nested record subtypes, following the 'n' tag.
const (
	NvCreateObjectTag   = 'c'
	NvDestroyObjectTag  = 'd'
	NvCallMethodTag     = 'l'
	NvCreateMappedTag   = 'p'
	NvCreateDMATag      = 't'
	NvAllocMapTag       = 'a'
	NvGPUMapTag         = 'g'
	NvGPUMap2Tag        = 'G'
	NvGPUUnmapTag       = 'h'
	NvGPUUnmap2Tag      = 'H'
	NvMmapTag           = 'm'
	NvMmap2Tag          = 'M'
	NvUnmapTag          = 'e'
	NvBindTag           = 'b'
	NvCreateDriverTag   = 'r'
	NvCreateDeviceTag   = 'v'
	NvCreateContextTag  = 'x'
	NvCallMethodDataTag = '1'
	NvIoctl4DTag        = '4'
	NvMarkTag           = 'k'
	NouveauPushbufTag   = 'P'
	NvDumpTag           = 'o'
	NvIoctlPreTag       = 'i'
	NvIoctlPostTag      = 'j'
)

// NvCreateObject is the creation of object Obj2 of Class under parent Obj1.
type NvCreateObject struct {
	Obj1  uint32
	Obj2  uint32
	Class uint32
	Name  []byte
}

// NvDestroyObject is the destruction of object Obj2 under parent Obj1.
type NvDestroyObject struct {
	Obj1 uint32
	Obj2 uint32
}

// NvCallMethod is a method call on an object.
type NvCallMethod struct {
	Data1 uint32
	Data2 uint32
}

// NvCreateMapped ties an object to the mmap offset it will be mapped at.
type NvCreateMapped struct {
	Data1      uint32
	Data2      uint32
	Type       uint32
	MmapOffset uint64
}

// NvCreateDMA is the creation of a DMA object.
type NvCreateDMA struct {
	Name   uint32
	Type   uint32
	Parent uint32
}

// NvAllocMap ties an allocation to the mmap offset it will be mapped at.
type NvAllocMap struct {
	Data1      uint32
	Data2      uint32
	MmapOffset uint64
}

// NvGPUMap maps an allocation into the GPU address space. Wide records carry
// a 64 bit GPU address.
type NvGPUMap struct {
	Wide     bool
	Data1    uint32
	Data2    uint32
	Data3    uint32
	GPUStart uint64
	Len      uint32
}

// NvGPUUnmap removes a GPU address space mapping.
type NvGPUUnmap struct {
	Wide     bool
	Data1    uint32
	Data2    uint32
	Data3    uint32
	GPUStart uint64
}

// NvMmap describes the allocation behind a CPU mapping.
type NvMmap struct {
	V2     bool
	Offset uint64
	Prot   uint32
	Flags  uint32
	FD     uint32
	ID     uint32
	Start  uint64
	Len    uint64
	Data1  uint64
	Data2  uint64
}

// NvUnmap releases the allocation mapped at MmapOffset.
type NvUnmap struct {
	Data1      uint32
	Data2      uint32
	MmapOffset uint64
}

// NvBind binds two objects.
type NvBind struct {
	Data1 uint32
	Data2 uint32
}

// NvCreateDriver is the creation of the driver object.
type NvCreateDriver struct {
	Obj1 uint32
	Obj2 uint32
	Addr uint64
}

// NvCreateDevice is the creation of a device object.
type NvCreateDevice struct {
	Obj1 uint32
}

// NvCreateContext is the creation of a context object.
type NvCreateContext struct {
	Obj1 uint32
}

// NvCallMethodData is a method call carrying inline data.
type NvCallMethodData struct {
	Cnt  uint32
	Tx   uint64
	Data []byte
}

// NvIoctl4D is the string argument of an 0x4d ioctl.
type NvIoctl4D struct {
	Str []byte
}

// NvMark is an mmiotrace marker.
type NvMark struct {
	Str []byte
}

// NouveauPushbuf is the content of a nouveau GEM pushbuf submission.
type NouveauPushbuf struct {
	Data []byte
}

// NvDump is a memory dump that was not attached to an ioctl.
type NvDump struct {
	Dump
}

// NvIoctl is a vendor ioctl call, followed by its memory dumps.
type NvIoctl struct {
	Post  bool
	FD    uint32
	ID    IoctlID
	Data  []byte
	Dumps Dumps
}

func nested(w binary.Writer, subtype byte) {
	w.Uint8(TagNested)
	w.Uint8(subtype)
}

func (r *NvCreateObject) encode(w binary.Writer) {
	nested(w, NvCreateObjectTag)
	w.Uint32(r.Obj1)
	w.Uint32(r.Obj2)
	w.Uint32(r.Class)
	w.Blob(r.Name)
	w.Uint8(EOR)
}

func (r *NvDestroyObject) encode(w binary.Writer) {
	nested(w, NvDestroyObjectTag)
	w.Uint32(r.Obj1)
	w.Uint32(r.Obj2)
	w.Uint8(EOR)
}

func (r *NvCallMethod) encode(w binary.Writer) {
	nested(w, NvCallMethodTag)
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint8(EOR)
}

func (r *NvCreateMapped) encode(w binary.Writer) {
	nested(w, NvCreateMappedTag)
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint32(r.Type)
	w.Uint64(r.MmapOffset)
	w.Uint8(EOR)
}

func (r *NvCreateDMA) encode(w binary.Writer) {
	nested(w, NvCreateDMATag)
	w.Uint32(r.Name)
	w.Uint32(r.Type)
	w.Uint32(r.Parent)
	w.Uint8(EOR)
}

func (r *NvAllocMap) encode(w binary.Writer) {
	nested(w, NvAllocMapTag)
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint64(r.MmapOffset)
	w.Uint8(EOR)
}

func (r *NvGPUMap) encode(w binary.Writer) {
	if r.Wide {
		nested(w, NvGPUMap2Tag)
	} else {
		nested(w, NvGPUMapTag)
	}
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint32(r.Data3)
	if r.Wide {
		w.Uint64(r.GPUStart)
	} else {
		w.Uint32(uint32(r.GPUStart))
	}
	w.Uint32(r.Len)
	w.Uint8(EOR)
}

func (r *NvGPUUnmap) encode(w binary.Writer) {
	if r.Wide {
		nested(w, NvGPUUnmap2Tag)
	} else {
		nested(w, NvGPUUnmapTag)
	}
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint32(r.Data3)
	if r.Wide {
		w.Uint64(r.GPUStart)
	} else {
		w.Uint32(uint32(r.GPUStart))
	}
	w.Uint8(EOR)
}

func (r *NvMmap) encode(w binary.Writer) {
	if r.V2 {
		nested(w, NvMmap2Tag)
		w.Uint64(r.Offset)
		w.Uint32(r.Prot)
		w.Uint32(r.Flags)
		w.Uint32(r.FD)
	} else {
		nested(w, NvMmapTag)
		w.Uint64(r.Offset)
	}
	w.Uint32(r.ID)
	w.Uint64(r.Start)
	w.Uint64(r.Len)
	w.Uint64(r.Data1)
	w.Uint64(r.Data2)
	w.Uint8(EOR)
}

func (r *NvUnmap) encode(w binary.Writer) {
	nested(w, NvUnmapTag)
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint64(r.MmapOffset)
	w.Uint8(EOR)
}

func (r *NvBind) encode(w binary.Writer) {
	nested(w, NvBindTag)
	w.Uint32(r.Data1)
	w.Uint32(r.Data2)
	w.Uint8(EOR)
}

func (r *NvCreateDriver) encode(w binary.Writer) {
	nested(w, NvCreateDriverTag)
	w.Uint32(r.Obj1)
	w.Uint32(r.Obj2)
	w.Uint64(r.Addr)
	w.Uint8(EOR)
}

func (r *NvCreateDevice) encode(w binary.Writer) {
	nested(w, NvCreateDeviceTag)
	w.Uint32(r.Obj1)
	w.Uint8(EOR)
}

func (r *NvCreateContext) encode(w binary.Writer) {
	nested(w, NvCreateContextTag)
	w.Uint32(r.Obj1)
	w.Uint8(EOR)
}

func (r *NvCallMethodData) encode(w binary.Writer) {
	nested(w, NvCallMethodDataTag)
	w.Uint32(r.Cnt)
	w.Uint64(r.Tx)
	w.Blob(r.Data)
	w.Uint8(EOR)
}

func (r *NvIoctl4D) encode(w binary.Writer) {
	nested(w, NvIoctl4DTag)
	w.Blob(r.Str)
	w.Uint8(EOR)
}

func (r *NvMark) encode(w binary.Writer) {
	nested(w, NvMarkTag)
	w.Blob(r.Str)
	w.Uint8(EOR)
}

func (r *NouveauPushbuf) encode(w binary.Writer) {
	nested(w, NouveauPushbufTag)
	w.Blob(r.Data)
	w.Uint8(EOR)
}

func encodeNvDump(w binary.Writer, d Dump) {
	nested(w, NvDumpTag)
	w.Uint64(d.Addr)
	w.Blob(d.Label)
	w.Blob(d.Data)
	w.Uint8(EOR)
}

func (r *NvDump) encode(w binary.Writer) { encodeNvDump(w, r.Dump) }

func (r *NvIoctl) encode(w binary.Writer) {
	if r.Post {
		nested(w, NvIoctlPostTag)
	} else {
		nested(w, NvIoctlPreTag)
	}
	w.Uint32(r.FD)
	w.Uint32(uint32(r.ID))
	w.Blob(r.Data)
	w.Uint8(EOR)
	for _, d := range r.Dumps {
		encodeNvDump(w, d)
	}
}
