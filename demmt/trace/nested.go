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

import (
	"context"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/log"
	"github.com/pkg/errors"
)

func decodeNested(ctx context.Context, c *cursor, d binary.Reader) (Record, error) {
	subtype := d.Uint8()
	if err := d.Error(); err != nil {
		return nil, err
	}
	var rec Record
	switch subtype {
	case NvIoctlPreTag, NvIoctlPostTag:
		return decodeNvIoctl(ctx, c, d, subtype == NvIoctlPostTag)
	case NvCreateObjectTag:
		rec = &NvCreateObject{Obj1: d.Uint32(), Obj2: d.Uint32(), Class: d.Uint32(), Name: d.Blob()}
	case NvDestroyObjectTag:
		rec = &NvDestroyObject{Obj1: d.Uint32(), Obj2: d.Uint32()}
	case NvCallMethodTag:
		rec = &NvCallMethod{Data1: d.Uint32(), Data2: d.Uint32()}
	case NvCreateMappedTag:
		rec = &NvCreateMapped{Data1: d.Uint32(), Data2: d.Uint32(), Type: d.Uint32(), MmapOffset: d.Uint64()}
	case NvCreateDMATag:
		rec = &NvCreateDMA{Name: d.Uint32(), Type: d.Uint32(), Parent: d.Uint32()}
	case NvAllocMapTag:
		rec = &NvAllocMap{Data1: d.Uint32(), Data2: d.Uint32(), MmapOffset: d.Uint64()}
	case NvGPUMapTag:
		rec = &NvGPUMap{Data1: d.Uint32(), Data2: d.Uint32(), Data3: d.Uint32(), GPUStart: uint64(d.Uint32()), Len: d.Uint32()}
	case NvGPUMap2Tag:
		rec = &NvGPUMap{Wide: true, Data1: d.Uint32(), Data2: d.Uint32(), Data3: d.Uint32(), GPUStart: d.Uint64(), Len: d.Uint32()}
	case NvGPUUnmapTag:
		rec = &NvGPUUnmap{Data1: d.Uint32(), Data2: d.Uint32(), Data3: d.Uint32(), GPUStart: uint64(d.Uint32())}
	case NvGPUUnmap2Tag:
		rec = &NvGPUUnmap{Wide: true, Data1: d.Uint32(), Data2: d.Uint32(), Data3: d.Uint32(), GPUStart: d.Uint64()}
	case NvMmapTag:
		m := &NvMmap{Offset: d.Uint64()}
		m.ID, m.Start, m.Len, m.Data1, m.Data2 = d.Uint32(), d.Uint64(), d.Uint64(), d.Uint64(), d.Uint64()
		rec = m
	case NvMmap2Tag:
		m := &NvMmap{V2: true, Offset: d.Uint64(), Prot: d.Uint32(), Flags: d.Uint32(), FD: d.Uint32()}
		m.ID, m.Start, m.Len, m.Data1, m.Data2 = d.Uint32(), d.Uint64(), d.Uint64(), d.Uint64(), d.Uint64()
		rec = m
	case NvUnmapTag:
		rec = &NvUnmap{Data1: d.Uint32(), Data2: d.Uint32(), MmapOffset: d.Uint64()}
	case NvBindTag:
		rec = &NvBind{Data1: d.Uint32(), Data2: d.Uint32()}
	case NvCreateDriverTag:
		rec = &NvCreateDriver{Obj1: d.Uint32(), Obj2: d.Uint32(), Addr: d.Uint64()}
	case NvCreateDeviceTag:
		rec = &NvCreateDevice{Obj1: d.Uint32()}
	case NvCreateContextTag:
		rec = &NvCreateContext{Obj1: d.Uint32()}
	case NvCallMethodDataTag:
		rec = &NvCallMethodData{Cnt: d.Uint32(), Tx: d.Uint64(), Data: d.Blob()}
	case NvIoctl4DTag:
		rec = &NvIoctl4D{Str: d.Blob()}
	case NvMarkTag:
		rec = &NvMark{Str: d.Blob()}
	case NouveauPushbufTag:
		rec = &NouveauPushbuf{Data: d.Blob()}
	case NvDumpTag:
		rec = &NvDump{Dump{Addr: d.Uint64(), Label: d.Blob(), Data: d.Blob()}}
	default:
		return nil, errors.Wrapf(ErrUnknownRecord, "nested subtype 0x%02x", subtype)
	}
	checkEOR(d)
	return rec, d.Error()
}

// decodeNvIoctl decodes a vendor ioctl and the 'n' 'o' dumps that follow it.
// Nested mmap records may be interleaved with the dumps. They carry nothing
// the ioctl decoders need and are dropped.
func decodeNvIoctl(ctx context.Context, c *cursor, d binary.Reader, post bool) (Record, error) {
	rec := &NvIoctl{Post: post, FD: d.Uint32(), ID: IoctlID(d.Uint32()), Data: d.Blob()}
	checkEOR(d)
	if err := d.Error(); err != nil {
		return nil, err
	}
	for len(rec.Dumps) < MaxNestedDumps {
		if tag, err := c.peek(0); err != nil || tag != TagNested {
			break
		}
		subtype, err := c.peek(1)
		if err != nil {
			break
		}
		switch subtype {
		case NvDumpTag:
			d.Uint8()
			d.Uint8()
			dump := Dump{Addr: d.Uint64(), Label: d.Blob(), Data: d.Blob()}
			checkEOR(d)
			if err := d.Error(); err != nil {
				return nil, err
			}
			rec.Dumps = append(rec.Dumps, dump)
		case NvMmapTag:
			skipped, err := decodeNested(ctx, c, skipTag(d))
			if err != nil {
				return nil, err
			}
			log.D(ctx, "Dropped %T between ioctl dumps", skipped)
		default:
			return rec, nil
		}
	}
	return rec, nil
}

func skipTag(d binary.Reader) binary.Reader {
	d.Uint8()
	return d
}
