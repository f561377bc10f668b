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

	"github.com/envytools/demmt/core/fault"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/object"
	"github.com/envytools/demmt/demmt/pushbuf"
	"github.com/pkg/errors"
)

// ErrBadPushbufData is returned for a pushbuf submission record whose arrays
// run past its end.
const ErrBadPushbufData = fault.Const("invalid nouveau pushbuf data")

// Sizes of the arrays of a GEM pushbuf submission.
const (
	boSize    = 40
	pushSize  = 24
	relocSize = 28
)

// Push length flags.
const (
	pushLengthMask = 0x007ffffc
	pushUnk8       = 1 << 0
	pushNotMain    = 1 << 1
	pushNoPrefetch = 1 << 23
)

// BO is a buffer object referenced by a pushbuf submission.
type BO struct {
	UserPriv        uint64
	Handle          uint32
	ReadDomains     uint32
	WriteDomains    uint32
	ValidDomains    uint32
	PresumedValid   uint32
	PresumedDomain  uint32
	PresumedAddress uint64
}

// Push is a command range of a pushbuf submission.
type Push struct {
	BOIndex uint32
	Offset  uint64
	Length  uint64
}

// Reloc is a relocation of a pushbuf submission.
type Reloc struct {
	RelocBOIndex  uint32
	RelocBOOffset uint32
	BOIndex       uint32
	Flags         uint32
	Data          uint32
	Vor           uint32
	Tor           uint32
}

func readBOs(data []byte) []BO {
	r := reader(data)
	out := make([]BO, len(data)/boSize)
	for i := range out {
		b := &out[i]
		b.UserPriv = r.Uint64()
		b.Handle, b.ReadDomains, b.WriteDomains, b.ValidDomains = r.Uint32(), r.Uint32(), r.Uint32(), r.Uint32()
		b.PresumedValid, b.PresumedDomain = r.Uint32(), r.Uint32()
		b.PresumedAddress = r.Uint64()
	}
	return out
}

func readPushes(data []byte) []Push {
	r := reader(data)
	out := make([]Push, len(data)/pushSize)
	for i := range out {
		p := &out[i]
		p.BOIndex = r.Uint32()
		r.Uint32()
		p.Offset, p.Length = r.Uint64(), r.Uint64()
	}
	return out
}

func readRelocs(data []byte) []Reloc {
	r := reader(data)
	out := make([]Reloc, len(data)/relocSize)
	for i := range out {
		l := &out[i]
		l.RelocBOIndex, l.RelocBOOffset, l.BOIndex = r.Uint32(), r.Uint32(), r.Uint32()
		l.Flags, l.Data, l.Vor, l.Tor = r.Uint32(), r.Uint32(), r.Uint32(), r.Uint32()
	}
	return out
}

func limit[T any](s []T, n uint32) []T {
	if uint64(n) < uint64(len(s)) {
		return s[:n]
	}
	return s
}

// DecodePushbufData decodes a standalone nouveau pushbuf record: three
// length-prefixed arrays of buffer objects, pushes and relocations. It is
// decoded against the active fifo.
func DecodePushbufData(ctx context.Context, env *Env, data []byte) error {
	r := reader(data)
	bos, push, relocs := r.Blob(), r.Blob(), r.Blob()
	if err := r.Error(); err != nil {
		return errors.Wrapf(ErrBadPushbufData, "%d bytes", len(data))
	}
	b, p, l := readBOs(bos), readPushes(push), readRelocs(relocs)
	env.printf("%s data, nr_buffers: %s, nr_relocs: %s, nr_push: %s\n",
		env.name(nouveauNames[NouveauGemPushbuf]), env.num(len(b)), env.num(len(l)), env.num(len(p)))
	Submit(ctx, env, nil, b, p, l)
	return nil
}

// Submit prints a pushbuf submission and decodes each of its pushes through
// the GPU mapping of the buffer object it names. A nil fifo selects the
// active one.
func Submit(ctx context.Context, env *Env, fifo *object.Fifo, bos []BO, pushes []Push, relocs []Reloc) {
	if env.Describe {
		for i, b := range bos {
			env.printf("buffer[%d]: handle: %s, read_domains: %s, write_domains: %s, valid_domains: %s, presumed.valid: %d, presumed.domain: %s, presumed.gpu_start: %s\n",
				i, env.num(fmt.Sprintf("%2d", b.Handle)), domain(b.ReadDomains), domain(b.WriteDomains),
				domain(b.ValidDomains), b.PresumedValid, domain(b.PresumedDomain),
				env.Palette.Wrap(env.Palette.Target, fmt.Sprintf("0x%x", b.PresumedAddress)))
		}
		for i, l := range relocs {
			env.printf("relocs[%d]: reloc_bo_index: %d, reloc_bo_offset: %d, bo_index: %d, flags: 0x%x, data: 0x%x, vor: 0x%x, tor: 0x%x\n",
				i, l.RelocBOIndex, l.RelocBOOffset, l.BOIndex, l.Flags, l.Data, l.Vor, l.Tor)
		}
		for i, p := range pushes {
			flags := ""
			if p.Length&pushUnk8 != 0 {
				flags += ", unk8: 1"
			}
			if p.Length&pushNotMain != 0 {
				flags += ", not_main: 1"
			}
			if p.Length&pushNoPrefetch != 0 {
				flags += ", no_prefetch: 1"
			}
			env.printf("push[%d]: bo_index: %d, offset: %s, length: %s%s\n", i, p.BOIndex,
				env.num(fmt.Sprintf("0x%x", p.Offset)), env.num(fmt.Sprintf("0x%x", p.Length&pushLengthMask)), flags)
		}
	}

	if fifo == nil {
		fifo = env.Objects.Active()
	}
	pb := pushbuf.NewDecoder(fifo, env.Decode)
	for _, p := range pushes {
		if int(p.BOIndex) >= len(bos) {
			log.E(ctx, "push references buffer %d of %d", p.BOIndex, len(bos))
			continue
		}
		start := bos[p.BOIndex].PresumedAddress
		b := env.Decode.FindGPU(start)
		if b == nil {
			log.E(ctx, "couldn't find buffer 0x%x", start)
			continue
		}
		pb.PrintRange(ctx, b, start+p.Offset, (p.Length&pushLengthMask)>>2)
	}
}
