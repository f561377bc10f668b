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
	eb "encoding/binary"
	"io"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/data/endian"
	"github.com/pkg/errors"
)

const initialBufferSize = 64 * 1024

// Reader decodes records from a trace stream. It keeps a single buffer of
// unconsumed input which is compacted and refilled as records need more
// bytes.
type Reader struct {
	in     io.Reader
	buf    []byte
	idx    int
	len    int
	offset int64
}

// NewReader returns a Reader that decodes the trace in.
func NewReader(in io.Reader) *Reader {
	return &Reader{in: in, buf: make([]byte, initialBufferSize)}
}

// Offset returns the stream offset of the next record.
func (r *Reader) Offset() int64 { return r.offset }

// load makes sure that n bytes are buffered at at bytes past the cursor and
// returns them. Running out of input returns io.EOF if eofAllowed, otherwise
// ErrShortRead.
func (r *Reader) load(at, n int, eofAllowed bool) ([]byte, error) {
	if r.idx+at+n <= r.len {
		return r.buf[r.idx+at : r.idx+at+n], nil
	}
	if r.idx > 0 {
		r.len = copy(r.buf, r.buf[r.idx:r.len])
		r.idx = 0
	}
	if at+n > len(r.buf) {
		grown := make([]byte, max(at+n, 2*len(r.buf)))
		copy(grown, r.buf[:r.len])
		r.buf = grown
	}
	for at+n > r.len {
		got, err := r.in.Read(r.buf[r.len:])
		r.len += got
		if at+n <= r.len {
			break
		}
		switch {
		case err == io.EOF && eofAllowed:
			return nil, io.EOF
		case err == io.EOF:
			return nil, ErrShortRead
		case err != nil:
			return nil, err
		}
	}
	return r.buf[at : at+n], nil
}

// cursor reads the bytes of one record without consuming them from the
// Reader. It implements io.Reader so that fixed fields can be decoded with an
// endian reader.
type cursor struct {
	r   *Reader
	off int
}

func (c *cursor) Read(p []byte) (int, error) {
	b, err := c.r.load(c.off, len(p), false)
	if err != nil {
		return 0, err
	}
	c.off += copy(p, b)
	return len(p), nil
}

// peek returns the byte at the cursor without moving it, or io.EOF.
func (c *cursor) peek(at int) (byte, error) {
	b, err := c.r.load(c.off+at, 1, true)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) fields() binary.Reader {
	return endian.Reader(c, eb.LittleEndian)
}

func checkEOR(d binary.Reader) {
	if e := d.Uint8(); d.Error() == nil && e != EOR {
		d.SetError(errors.Wrapf(ErrBadEOR, "got 0x%02x", e))
	}
}

// Next decodes and returns the next record. It returns io.EOF when the trace
// ends cleanly between records. Any other failure is fatal for the stream.
func (r *Reader) Next(ctx context.Context) (Record, error) {
	c := &cursor{r: r}
	tag, err := c.peek(0)
	if err != nil {
		return nil, err
	}
	rec, err := r.decode(ctx, c, tag)
	if err != nil {
		return nil, errors.Wrapf(err, "record '%c' at offset %d", tag, r.offset)
	}
	r.idx += c.off
	r.offset += int64(c.off)
	return rec, nil
}

// Decode calls handle for every record of the trace until the end of the
// stream or the first error.
func (r *Reader) Decode(ctx context.Context, handle func(context.Context, Record) error) error {
	for {
		rec, err := r.Next(ctx)
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
		if err := handle(ctx, rec); err != nil {
			return err
		}
	}
}

func (r *Reader) decode(ctx context.Context, c *cursor, tag byte) (Record, error) {
	d := c.fields()
	d.Uint8()
	var rec Record
	switch tag {
	case TagMessage, TagMessage2:
		return decodeMessage(c, tag)
	case TagIoctlPre, TagIoctlPost:
		return decodeIoctl(ctx, c, d, tag == TagIoctlPost)
	case TagNested:
		return decodeNested(ctx, c, d)
	case TagRead:
		rec = &Read{ID: d.Uint32(), Offset: d.Uint32(), Data: readData8(d)}
	case TagReadAddr:
		rec = &ReadAddr{Addr: d.Uint64(), Data: readData8(d)}
	case TagWrite:
		rec = &Write{ID: d.Uint32(), Offset: d.Uint32(), Data: readData8(d)}
	case TagWriteAddr:
		rec = &WriteAddr{Addr: d.Uint64(), Data: readData8(d)}
	case TagMmap:
		m := &Mmap{Offset: d.Uint64()}
		m.ID, m.Start, m.Len = d.Uint32(), d.Uint64(), d.Uint64()
		rec = m
	case TagMmap2:
		m := &Mmap{V2: true, Offset: d.Uint64(), Prot: d.Uint32(), Flags: d.Uint32(), FD: d.Uint32()}
		m.ID, m.Start, m.Len = d.Uint32(), d.Uint64(), d.Uint64()
		rec = m
	case TagUnmap:
		rec = &Unmap{
			Offset: d.Uint64(), ID: d.Uint32(), Start: d.Uint64(), Len: d.Uint64(),
			Data1: d.Uint64(), Data2: d.Uint64(),
		}
	case TagMremap:
		rec = &Mremap{
			Offset: d.Uint64(), ID: d.Uint32(), OldStart: d.Uint64(), OldLen: d.Uint64(),
			Data1: d.Uint64(), Data2: d.Uint64(), Start: d.Uint64(), Len: d.Uint64(),
		}
	case TagOpen:
		rec = &Open{Flags: d.Uint32(), Mode: d.Uint32(), Ret: d.Uint32(), Path: d.Blob()}
	case TagWriteFD:
		rec = &WriteFD{FD: d.Uint32(), Data: d.Blob()}
	case TagDup:
		rec = &Dup{OldFD: d.Uint32(), NewFD: d.Uint32()}
	case TagSync:
		rec = &Sync{ID: d.Uint32()}
	default:
		return nil, errors.Wrapf(ErrUnknownRecord, "tag 0x%02x", tag)
	}
	checkEOR(d)
	return rec, d.Error()
}

func readData8(d binary.Reader) []byte {
	out := make([]byte, d.Uint8())
	d.Data(out)
	return out
}

func decodeMessage(c *cursor, kind byte) (Record, error) {
	c.off = 1
	for n := 0; ; n++ {
		b, err := c.r.load(1+n, 1, false)
		if err != nil {
			return nil, err
		}
		if b[0] == '\n' {
			text, _ := c.r.load(1, n, false)
			c.off = 1 + n + 1
			return &Message{Kind: kind, Text: append([]byte(nil), text...)}, nil
		}
	}
}

func decodeIoctl(ctx context.Context, c *cursor, d binary.Reader, post bool) (Record, error) {
	rec := &Ioctl{Post: post, FD: d.Uint32(), ID: IoctlID(d.Uint32())}
	if post {
		rec.Ret, rec.Err = d.Uint64(), d.Uint64()
	}
	rec.Data = d.Blob()
	checkEOR(d)
	if err := d.Error(); err != nil {
		return nil, err
	}
	for len(rec.Dumps) < MaxDumps {
		if tag, err := c.peek(0); err != nil || tag != TagDump {
			break
		}
		d.Uint8()
		dump := Dump{Addr: d.Uint64(), Data: d.Blob()}
		checkEOR(d)
		if err := d.Error(); err != nil {
			return nil, err
		}
		rec.Dumps = append(rec.Dumps, dump)
	}
	return rec, nil
}
