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

package endian_test

import (
	"bytes"
	eb "encoding/binary"
	"io"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/data/endian"
	"github.com/envytools/demmt/core/log"
	"github.com/pkg/errors"
)

func TestLittleEndianLayout(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := endian.Writer(buf, eb.LittleEndian)
	w.Uint8('r')
	w.Uint32(5)
	w.Uint16(0x0102)
	w.Uint64(0x1122334455667788)
	w.Blob([]byte("nv50"))
	assert.For(ctx, "write").ThatError(w.Error()).Succeeded()
	assert.For(ctx, "bytes").ThatSlice(buf.Bytes()).Equals([]byte{
		'r',
		5, 0, 0, 0,
		0x02, 0x01,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
		4, 0, 0, 0, 'n', 'v', '5', '0',
	})

	r := endian.Reader(bytes.NewReader(buf.Bytes()), eb.LittleEndian)
	assert.For(ctx, "u8").That(r.Uint8()).Equals(uint8('r'))
	assert.For(ctx, "u32").That(r.Uint32()).Equals(uint32(5))
	assert.For(ctx, "u16").That(r.Uint16()).Equals(uint16(0x0102))
	assert.For(ctx, "u64").That(r.Uint64()).Equals(uint64(0x1122334455667788))
	assert.For(ctx, "blob").ThatString(r.Blob()).Equals("nv50")
	assert.For(ctx, "read").ThatError(r.Error()).Succeeded()
}

func TestShortReadIsSticky(t *testing.T) {
	ctx := log.Testing(t)
	r := endian.Reader(bytes.NewReader([]byte{1, 2, 3}), eb.LittleEndian)
	assert.For(ctx, "short u32").That(r.Uint32()).Equals(uint32(0))
	assert.For(ctx, "cause").That(errors.Is(r.Error(), io.ErrUnexpectedEOF)).Equals(true)
	assert.For(ctx, "after error").That(r.Uint8()).Equals(uint8(0))
}

func TestBlobTruncated(t *testing.T) {
	ctx := log.Testing(t)
	r := endian.Reader(bytes.NewReader([]byte{8, 0, 0, 0, 'a', 'b'}), eb.LittleEndian)
	assert.For(ctx, "blob").ThatSlice(r.Blob()).IsEmpty()
	assert.For(ctx, "err").ThatError(r.Error()).Failed()
}
