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

package config

import (
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Open opens the trace at path. Compressed traces are decompressed on the
// fly, chosen by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := Decompress(f, filepath.Ext(path))
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return r, nil
}

// Decompress wraps in with the decompressor for the file extension ext. The
// returned reader closes in when it is closed.
func Decompress(in io.ReadCloser, ext string) (io.ReadCloser, error) {
	switch strings.ToLower(ext) {
	case ".gz":
		z, err := gzip.NewReader(in)
		if err != nil {
			return nil, err
		}
		return chain{z, z, in}, nil
	case ".zst", ".zstd":
		z, err := zstd.NewReader(in)
		if err != nil {
			return nil, err
		}
		rc := z.IOReadCloser()
		return chain{rc, rc, in}, nil
	case ".xz":
		z, err := xz.NewReader(in)
		if err != nil {
			return nil, err
		}
		return chain{z, nil, in}, nil
	case ".bz2":
		return chain{bzip2.NewReader(in), nil, in}, nil
	}
	return in, nil
}

type chain struct {
	io.Reader
	inner io.Closer
	outer io.Closer
}

func (c chain) Close() error {
	if c.inner != nil {
		c.inner.Close()
	}
	return c.outer.Close()
}

// ChipsetFromName derives the chipset from a trace file name of the form
// nvXX..., for example nvc0-glxgears.mmt.gz.
func ChipsetFromName(path string) (Chipset, bool) {
	base := strings.ToLower(filepath.Base(path))
	if !strings.HasPrefix(base, "nv") {
		return 0, false
	}
	digits := base[2:]
	n := 0
	for n < len(digits) && strings.IndexByte("0123456789abcdef", digits[n]) >= 0 {
		n++
	}
	v, err := strconv.ParseUint(digits[:n], 16, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return Chipset(v), true
}
