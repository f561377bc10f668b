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

// Package ioctl decodes the arguments of traced ioctl calls.
//
// Decoders are registered per ioctl type, optionally narrowed to a single
// command number, and are looked up with Registry.Find when the trace
// reaches an ioctl record.
package ioctl

import (
	"bytes"
	"context"
	eb "encoding/binary"
	"fmt"
	"io"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/data/endian"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/object"
	"github.com/envytools/demmt/demmt/trace"
)

// Call is a single ioctl invocation, seen before or after the kernel
// handled it.
type Call struct {
	Post  bool
	FD    uint32
	ID    trace.IoctlID
	Ret   uint64
	Err   uint64
	Data  []byte
	Dumps trace.Dumps
}

// CallOf returns the call recorded by rec.
func CallOf(rec *trace.Ioctl) Call {
	return Call{
		Post:  rec.Post,
		FD:    rec.FD,
		ID:    rec.ID,
		Ret:   rec.Ret,
		Err:   rec.Err,
		Data:  rec.Data,
		Dumps: rec.Dumps,
	}
}

// Pointer returns the memory captured at the user address addr. A null
// pointer resolves to nothing.
func (c Call) Pointer(addr uint64) []byte { return c.Dumps.Find(addr) }

// Args returns a little-endian reader over the argument block.
func (c Call) Args() binary.Reader { return reader(c.Data) }

func reader(data []byte) binary.Reader {
	return endian.Reader(bytes.NewReader(data), eb.LittleEndian)
}

// Decoder interprets the argument block of one family of ioctls. Both
// methods return whether the raw argument dump should still be printed.
type Decoder interface {
	Pre(ctx context.Context, c Call) bool
	Post(ctx context.Context, c Call) bool
}

// AnyNr registers a decoder for every command number of a type.
const AnyNr = -1

type key struct {
	typ uint8
	nr  int
}

// Registry maps ioctl ids to their decoders.
type Registry struct {
	decoders map[key]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: map[key]Decoder{}}
}

// Register installs d for ioctls of typ with command number nr, or for every
// command of typ when nr is AnyNr.
func (r *Registry) Register(typ uint8, nr int, d Decoder) {
	r.decoders[key{typ, nr}] = d
}

// Find returns the decoder for id, preferring an exact command match over a
// type-wide one. It returns nil if nothing is registered.
func (r *Registry) Find(id trace.IoctlID) Decoder {
	if d, ok := r.decoders[key{id.Type(), int(id.Nr())}]; ok {
		return d
	}
	return r.decoders[key{id.Type(), AnyNr}]
}

// Env is the state ioctl decoders act on.
type Env struct {
	Out     io.Writer
	Palette color.Palette
	Objects *object.Registry
	// Decode is the environment command streams submitted through an ioctl
	// are decoded in.
	Decode *object.Env
	// Describe prints the decoded arguments.
	Describe bool
}

func (e *Env) printf(format string, args ...interface{}) {
	if e.Describe {
		fmt.Fprintf(e.Out, format, args...)
	}
}

func (e *Env) name(s string) string { return e.Palette.Wrap(e.Palette.Name, s) }
func (e *Env) num(v interface{}) string {
	return e.Palette.Wrap(e.Palette.Num, fmt.Sprint(v))
}

// retErr formats the result of a call for the post lines.
func retErr(p color.Palette, c Call) string {
	s := ""
	if c.Ret != 0 {
		s += fmt.Sprintf(", ret: %d", int64(c.Ret))
	}
	if c.Err != 0 {
		s += ", " + p.Wrap(p.Err, fmt.Sprintf("err: %d", int64(c.Err)))
	}
	return s
}
