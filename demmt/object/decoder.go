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

package object

import (
	"context"
	"fmt"
	"io"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/buffer"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/macro"
)

// Env is the decoding environment shared by all class decoders.
type Env struct {
	Out     io.Writer
	Buffers *buffer.Registry
	Palette color.Palette
	// DecodePB enables the pushbuffer annotations.
	DecodePB bool
	// BufferUsage enables usage tracking of buffers named by address methods.
	BufferUsage bool
	// MacroRT enables macro simulation.
	MacroRT bool
	// MacroRTVerbose prints every simulated macro instruction.
	MacroRTVerbose bool
	// MacroDis prints uploaded macro programs.
	MacroDis bool
}

// FindGPU returns the buffer mapped at GPU address addr.
func (e *Env) FindGPU(addr uint64) *buffer.Buffer {
	if e.Buffers == nil {
		return nil
	}
	return e.Buffers.FindGPU(addr)
}

// Method is a single method write.
type Method struct {
	Object     *Object
	Subchannel int
	Mthd       uint32
	Data       uint32
	// Last is true for the last data word of a command.
	Last bool
}

// Decoder interprets the method writes of one object.
type Decoder interface {
	// Terse appends annotations to the current output line. It must not
	// print newlines.
	Terse(ctx context.Context, env *Env, m Method)
	// Verbose runs after the output line is complete and may print
	// whole lines.
	Verbose(ctx context.Context, env *Env, m Method)
}

// Factory creates the decoder of a new object.
type Factory func(o *Object) Decoder

// Dispatch records m in the register file of its object and runs the
// object's terse decoder.
func Dispatch(ctx context.Context, env *Env, m Method) {
	o := m.Object
	if o == nil {
		return
	}
	if !o.SetReg(m.Mthd, m.Data) {
		log.I(ctx, "not enough space for object data 0x%x", m.Mthd)
	}
	if o.Decoder != nil {
		o.Decoder.Terse(ctx, env, m)
	}
}

// Finish runs the verbose decoder of the object of m.
func Finish(ctx context.Context, env *Env, m Method) {
	if o := m.Object; o != nil && o.Decoder != nil {
		o.Decoder.Verbose(ctx, env, m)
	}
}

// macroTarget routes macro method writes to an object.
type macroTarget struct {
	obj *Object
	env *Env
}

func (t macroTarget) Read(mthd uint32) uint32 { return t.obj.Reg(mthd) }

func (t macroTarget) Describe(mthd, data uint32) (string, string, string) {
	return Describe(t.obj, t.env.Palette, mthd, data)
}

func (t macroTarget) Send(ctx context.Context, mthd, data uint32) {
	if !t.obj.SetReg(mthd, data) {
		log.W(ctx, "method 0x%x >= 0x%x", mthd, RegisterCount*4)
	}
	if t.env.MacroRTVerbose {
		return
	}
	obj, name, val := Describe(t.obj, t.env.Palette, mthd, data)
	fmt.Fprintf(t.env.Out, "PM: 0x%08x   %s.%s = %s", data, obj, name, val)
	m := Method{Object: t.obj, Mthd: mthd, Data: data, Last: true}
	if t.obj.Decoder != nil {
		t.obj.Decoder.Terse(ctx, t.env, m)
	}
	fmt.Fprintln(t.env.Out)
	if t.obj.Decoder != nil {
		t.obj.Decoder.Verbose(ctx, t.env, m)
	}
}

// MacroEnv returns the macro environment for macros running on o.
func (e *Env) MacroEnv(o *Object) *macro.Env {
	return &macro.Env{
		Out:         e.Out,
		Target:      macroTarget{obj: o, env: e},
		Palette:     e.Palette,
		Run:         e.MacroRT,
		Verbose:     e.MacroRTVerbose,
		Disassemble: e.MacroDis,
	}
}
