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

// Package macro simulates the method expansion macros of the GF100+ graphics
// engines.
//
// Drivers upload macro code and an entry table through a set of methods and
// then invoke a macro by writing its first parameter to a MACRO method. The
// following parameters arrive through MACRO_PARAM writes.
package macro

import (
	"context"
	"fmt"

	"github.com/envytools/demmt/core/log"
)

const (
	// CodeSize is the size of macro code storage in bytes.
	CodeSize = 0x2000
	// Entries is the number of entries in the macro entry table.
	Entries = 0x80
)

// Macro upload and invocation methods.
const (
	MethodCodePos   = 0x0114
	MethodCodeData  = 0x0118
	MethodEntryPos  = 0x011c
	MethodEntryData = 0x0120
	MethodMacro     = 0x3800
	MethodMacroEnd  = MethodMacro + Entries*8
)

// Entry is one slot of the macro entry table.
type Entry struct {
	// Start is the byte offset of the macro in code storage.
	Start uint32
	// Words is the length of the macro if it is known.
	Words uint32
}

// Program is the macro storage of a graphics context.
type Program struct {
	Code    [CodeSize / 4]uint32
	Entries [Entries]Entry

	lastCodePos  uint32
	curCodePos   uint32
	lastEntryPos uint32
	end          uint32
	interp       Interpreter
}

// Interpreter returns the state of the last invocation.
func (p *Program) Interpreter() *Interpreter { return &p.interp }

// IsMethod returns true if mthd is one of the macro methods.
func IsMethod(mthd uint32) bool {
	switch mthd {
	case MethodCodePos, MethodCodeData, MethodEntryPos, MethodEntryData:
		return true
	}
	return mthd >= MethodMacro && mthd < MethodMacroEnd
}

// Method handles a write of data to mthd. last is true for the last data word
// of a command. It returns false if mthd is not a macro method.
func (p *Program) Method(ctx context.Context, env *Env, mthd, data uint32, last bool) bool {
	switch {
	case mthd == MethodCodePos:
		p.lastCodePos = data * 4
		p.curCodePos = data * 4
	case mthd == MethodCodeData:
		p.upload(ctx, env, data, last)
	case mthd == MethodEntryPos:
		p.lastEntryPos = data
	case mthd == MethodEntryData:
		if p.lastEntryPos >= Entries {
			log.I(ctx, "macro position (0x%x) over limit", p.lastEntryPos)
			break
		}
		p.Entries[p.lastEntryPos] = Entry{Start: data * 4}
		log.D(ctx, "binding entry at 0x%x to position 0x%x", data, p.lastEntryPos)
	case mthd >= MethodMacro && mthd < MethodMacroEnd:
		offset := mthd - MethodMacro
		idx := offset / 8
		if offset&7 == 0 {
			log.D(ctx, "MACRO[0x%x]: 0x%x", idx, data)
			p.interp.Start(p.code(idx), data, env.Target)
			if env.Run {
				p.interp.Run(ctx, env)
			}
			break
		}
		log.D(ctx, "MACRO_PARAM[0x%x]: 0x%x", idx, data)
		if env.Run {
			p.interp.Param(ctx, env, data)
		}
	default:
		return false
	}
	return true
}

func (p *Program) upload(ctx context.Context, env *Env, data uint32, last bool) {
	if p.curCodePos >= CodeSize {
		log.I(ctx, "not enough space for more macro code, truncating")
		return
	}
	p.Code[p.curCodePos/4] = data
	p.curCodePos += 4
	if p.curCodePos > p.end {
		p.end = p.curCodePos
	}
	if !last {
		return
	}
	for i := range p.Entries {
		if p.Entries[i].Start == p.lastCodePos {
			p.Entries[i].Words = (p.curCodePos - p.lastCodePos) / 4
			break
		}
	}
	if env.Disassemble {
		for _, line := range Disassemble(p.Code[p.lastCodePos/4:p.curCodePos/4], env.Palette) {
			fmt.Fprintln(env.Out, line)
		}
	}
}

// code returns the code of entry idx. It extends to the end of the uploaded
// code.
func (p *Program) code(idx uint32) []uint32 {
	start := p.Entries[idx].Start / 4
	end := p.end / 4
	if start >= end {
		return nil
	}
	return p.Code[start:end]
}
