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

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/macro"
)

// engine is the builtin decoder. It tracks the address pairs of its class
// and, for classes with a macro unit, feeds the macro program of the fifo.
type engine struct {
	obj    *Object
	addrs  *Addresses
	macros bool
}

func (e *engine) Terse(ctx context.Context, env *Env, m Method) {
	e.addrs.Terse(ctx, env, m)
}

func (e *engine) Verbose(ctx context.Context, env *Env, m Method) {
	switch {
	case e.addrs.IsLow(m.Mthd):
		log.D(ctx, "buffer found: %v", e.addrs.Mapped(m.Mthd) != nil)
	case e.macros && e.obj.Fifo != nil:
		e.obj.Fifo.Macro.Method(ctx, env.MacroEnv(e.obj), m.Mthd, m.Data, m.Last)
	}
}

func (e *engine) MethodName(mthd uint32) string {
	if n := e.addrs.MethodName(mthd); n != "" {
		return n
	}
	if !e.macros {
		return ""
	}
	switch {
	case mthd == macro.MethodCodePos:
		return "MACRO_CODE_POS"
	case mthd == macro.MethodCodeData:
		return "MACRO_CODE_DATA"
	case mthd == macro.MethodEntryPos:
		return "MACRO_ENTRY_POS"
	case mthd == macro.MethodEntryData:
		return "MACRO_ENTRY_DATA"
	case mthd >= macro.MethodMacro && mthd < macro.MethodMacroEnd:
		i := (mthd - macro.MethodMacro) / 8
		if mthd&4 == 0 {
			return fmt.Sprintf("MACRO[%d]", i)
		}
		return fmt.Sprintf("MACRO_PARAM[%d]", i)
	}
	return ""
}

// Engine returns a factory for the builtin decoder with the given address
// pairs. macros enables the macro unit.
func Engine(macros bool, pairs ...AddressPair) Factory {
	return func(o *Object) Decoder {
		return &engine{obj: o, addrs: NewAddresses(pairs...), macros: macros}
	}
}

func pair(name string, high uint32) AddressPair {
	return AddressPair{Name: name, High: high, Low: high + 4}
}

func array(name, field string, high, length, stride uint32) AddressPair {
	return AddressPair{Name: name, Field: field, High: high, Low: high + 4, Length: length, Stride: stride}
}

var (
	semaphore = pair("SEMAPHORE", 0x0010)
	notify    = pair("NOTIFY", 0x0104)
	upload    = []AddressPair{pair("UPLOAD.DST", 0x0188), pair("UPLOAD.QUERY", 0x01dc)}
)

var (
	g80TwoD = []AddressPair{pair("DST", 0x0220), pair("SRC", 0x0250)}

	g80Compute = []AddressPair{
		semaphore,
		pair("CODE", 0x0210),
		pair("STACK", 0x0218),
		pair("TSC", 0x022c),
		pair("LOCAL", 0x0294),
		pair("CB_DEF", 0x02a4),
		pair("TIC", 0x02c4),
		pair("QUERY", 0x0310),
		pair("COND", 0x0320),
		array("GLOBAL", "", 0x0400, 16, 32),
	}

	gf100TwoD = []AddressPair{notify, pair("SRC", 0x0250), pair("DST", 0x0220)}

	gf100M2MF = []AddressPair{
		pair("OFFSET_OUT", 0x0238),
		pair("OFFSET_IN", 0x030c),
		pair("QUERY", 0x032c),
	}

	gf100ThreeD = []AddressPair{
		semaphore,
		notify,
		pair("TEMP", 0x0790),
		pair("ZCULL", 0x07e8),
		{Name: "ZCULL_LIMIT", High: 0x07f0, Low: 0x07f4, CheckOffset: -1},
		pair("VERTEX_RUNOUT", 0x0f84),
		pair("ZETA", 0x0fe0),
		pair("TSC", 0x155c),
		pair("TIC", 0x1574),
		pair("CODE", 0x1608),
		pair("VERTEX_QUARANTINE", 0x17bc),
		pair("INDEX_ARRAY_START", 0x17c8),
		pair("INDEX_ARRAY_LIMIT", 0x17d0),
		pair("QUERY", 0x1b00),
		pair("CB", 0x2384),
		array("RT", "", 0x0800, 8, 64),
		array("VERTEX_ARRAY_START", "", 0x1c04, 32, 16),
		array("VERTEX_ARRAY_LIMIT", "", 0x1f00, 32, 8),
		array("IMAGE", "", 0x2700, 8, 0x20),
	}

	gk104ThreeD = append(append([]AddressPair{}, gf100ThreeD...), upload...)

	gf100Compute = []AddressPair{
		pair("TSC", 0x155c),
		pair("TIC", 0x1574),
		pair("CODE", 0x1608),
		pair("CB", 0x2384),
		array("IMAGE", "", 0x2700, 8, 0x20),
	}

	gk104Compute = append([]AddressPair{
		pair("TEMP", 0x0790),
		pair("QUERY", 0x1b00),
		pair("TSC", 0x155c),
		pair("TIC", 0x1574),
		pair("CODE", 0x1608),
	}, upload...)
)

type family struct {
	classes []uint32
	macros  bool
	pairs   []AddressPair
}

var families = []family{
	{[]uint32{0x502d}, false, g80TwoD},
	{[]uint32{0x5039, 0x5097, 0x8297, 0x8397, 0x8597, 0x8697}, false, nil},
	{[]uint32{0x50c0, 0x85c0}, false, g80Compute},
	{[]uint32{0x902d}, false, gf100TwoD},
	{[]uint32{0x9039}, false, gf100M2MF},
	{[]uint32{0x9097, 0x9197, 0x9297}, true, gf100ThreeD},
	{[]uint32{0xa097, 0xa197, 0xa297, 0xb097, 0xb197, 0xc097}, true, gk104ThreeD},
	{[]uint32{0x90c0, 0x91c0}, false, gf100Compute},
	{[]uint32{0xa0c0, 0xa1c0, 0xb0c0, 0xb1c0, 0xc0c0, 0xc1c0}, false, gk104Compute},
	{[]uint32{0xa040, 0xa140}, false, upload},
	{[]uint32{0xa0b5, 0xb0b5, 0xc0b5, 0xc1b5}, false, nil},
}

func registerBuiltins(r *Registry) {
	for _, f := range families {
		for _, class := range f.classes {
			r.Register(class, Engine(f.macros, f.pairs...))
		}
	}
}
