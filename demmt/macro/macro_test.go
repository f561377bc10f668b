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

package macro_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/macro"
)

type send struct{ mthd, data uint32 }

type target struct {
	regs  map[uint32]uint32
	sends []send
}

func (t *target) Read(mthd uint32) uint32 { return t.regs[mthd] }

func (t *target) Send(ctx context.Context, mthd, data uint32) {
	t.sends = append(t.sends, send{mthd, data})
}

func (t *target) Describe(mthd, data uint32) (string, string, string) {
	return "OBJ", fmt.Sprintf("0x%x", mthd), fmt.Sprintf("0x%x", data)
}

const (
	ffs = 0x91
	nop = 0x11
)

func movImm(rd, v uint32) uint32           { return v<<14 | 0x10 | rd<<8 | 1 }
func aluOp(op, rd, ra, rb uint32) uint32   { return op | 0x10 | rd<<8 | ra<<11 | rb<<14 }
func addImm(rd, ra uint32, v int32) uint32 { return uint32(v)<<14 | 0x10 | rd<<8 | ra<<11 | 1 }

func newEnv() (*macro.Env, *target, *bytes.Buffer) {
	t := &target{regs: map[uint32]uint32{}}
	out := &bytes.Buffer{}
	return &macro.Env{Out: out, Target: t, Palette: color.Plain, Run: true}, t, out
}

// load uploads code as entry 0.
func load(ctx context.Context, env *macro.Env, p *macro.Program, code ...uint32) {
	p.Method(ctx, env, macro.MethodCodePos, 0, true)
	for i, c := range code {
		p.Method(ctx, env, macro.MethodCodeData, c, i == len(code)-1)
	}
	p.Method(ctx, env, macro.MethodEntryPos, 0, true)
	p.Method(ctx, env, macro.MethodEntryData, 0, true)
}

func TestBackJumpBound(t *testing.T) {
	ctx := log.Testing(t)
	env, _, _ := newEnv()
	p := &macro.Program{}
	load(ctx, env, p, 0x27) // bra annul 0
	p.Method(ctx, env, macro.MethodMacro, 5, true)
	i := p.Interpreter()
	assert.For(ctx, "aborted").ThatBoolean(i.Aborted).IsTrue()
	assert.For(ctx, "steps").ThatInteger(i.Steps).Equals(macro.MaxBackJumps + 1)
	assert.For(ctx, "back jumps").ThatInteger(i.BackJumps).Equals(macro.MaxBackJumps + 1)
}

func TestSendsAndParams(t *testing.T) {
	ctx := log.Testing(t)
	env, tgt, _ := newEnv()
	p := &macro.Program{}
	load(ctx, env, p,
		0x04200021, // maddr 0x1080
		0x00000841, // send $r1
		0x00000101, // parm $r1
		0x000008c1, // exit send $r1
		nop,
		0x00000841, // send $r1
	)
	p.Method(ctx, env, macro.MethodMacro, 7, true)
	assert.For(ctx, "first sends").ThatSlice(tgt.sends).Equals([]send{{0x200, 7}})
	assert.For(ctx, "waiting").ThatBoolean(p.Interpreter().Done).IsFalse()
	assert.ThatWord(assert.For(ctx, "pc"), p.Interpreter().PC).Equals(2)

	p.Method(ctx, env, macro.MethodMacro+4, 9, true)
	assert.For(ctx, "sends").ThatSlice(tgt.sends).Equals([]send{{0x200, 7}, {0x204, 9}})
	assert.For(ctx, "done").ThatBoolean(p.Interpreter().Done).IsTrue()

	p.Method(ctx, env, macro.MethodMacro+4, 11, true)
	assert.For(ctx, "ignored").ThatInteger(len(tgt.sends)).Equals(2)
}

func TestParamsKeepStartingTarget(t *testing.T) {
	ctx := log.Testing(t)
	env, first, _ := newEnv()
	p := &macro.Program{}
	load(ctx, env, p,
		0x04200021, // maddr 0x1080
		0x00000101, // parm $r1
		0x000008c1, // exit send $r1
		nop,
	)
	p.Method(ctx, env, macro.MethodMacro, 3, true)

	other, second, _ := newEnv()
	p.Method(ctx, other, macro.MethodMacro+4, 5, true)
	assert.For(ctx, "starting target").ThatSlice(first.sends).Equals([]send{{0x200, 5}})
	assert.For(ctx, "other target").ThatInteger(len(second.sends)).Equals(0)
	assert.For(ctx, "done").ThatBoolean(p.Interpreter().Done).IsTrue()
}

func TestALU(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name     string
		instr    uint32
		expected uint32
	}{
		{"add", aluOp(0x000000, 3, 1, 2), 0x1bc},
		{"sub", aluOp(0x040000, 3, 1, 2), 0x24},
		{"xor", aluOp(0x100000, 3, 1, 2), 0x3c},
		{"or", aluOp(0x120000, 3, 1, 2), 0xfc},
		{"and", aluOp(0x140000, 3, 1, 2), 0xc0},
		{"andn", aluOp(0x160000, 3, 1, 2), 0x30},
		{"nand", aluOp(0x180000, 3, 1, 2), 0xffffff3f},
		{"add imm", addImm(3, 1, -1), 0xef},
		{"mov reg", 1<<11 | 0x10 | 3<<8 | 1, 0xf0},
		{"extrinsrt", 2 | 0x10 | 3<<8 | 2<<11 | 1<<14 | 4<<17 | 3<<22, 0xcf},
		{"extrshl", 4 | 0x10 | 3<<8 | 5<<11 | 1<<14 | 4<<17 | 3<<22, 0xf0},
	} {
		ctx := log.Enter(ctx, test.name)
		env, _, _ := newEnv()
		p := &macro.Program{}
		load(ctx, env, p, movImm(2, 0xcc), movImm(5, 4), test.instr, ffs, nop)
		p.Method(ctx, env, macro.MethodMacro, 0xf0, true)
		i := p.Interpreter()
		assert.For(ctx, "done").ThatBoolean(i.Done).IsTrue()
		assert.ThatWord(assert.For(ctx, "r3"), i.Regs[3]).Equals(uint64(test.expected))
	}
}

func TestRead(t *testing.T) {
	ctx := log.Testing(t)
	env, tgt, _ := newEnv()
	tgt.regs[0x300] = 0x40
	p := &macro.Program{}
	load(ctx, env, p,
		0xc0<<14|2<<8|0x15, // read $r2 0xc0
		aluOp(0, 3, 1, 2),  // mov $r3 (add $r1 $r2)
		ffs, nop)
	p.Method(ctx, env, macro.MethodMacro, 10, true)
	assert.ThatWord(assert.For(ctx, "r2"), p.Interpreter().Regs[2]).Equals(0x40)
	assert.ThatWord(assert.For(ctx, "r3"), p.Interpreter().Regs[3]).Equals(0x4a)
}

func TestDelayedBranch(t *testing.T) {
	ctx := log.Testing(t)
	env, _, _ := newEnv()
	p := &macro.Program{}
	load(ctx, env, p,
		3<<14|7, // bra 3
		movImm(2, 1),
		movImm(4, 4),
		ffs, nop)
	p.Method(ctx, env, macro.MethodMacro, 0, true)
	i := p.Interpreter()
	assert.ThatWord(assert.For(ctx, "delay slot"), i.Regs[2]).Equals(1)
	assert.ThatWord(assert.For(ctx, "skipped"), i.Regs[4]).Equals(0)
	assert.For(ctx, "done").ThatBoolean(i.Done).IsTrue()
}

func TestUnknownAborts(t *testing.T) {
	ctx := log.Testing(t)
	env, _, out := newEnv()
	p := &macro.Program{}
	load(ctx, env, p, 0x0a0000, nop)
	p.Method(ctx, env, macro.MethodMacro, 0, true)
	assert.For(ctx, "aborted").ThatBoolean(p.Interpreter().Aborted).IsTrue()
	assert.For(ctx, "output").ThatString(out.String()).Contains("| ???, aborting")
}

func TestVerboseAlignment(t *testing.T) {
	ctx := log.Testing(t)
	env, _, out := newEnv()
	env.Verbose = true
	p := &macro.Program{}
	load(ctx, env, p, 0x04200021, 0x841|0x80, nop)
	p.Method(ctx, env, macro.MethodMacro, 3, true)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.For(ctx, "lines").ThatSlice(lines).IsLength(3)
	assert.For(ctx, "maddr").ThatString(lines[0]).Equals(
		"MC: 0x04200021   maddr 0x1080" + strings.Repeat(" ", 65-len("MC: 0x04200021   maddr 0x1080")) +
			" | mthd := 0x200 [OBJ.0x200], incr := 1")
	assert.For(ctx, "send").ThatString(lines[1]).HasSuffix(" | OBJ.0x200 := 0x3 [0x3]")
	assert.For(ctx, "nop").ThatString(lines[2]).HasSuffix(" | nop")
}

func TestDisassemble(t *testing.T) {
	ctx := log.Testing(t)
	lines := macro.Disassemble([]uint32{0x04200021, 0x841, 0x27, 0x8c1, addImm(3, 1, -1)}, color.Plain)
	assert.For(ctx, "listing").ThatSlice(lines).Equals([]string{
		"MC: 0x04200021   maddr 0x1080",
		"MC: 0x00000841   send $r1",
		"MC: 0x00000027   bra annul 0",
		"MC: 0x000008c1   exit send $r1",
		"MC: 0xffffcb11   mov $r3 (add $r1 0xffffffff)",
	})
}

func TestUploadLimits(t *testing.T) {
	ctx := log.Testing(t)
	env, _, out := newEnv()
	env.Disassemble = true
	p := &macro.Program{}
	p.Method(ctx, env, macro.MethodEntryPos, 1, true)
	p.Method(ctx, env, macro.MethodEntryData, 0x10, true)
	p.Method(ctx, env, macro.MethodCodePos, 0x10, true)
	p.Method(ctx, env, macro.MethodCodeData, nop, false)
	p.Method(ctx, env, macro.MethodCodeData, ffs, true)
	assert.ThatWord(assert.For(ctx, "words"), p.Entries[1].Words).Equals(2)
	assert.For(ctx, "listing").ThatString(out.String()).Equals(
		"MC: 0x00000011   nop\nMC: 0x00000091   exit ffs\n")

	p.Method(ctx, env, macro.MethodEntryPos, macro.Entries, true)
	p.Method(ctx, env, macro.MethodEntryData, 0x20, true)
	p.Method(ctx, env, macro.MethodCodePos, macro.CodeSize/4-1, true)
	p.Method(ctx, env, macro.MethodCodeData, nop, false)
	p.Method(ctx, env, macro.MethodCodeData, nop, true)
	assert.ThatWord(assert.For(ctx, "last word"), p.Code[macro.CodeSize/4-1]).Equals(nop)

	assert.For(ctx, "not a macro method").ThatBoolean(p.Method(ctx, env, 0x200, 0, true)).IsFalse()
	assert.For(ctx, "is method").ThatBoolean(macro.IsMethod(macro.MethodMacro + 0x3f8)).IsTrue()
	assert.For(ctx, "is not method").ThatBoolean(macro.IsMethod(macro.MethodMacroEnd)).IsFalse()
}
