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

package macro

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/color"
)

// MaxBackJumps is the number of backward branches one invocation may take.
const MaxBackJumps = 100

const (
	noPC   = 0xffffffff
	noExit = 0xffffffff
	align  = 65
)

// Target is the object a macro sends its method writes to.
type Target interface {
	// Read returns the last value written to method mthd.
	Read(mthd uint32) uint32
	// Send performs a method write on behalf of the macro.
	Send(ctx context.Context, mthd, data uint32)
	// Describe names the object, the method and the value of a method write.
	Describe(mthd, data uint32) (obj, method, value string)
}

// Env is everything a macro needs from its surroundings.
type Env struct {
	Out io.Writer
	// Target is the object that macros started in this environment run on.
	Target  Target
	Palette color.Palette
	// Run enables simulation of invoked macros.
	Run bool
	// Verbose prints every simulated instruction.
	Verbose bool
	// Disassemble prints uploaded programs.
	Disassemble bool
}

// Interpreter is the state of a single macro invocation.
type Interpreter struct {
	// Target receives the method writes of the invocation. It is bound by
	// Start and kept for every parameter that follows.
	Target Target
	Code   []uint32
	PC     uint32
	Regs   [8]uint32
	Mthd   uint32
	Incr   uint32
	// Aborted is set when the invocation stopped on an error.
	Aborted bool
	// Done is set when the invocation exited or ran off the end of its code.
	Done bool
	// Steps counts executed instructions.
	Steps int
	// BackJumps counts taken branches that did not move forward.
	BackJumps int
	LastPC    uint32

	param    uint32
	hasParam bool
	delayed  uint32
	exitIn   uint32
}

// Start resets the interpreter for a new invocation of code on t with r1 as
// the first parameter.
func (i *Interpreter) Start(code []uint32, r1 uint32, t Target) {
	*i = Interpreter{Target: t, Code: code, delayed: noPC, exitIn: noExit}
	i.Regs[1] = r1
}

// Param feeds one parameter to the interpreter and resumes it.
func (i *Interpreter) Param(ctx context.Context, env *Env, v uint32) {
	if i.Done || i.Aborted {
		log.D(ctx, "macro finished, ignoring parameter 0x%x", v)
		return
	}
	i.param, i.hasParam = v, true
	i.Run(ctx, env)
	i.hasParam = false
}

// Run executes instructions until the macro needs a parameter, exits or
// aborts.
func (i *Interpreter) Run(ctx context.Context, env *Env) {
	s := syntax{env.Palette}
	for !i.Aborted && !i.Done {
		if i.PC >= uint32(len(i.Code)) {
			log.D(ctx, "macro ran past the end of its code (pc: %d)", i.PC)
			i.Done = true
			return
		}
		c := i.Code[i.PC]
		if c&exitBit != 0 {
			i.exitIn = 2
		}
		i.LastPC = i.PC
		line, result, wait, delayed := i.step(ctx, env, s, c)
		if wait {
			return
		}
		i.Steps++
		if env.Verbose || (i.Aborted && decode(c) == opUnknown) {
			printAligned(env.Out, s.prefix(c)+line, result)
		}
		if i.Aborted || delayed {
			continue
		}
		if i.delayed != noPC {
			i.PC, i.delayed = i.delayed, noPC
		}
		if i.exitIn != noExit {
			if i.exitIn--; i.exitIn == 0 {
				i.Done = true
			}
		}
	}
}

func printAligned(w io.Writer, line, result string) {
	if n := color.VisibleLen(line); n < align {
		line += strings.Repeat(" ", align-n)
	}
	fmt.Fprintf(w, "%s | %s\n", line, result)
}

// branch moves the program counter by the target of c. It returns true if the
// branch was delayed.
func (i *Interpreter) branch(ctx context.Context, s syntax, c uint32) (string, bool) {
	target := uint32(int32(i.PC) + btarg(c))
	if target <= i.PC {
		if i.BackJumps++; i.BackJumps > MaxBackJumps {
			log.E(ctx, "more than %d backward jumps, aborting macro simulation", MaxBackJumps)
			i.Aborted = true
			return s.p.Wrap(s.p.Mod, "PC +=") + " " + s.target(c), false
		}
	}
	if c&annulBit != 0 {
		i.PC = target
		return s.p.Wrap(s.p.Mod, "PC +=") + " " + s.target(c), false
	}
	i.delayed = target
	i.PC++
	return s.p.Wrap(s.p.Mod, "PC +=") + " " + s.target(c) + " " + s.p.Wrap(s.p.Comment, "(delayed)"), true
}

func (i *Interpreter) notTaken(s syntax, c uint32) string {
	i.PC++
	if c&exitBit != 0 {
		i.exitIn = noExit
	}
	return s.name("nop")
}

// step executes c. It returns the disassembly, the textual result, whether
// the instruction is waiting for a parameter and whether a delayed branch was
// taken.
func (i *Interpreter) step(ctx context.Context, env *Env, s syntax, c uint32) (line, result string, wait, delayed bool) {
	r := &i.Regs
	line = s.instruction(c)
	op := decode(c)
	var res uint32
	switch op {
	case opAdd, opAdc, opSub, opSbb, opXor, opOr, opAnd, opAndn, opNand:
		res = alu(op, r[reg2(c)], r[reg3(c)])
	case opNop:
		i.PC++
		return line, s.name("nop"), false, false
	case opFfs:
		i.PC++
		return line, "", false, false
	case opParm:
		if !i.hasParam {
			return line, "", true, false
		}
		r[reg1(c)] = i.takeParam()
		i.PC++
		return line, s.reg(reg1(c)) + " := " + s.num(r[reg1(c)]), false, false
	case opMovImm:
		res = imm(c)
	case opMovReg:
		res = r[reg2(c)]
	case opAddImm:
		res = r[reg2(c)] + imm(c)
	case opExtrinsrt:
		src, dstMask := bitfield(size(c), srcpos(c)), bitfield(size(c), dstpos(c))
		res = r[reg2(c)]&^dstMask | ((r[reg3(c)]&src)>>srcpos(c))<<dstpos(c)
	case opExtrshlReg:
		shift := r[reg2(c)]
		res = ((r[reg3(c)] & bitfield(size(c), shift)) >> shift) << dstpos(c)
	case opExtrshl:
		res = ((r[reg3(c)] & bitfield(size(c), srcpos(c))) >> srcpos(c)) << r[reg2(c)]
	case opReadImm, opReadAdd:
		addr := imm(c)
		if op == opReadAdd {
			addr += r[reg2(c)]
		}
		mthd := (addr & 0xfff) << 2
		data := i.Target.Read(mthd)
		r[reg1(c)] = data
		obj, m, val := i.Target.Describe(mthd, data)
		i.PC++
		return line, fmt.Sprintf("%s := %s.%s = %s [%s]", s.reg(reg1(c)), obj, m, s.num(data), val), false, false
	case opBra:
		result, delayed = i.branch(ctx, s, c)
		return line, result, false, delayed
	case opBraz, opBranz:
		v := r[reg2(c)]
		if (op == opBraz) == (v == 0) {
			result, delayed = i.branch(ctx, s, c)
			return line, result, false, delayed
		}
		return line, i.notTaken(s, c), false, false
	default:
		i.PC++
		i.Aborted = true
		return line, "???, aborting", false, false
	}
	result, wait = i.store(ctx, env, s, c, res)
	if !wait {
		i.PC++
	}
	return line, result, wait, false
}

func (i *Interpreter) takeParam() uint32 {
	i.hasParam = false
	return i.param
}

// send performs a method write at the current method address and advances it.
func (i *Interpreter) send(ctx context.Context, env *Env, s syntax, data uint32) string {
	obj, m, val := i.Target.Describe(i.Mthd, data)
	i.Target.Send(ctx, i.Mthd, data)
	i.Mthd += i.Incr * 4
	return fmt.Sprintf("%s.%s := %s [%s]", obj, m, s.num(data), val)
}

// setMaddr loads the method address from v. The maddrsend forms keep the
// previous increment.
func (i *Interpreter) setMaddr(s syntax, v uint32, withIncr bool) string {
	mthd, incr := maddr(v)
	i.Mthd = mthd
	if withIncr {
		i.Incr = incr
	}
	obj, m, _ := i.Target.Describe(i.Mthd, 0)
	return fmt.Sprintf("%s := %s [%s.%s], %s := %s", s.mthd(), s.num(i.Mthd), obj, m, s.incr(), s.dec(i.Incr))
}

// store applies the destination field of c to res. It returns the textual
// result and whether a parameter is needed first.
func (i *Interpreter) store(ctx context.Context, env *Env, s syntax, c, res uint32) (string, bool) {
	r := &i.Regs
	rd := reg1(c)
	switch decodeDst(c) {
	case dstParmIgn:
		if !i.hasParam {
			return "", true
		}
		r[rd] = i.takeParam()
		return s.reg(rd) + " := " + s.num(r[rd]), false
	case dstMov:
		r[rd] = res
		return s.reg(rd) + " := " + s.num(res), false
	case dstMaddr:
		return i.setMaddr(s, res, true), false
	case dstMaddrReg:
		out := s.reg(rd) + " := " + i.setMaddr(s, res, true)
		r[rd] = res
		return out, false
	case dstParmSend:
		if !i.hasParam {
			return "", true
		}
		out := i.send(ctx, env, s, res)
		r[rd] = i.takeParam()
		return out + ", " + s.reg(rd) + " := " + s.num(r[rd]), false
	case dstSend:
		return i.send(ctx, env, s, res), false
	case dstSendReg:
		out := i.send(ctx, env, s, res)
		r[rd] = res
		return out + ", " + s.reg(rd) + " := " + s.num(res), false
	case dstParmMaddr:
		if !i.hasParam {
			return "", true
		}
		out := i.setMaddr(s, res, true)
		r[rd] = i.takeParam()
		return out + ", " + s.reg(rd) + " := " + s.num(r[rd]), false
	case dstParmSendMaddr:
		if !i.hasParam {
			return "", true
		}
		out := i.setMaddr(s, res, true)
		return out + ", " + i.send(ctx, env, s, i.takeParam()), false
	case dstParmSendMaddrReg:
		if !i.hasParam {
			return "", true
		}
		out := s.reg(rd) + " := " + s.num(res) + ", " + i.setMaddr(s, res, true)
		out += ", " + i.send(ctx, env, s, i.takeParam())
		r[rd] = res
		return out, false
	case dstMaddrSend:
		out := i.setMaddr(s, res, false)
		return out + ", " + i.send(ctx, env, s, (res>>12)&0x3f), false
	case dstMaddrSendReg:
		out := i.setMaddr(s, res, false)
		out += ", " + i.send(ctx, env, s, (res>>12)&0x3f)
		r[rd] = res
		return out + ", " + s.reg(rd) + " := " + s.num(res), false
	}
	return "???", false
}
