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
	"fmt"

	"github.com/envytools/demmt/demmt/color"
)

// Instruction fields.
func reg1(c uint32) uint32   { return (c >> 8) & 7 }
func reg2(c uint32) uint32   { return (c >> 11) & 7 }
func reg3(c uint32) uint32   { return (c >> 14) & 7 }
func imm(c uint32) uint32    { return uint32(int32(c) >> 14) }
func btarg(c uint32) int32   { return int32(c) >> 14 }
func srcpos(c uint32) uint32 { return (c >> 17) & 0x1f }
func size(c uint32) uint32   { return (c >> 22) & 0x1f }
func dstpos(c uint32) uint32 { return (c >> 27) & 0x1f }

const (
	exitBit  = 0x80
	annulBit = 0x20
)

// maddr splits a packed method address into the method and its increment.
func maddr(v uint32) (mthd, incr uint32) { return (v & 0xfff) << 2, (v >> 12) & 0x3f }

// bitfield returns a mask of sz+1 bits starting at pos.
func bitfield(sz, pos uint32) uint32 { return (uint32(1)<<(sz+1) - 1) << pos }

type opcode int

const (
	opAdd opcode = iota
	opAdc
	opSub
	opSbb
	opXor
	opOr
	opAnd
	opAndn
	opNand
	opNop
	opFfs
	opParm
	opMovImm
	opMovReg
	opAddImm
	opExtrinsrt
	opExtrshlReg
	opExtrshl
	opReadImm
	opReadAdd
	opBra
	opBraz
	opBranz
	opUnknown
)

var aluOps = map[uint32]opcode{
	0x000000: opAdd,
	0x020000: opAdc,
	0x040000: opSub,
	0x060000: opSbb,
	0x100000: opXor,
	0x120000: opOr,
	0x140000: opAnd,
	0x160000: opAndn,
	0x180000: opNand,
}

var aluNames = map[opcode]string{
	opAdd:  "add",
	opAdc:  "adc",
	opSub:  "sub",
	opSbb:  "sbb",
	opXor:  "xor",
	opOr:   "or",
	opAnd:  "and",
	opAndn: "andn",
	opNand: "nand",
}

func decode(c uint32) opcode {
	if c&7 == 0 {
		if op, ok := aluOps[c&0x003e0000]; ok {
			return op
		}
	}
	switch {
	case c == 0x11:
		return opNop
	case c == 0x91:
		return opFfs
	case c&0xfffff87f == 1:
		return opParm
	case c&0x3807 == 1:
		return opMovImm
	case c&0xffffc007 == 1:
		return opMovReg
	case c&7 == 1:
		return opAddImm
	case c&7 == 2:
		return opExtrinsrt
	case c&7 == 3:
		return opExtrshlReg
	case c&7 == 4:
		return opExtrshl
	case c&0x3877 == 0x15:
		return opReadImm
	case c&0x77 == 0x15:
		return opReadAdd
	case c&0x3817 == 7:
		return opBra
	case c&0x17 == 7:
		return opBraz
	case c&0x17 == 0x17:
		return opBranz
	}
	return opUnknown
}

// alu computes the result of a two register operation.
func alu(op opcode, a, b uint32) uint32 {
	switch op {
	case opAdd, opAdc:
		return a + b
	case opSub, opSbb:
		return a - b
	case opXor:
		return a ^ b
	case opOr:
		return a | b
	case opAnd:
		return a & b
	case opAndn:
		return a &^ b
	case opNand:
		return ^(a & b)
	}
	return 0
}

type dst int

const (
	dstParmIgn dst = iota
	dstMov
	dstMaddr
	dstMaddrReg
	dstParmSend
	dstSend
	dstSendReg
	dstParmMaddr
	dstParmSendMaddr
	dstParmSendMaddrReg
	dstMaddrSend
	dstMaddrSendReg
	dstUnknown
)

func decodeDst(c uint32) dst {
	switch {
	case c&0x70 == 0x00:
		return dstParmIgn
	case c&0x70 == 0x10:
		return dstMov
	case c&0x770 == 0x20:
		return dstMaddr
	case c&0x70 == 0x20:
		return dstMaddrReg
	case c&0x70 == 0x30:
		return dstParmSend
	case c&0x770 == 0x40:
		return dstSend
	case c&0x70 == 0x40:
		return dstSendReg
	case c&0x70 == 0x50:
		return dstParmMaddr
	case c&0x770 == 0x60:
		return dstParmSendMaddr
	case c&0x70 == 0x60:
		return dstParmSendMaddrReg
	case c&0x770 == 0x70:
		return dstMaddrSend
	case c&0x70 == 0x70:
		return dstMaddrSendReg
	}
	return dstUnknown
}

// syntax renders instructions with a palette.
type syntax struct{ p color.Palette }

func (s syntax) name(n string) string   { return s.p.Wrap(s.p.Name, n) }
func (s syntax) reg(r uint32) string    { return s.p.Wrap(s.p.Reg, fmt.Sprintf("$r%d", r)) }
func (s syntax) num(v uint32) string    { return s.p.Wrap(s.p.Num, fmt.Sprintf("0x%x", v)) }
func (s syntax) dec(v uint32) string    { return s.p.Wrap(s.p.Num, fmt.Sprintf("%d", v)) }
func (s syntax) target(c uint32) string { return s.p.Wrap(s.p.Target, fmt.Sprintf("%d", btarg(c))) }
func (s syntax) mthd() string           { return s.p.Wrap(s.p.Reg, "mthd") }
func (s syntax) incr() string           { return s.p.Wrap(s.p.Reg, "incr") }

func (s syntax) annul(c uint32) string {
	if c&annulBit == 0 {
		return ""
	}
	return " " + s.p.Wrap(s.p.Mod, "annul")
}

func (s syntax) exit(c uint32) string {
	if c&exitBit == 0 {
		return ""
	}
	return s.name("exit") + " "
}

// dst returns the textual form of the destination field of c.
func (s syntax) dst(c uint32) string {
	r := s.reg(reg1(c))
	switch decodeDst(c) {
	case dstParmIgn:
		return s.name("parm") + " " + r + " ign"
	case dstMov:
		return s.name("mov") + " " + r
	case dstMaddr:
		return s.name("maddr")
	case dstMaddrReg:
		return s.name("maddr") + " " + r
	case dstParmSend:
		return s.name("parm") + " " + r + " " + s.name("send")
	case dstSend:
		return s.name("send")
	case dstSendReg:
		return s.name("send") + " " + r
	case dstParmMaddr:
		return s.name("parm") + " " + r + " " + s.name("maddr")
	case dstParmSendMaddr:
		return s.name("parmsend") + " " + s.name("maddr")
	case dstParmSendMaddrReg:
		return s.name("parmsend") + " " + s.name("maddr") + " " + r
	case dstMaddrSend:
		return s.name("maddrsend")
	case dstMaddrSendReg:
		return s.name("maddrsend") + " " + r
	}
	return "???"
}

// instruction returns the disassembly of c without the exit prefix.
func (s syntax) instruction(c uint32) string {
	op := decode(c)
	switch op {
	case opAdd, opAdc, opSub, opSbb, opXor, opOr, opAnd, opAndn, opNand:
		return fmt.Sprintf("%s (%s %s %s)", s.dst(c), s.name(aluNames[op]), s.reg(reg2(c)), s.reg(reg3(c)))
	case opNop:
		return s.name("nop")
	case opFfs:
		return "ffs"
	case opParm:
		return s.name("parm") + " " + s.reg(reg1(c))
	case opMovImm:
		return s.dst(c) + " " + s.num(imm(c))
	case opMovReg:
		return s.dst(c) + " " + s.reg(reg2(c))
	case opAddImm:
		return fmt.Sprintf("%s (%s %s %s)", s.dst(c), s.name("add"), s.reg(reg2(c)), s.num(imm(c)))
	case opExtrinsrt:
		return fmt.Sprintf("%s (%s %s %s %s)", s.dst(c), s.name("extrinsrt"), s.reg(reg2(c)), s.reg(reg3(c)),
			s.p.Wrap(s.p.Num, fmt.Sprintf("0x%x 0x%x 0x%x", srcpos(c), size(c), dstpos(c))))
	case opExtrshlReg:
		return fmt.Sprintf("%s (%s %s %s %s)", s.dst(c), s.name("extrshl"), s.reg(reg3(c)), s.reg(reg2(c)),
			s.p.Wrap(s.p.Num, fmt.Sprintf("0x%x 0x%x", size(c), dstpos(c))))
	case opExtrshl:
		return fmt.Sprintf("%s (%s %s %s %s)", s.dst(c), s.name("extrshl"), s.reg(reg3(c)),
			s.p.Wrap(s.p.Num, fmt.Sprintf("0x%x 0x%x", srcpos(c), size(c))), s.reg(reg2(c)))
	case opReadImm:
		return fmt.Sprintf("%s %s %s", s.name("read"), s.reg(reg1(c)), s.num(imm(c)))
	case opReadAdd:
		return fmt.Sprintf("%s %s (%s %s %s)", s.name("read"), s.reg(reg1(c)), s.name("add"), s.reg(reg2(c)), s.num(imm(c)))
	case opBra:
		return fmt.Sprintf("%s%s %s", s.name("bra"), s.annul(c), s.target(c))
	case opBraz:
		return fmt.Sprintf("%s%s %s %s", s.name("braz"), s.annul(c), s.reg(reg2(c)), s.target(c))
	case opBranz:
		return fmt.Sprintf("%s%s %s %s", s.name("branz"), s.annul(c), s.reg(reg2(c)), s.target(c))
	}
	return s.dst(c) + " ???"
}

// prefix is the start of every MC: line.
func (s syntax) prefix(c uint32) string {
	return fmt.Sprintf("MC: 0x%08x   %s", c, s.exit(c))
}

// Disassemble returns one MC: line per instruction word.
func Disassemble(code []uint32, p color.Palette) []string {
	s := syntax{p}
	out := make([]string, len(code))
	for i, c := range code {
		out[i] = s.prefix(c) + s.instruction(c)
	}
	return out
}
