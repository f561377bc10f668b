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

// Package trace reads and writes the binary mmt trace format.
//
// A trace is a sequence of records. Each record starts with a one byte tag,
// carries a fixed little-endian header followed by optional length-prefixed
// trailing data, and ends with an end-of-record byte (0x0a). The 'n' tag
// introduces a nested record with its own subtype byte.
package trace

import (
	"fmt"

	"github.com/envytools/demmt/core/fault"
)

const (
	// ErrBadEOR is returned when a record does not end with the end-of-record
	// marker.
	ErrBadEOR = fault.Const("Record does not end with EOR byte")
	// ErrUnknownRecord is returned for a tag or nested subtype that has no
	// decoder.
	ErrUnknownRecord = fault.Const("Unknown record type")
	// ErrShortRead is returned when the input ends in the middle of a record.
	ErrShortRead = fault.Const("Unexpected end of trace")
)

// EOR is the end-of-record marker.
const EOR = 0x0a

// Record tags.
const (
	TagRead      = 'r'
	TagReadAddr  = 'R'
	TagWrite     = 'w'
	TagWriteAddr = 'W'
	TagMmap      = 'm'
	TagMmap2     = 'M'
	TagUnmap     = 'u'
	TagMremap    = 'e'
	TagOpen      = 'o'
	TagWriteFD   = 't'
	TagDup       = 'd'
	TagSync      = 'S'
	TagMessage   = '='
	TagMessage2  = '-'
	TagIoctlPre  = 'i'
	TagIoctlPost = 'j'
	TagDump      = 'y'
	TagNested    = 'n'
)

// MaxDumps is the number of memory dumps kept after a top-level ioctl.
const MaxDumps = 20

// MaxNestedDumps is the number of memory dumps kept after a nested ioctl.
const MaxNestedDumps = 10

// IoctlID is the encoded ioctl request number.
type IoctlID uint32

// Nr returns the ioctl number, bits 0 to 7.
func (i IoctlID) Nr() uint8 { return uint8(i) }

// Type returns the ioctl type, bits 8 to 15.
func (i IoctlID) Type() uint8 { return uint8(i >> 8) }

// Size returns the argument size, bits 16 to 29.
func (i IoctlID) Size() uint32 { return (uint32(i) >> 16) & 0x3fff }

// Dir returns the transfer direction, bits 30 and 31.
func (i IoctlID) Dir() uint8 { return uint8(uint32(i) >> 30) }

var dirNames = [4]string{"?", "w", "r", "rw"}

// DirString returns the direction as "?", "w", "r" or "rw".
func (i IoctlID) DirString() string { return dirNames[i.Dir()] }

// MakeIoctlID packs an ioctl request number.
func MakeIoctlID(dir, typ, nr uint8, size uint32) IoctlID {
	return IoctlID(uint32(dir&3)<<30 | (size&0x3fff)<<16 | uint32(typ)<<8 | uint32(nr))
}

func (i IoctlID) String() string {
	return fmt.Sprintf("0x%08x", uint32(i))
}

// Dump is a block of memory captured alongside an ioctl. Addr is the user
// address the block was read from.
type Dump struct {
	Addr  uint64
	Label []byte
	Data  []byte
}

// Dumps is the list of memory blocks that follow an ioctl record.
type Dumps []Dump

// Find returns the data of the dump taken at addr. A zero address never
// matches.
func (d Dumps) Find(addr uint64) []byte {
	if addr == 0 {
		return nil
	}
	for _, dump := range d {
		if dump.Addr == addr {
			return dump.Data
		}
	}
	return nil
}
