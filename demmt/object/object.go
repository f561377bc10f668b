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

// Package object tracks the GPU objects bound to each fifo and dispatches
// method writes to per-class decoders.
package object

import (
	"fmt"

	"github.com/envytools/demmt/demmt/color"
)

// RegisterCount is the number of method registers kept per object.
const RegisterCount = 0x8000

// Object is a GPU object created by the driver.
type Object struct {
	Handle uint32
	Class  uint32
	// Name is the alternative handle the driver binds the object with.
	Name uint32
	// Desc is the class name, or empty if the class is not known.
	Desc    string
	Fifo    *Fifo
	Decoder Decoder

	regs []uint32
}

// Reg returns the last value written to method mthd.
func (o *Object) Reg(mthd uint32) uint32 {
	if o.regs == nil || mthd/4 >= RegisterCount {
		return 0
	}
	return o.regs[mthd/4]
}

// SetReg records a write of data to method mthd. It returns false if mthd is
// outside the register file.
func (o *Object) SetReg(mthd, data uint32) bool {
	if mthd/4 >= RegisterCount {
		return false
	}
	if o.regs == nil {
		o.regs = make([]uint32, RegisterCount)
	}
	o.regs[mthd/4] = data
	return true
}

// MethodNamer is implemented by decoders that know the names of their
// methods.
type MethodNamer interface {
	MethodName(mthd uint32) string
}

// Describe returns the object name, the method name and the value of a write
// of data to mthd on o. o may be nil.
func Describe(o *Object, p color.Palette, mthd, data uint32) (obj, method, value string) {
	switch {
	case o == nil:
		obj = p.Wrap(p.Err, "OBJ0")
	case o.Desc != "":
		obj = p.Wrap(p.Name, o.Desc)
	default:
		obj = p.Wrap(p.Err, fmt.Sprintf("OBJ%X", o.Class))
	}
	if o != nil {
		if n, ok := o.Decoder.(MethodNamer); ok {
			if name := n.MethodName(mthd); name != "" {
				return obj, name, p.Wrap(p.Num, fmt.Sprintf("0x%x", data))
			}
		}
		if name := commonMethod(mthd); name != "" {
			return obj, name, p.Wrap(p.Num, fmt.Sprintf("0x%x", data))
		}
	}
	return obj, p.Wrap(p.Err, fmt.Sprintf("0x%x", mthd)), p.Wrap(p.Err, fmt.Sprintf("0x%x", data))
}

func (o *Object) String() string {
	return fmt.Sprintf("0x%08x (class: 0x%04x)", o.Handle, o.Class)
}
