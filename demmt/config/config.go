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

// Package config holds the decode options of a demmt run and loads them from
// a TOML file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/envytools/demmt/core/fault"
	"github.com/envytools/demmt/demmt/object"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

const (
	// ErrUnknownToken is returned for a filter token that names nothing.
	ErrUnknownToken = fault.Const("Unknown filter token")
	// ErrBadChipset is returned for a chipset that is not a hex number.
	ErrBadChipset = fault.Const("Invalid chipset")
	// ErrBadPointer is returned for a malformed pushbuf pointer.
	ErrBadPointer = fault.Const("Invalid pushbuf pointer")
)

// Filters selects which kinds of output are printed.
type Filters struct {
	Write          bool
	Read           bool
	GPUAddr        bool
	PB             bool
	MacroRT        bool
	MacroRTVerbose bool
	MacroDis       bool
	BufferUsage    bool
	IoctlRaw       bool
	IoctlDesc      bool
	SysMmap        bool
	SysMunmap      bool
	SysMremap      bool
	SysOpen        bool
	SysWrite       bool
	Msg            bool
	Info           bool
	NVRM           bool
}

// ClassToggle turns the decoder of one class, or of all classes, on or off.
type ClassToggle struct {
	Class   uint32
	All     bool
	Enabled bool
}

// Chipset is a GPU chipset id, written as hex with an optional NV prefix.
type Chipset uint32

// UnmarshalText parses a chipset such as "NVC0", "c0" or "0xc0".
func (c *Chipset) UnmarshalText(text []byte) error {
	v, err := ParseChipset(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChipset parses a chipset such as "NVC0", "c0" or "0xc0".
func ParseChipset(s string) (Chipset, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(t, "nv")
	t = strings.TrimPrefix(t, "0x")
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil || v == 0 {
		return 0, errors.Wrapf(ErrBadChipset, "%q", s)
	}
	return Chipset(v), nil
}

// IBSupported returns true for chipsets that fetch commands through an
// indirect buffer ring.
func (c Chipset) IBSupported() bool { return c >= 0x80 || c == 0x50 }

// PBPointer names the buffer holding the command ring pointer.
type PBPointer struct {
	Set    bool
	ID     int
	Offset uint32
}

// UnmarshalText parses "id[,offset]". The id is decimal, the offset may use
// a 0x prefix.
func (p *PBPointer) UnmarshalText(text []byte) error {
	v, err := ParsePBPointer(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePBPointer parses "id[,offset]".
func ParsePBPointer(s string) (PBPointer, error) {
	id, offset, hasOffset := strings.Cut(s, ",")
	v, err := strconv.ParseUint(id, 10, 31)
	if err != nil {
		return PBPointer{}, errors.Wrapf(ErrBadPointer, "%q", s)
	}
	p := PBPointer{Set: true, ID: int(v)}
	if hasOffset {
		o, err := strconv.ParseUint(offset, 0, 32)
		if err != nil {
			return PBPointer{}, errors.Wrapf(ErrBadPointer, "%q", s)
		}
		p.Offset = uint32(o)
	}
	return p, nil
}

// Options are the settings of a decode run.
type Options struct {
	Chipset Chipset `toml:"chipset"`
	// Colors forces colored output on or off. Unset means colors are used
	// when stdout is a terminal.
	Colors *bool `toml:"colors"`
	// Indent indents diagnostics past the decoded output.
	Indent bool `toml:"indent"`
	// FindPBPointer only reports candidate ring buffers.
	FindPBPointer bool      `toml:"find-pb-pointer"`
	PBPointer     PBPointer `toml:"pb-pointer"`
	// ForcePushbuf decodes plain command buffers without a ring pointer.
	ForcePushbuf bool `toml:"force-pushbuf-decoding"`
	// Quiet keeps only the command stream output.
	Quiet   bool     `toml:"quiet"`
	Disable []string `toml:"disable"`
	Enable  []string `toml:"enable"`

	Filters Filters       `toml:"-"`
	Classes []ClassToggle `toml:"-"`
}

// Defaults returns the options of a run without flags.
func Defaults() *Options {
	o := &Options{}
	o.Filters.all(true)
	o.Filters.GPUAddr = false
	o.Filters.IoctlRaw = false
	o.Filters.MacroRTVerbose = false
	return o
}

// Load reads options from the TOML file at path on top of the defaults.
func Load(path string) (*Options, error) {
	o := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := toml.Unmarshal(data, o); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := o.apply(); err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	return o, nil
}

// apply runs the quiet preset and the filter lists read from a file.
func (o *Options) apply() error {
	if o.Quiet {
		o.SetQuiet()
	}
	errs := fault.List{}
	for _, list := range o.Disable {
		errs.Collect(o.Filter(list, false))
	}
	for _, list := range o.Enable {
		errs.Collect(o.Filter(list, true))
	}
	return errs.Err()
}

// SetQuiet turns everything off except the command stream, macro and buffer
// usage output and the class decoders.
func (o *Options) SetQuiet() {
	o.Filters.all(false)
	o.Filters.PB = true
	o.Filters.MacroRT = true
	o.Filters.MacroDis = true
	o.Filters.BufferUsage = true
	o.Classes = append(o.Classes, ClassToggle{All: true, Enabled: true})
}

// SetFindMode turns on ring pointer discovery and silences everything else.
func (o *Options) SetFindMode() {
	o.FindPBPointer = true
	o.Filters.all(false)
	o.Classes = append(o.Classes, ClassToggle{All: true})
}

// UseColors resolves the color setting.
func (o *Options) UseColors() bool {
	if o.Colors != nil {
		return *o.Colors
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ApplyClasses installs the class toggles into r, in the order they were
// given.
func (o *Options) ApplyClasses(r *object.Registry) {
	for _, c := range o.Classes {
		if c.All {
			r.SetAllEnabled(c.Enabled)
		} else {
			r.SetEnabled(c.Class, c.Enabled)
		}
	}
}

func (f *Filters) all(en bool) {
	*f = Filters{
		Write: en, Read: en, GPUAddr: en, PB: en,
		MacroRT: en, MacroRTVerbose: en, MacroDis: en, BufferUsage: en,
		IoctlRaw: en, IoctlDesc: en,
		SysMmap: en, SysMunmap: en, SysMremap: en, SysOpen: en, SysWrite: en,
		Msg: en, Info: en, NVRM: en,
	}
}

// Filter enables or disables every message type named in the comma
// separated list. Unknown tokens are reported together.
func (o *Options) Filter(list string, en bool) error {
	f := &o.Filters
	errs := fault.List{}
	for _, token := range strings.Split(list, ",") {
		switch token {
		case "write":
			f.Write = en
		case "read":
			f.Read = en
		case "mem":
			f.Write, f.Read = en, en
		case "gpu-addr":
			f.GPUAddr = en
		case "pb":
			f.PB = en
		case "ioctl-raw":
			f.IoctlRaw = en
		case "ioctl-desc":
			f.IoctlDesc = en
		case "ioctl":
			if !en {
				f.IoctlRaw = false
			}
			f.IoctlDesc = en
		case "macro-rt":
			f.MacroRT = en
		case "macro-rt-verbose":
			f.MacroRTVerbose = en
		case "macro-dis":
			f.MacroDis = en
		case "macro":
			if !en {
				f.MacroRTVerbose = false
			}
			f.MacroRT, f.MacroDis = en, en
		case "buffer-usage":
			f.BufferUsage = en
		case "sys_mmap":
			f.SysMmap = en
		case "sys_munmap":
			f.SysMunmap = en
		case "sys_mremap":
			f.SysMremap = en
		case "sys_open":
			f.SysOpen = en
		case "sys_write":
			f.SysWrite = en
		case "sys":
			f.SysMmap, f.SysMunmap, f.SysMremap, f.SysOpen, f.SysWrite = en, en, en, en, en
			if !en {
				f.IoctlRaw = false
			}
			f.IoctlDesc = en
		case "nvrm":
			f.NVRM = en
			if en {
				f.IoctlDesc = true
			}
		case "msg":
			f.Msg = en
		case "info":
			f.Info = en
		case "all":
			f.all(en)
			o.Classes = append(o.Classes, ClassToggle{All: true, Enabled: en})
		default:
			class, ok := strings.CutPrefix(token, "class=")
			if !ok {
				errs.Collect(errors.Wrapf(ErrUnknownToken, "%q", token))
				continue
			}
			if class == "all" {
				o.Classes = append(o.Classes, ClassToggle{All: true, Enabled: en})
				continue
			}
			v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(class), "0x"), 16, 32)
			if err != nil {
				errs.Collect(errors.Wrapf(ErrUnknownToken, "%q", token))
				continue
			}
			o.Classes = append(o.Classes, ClassToggle{Class: uint32(v), Enabled: en})
		}
	}
	return errs.Err()
}
