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

// The demmt command decodes binary trace files of GPU driver activity
// recorded by the Valgrind mmt tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/envytools/demmt/core/app"
	"github.com/envytools/demmt/core/fault"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/color"
	"github.com/envytools/demmt/demmt/config"
	"github.com/envytools/demmt/demmt/session"
)

// ErrNoChipset is returned when neither -m nor the input file name give
// the chipset.
const ErrNoChipset = fault.Const("Chipset not set, use -m or an nvXX trace file name")

var (
	opts   = config.Defaults()
	input  string
	indent bool
)

func init() {
	flag.Func("config", "read options from a TOML `file`", func(path string) error {
		o, err := config.Load(path)
		if err != nil {
			return err
		}
		*opts = *o
		indent = opts.Indent
		return nil
	})
	flag.Func("l", "use `file` as input; gzip, bzip2, xz and zstd are decompressed and the chipset is taken from an nvXX file name", func(path string) error {
		input = path
		if opts.Chipset != 0 {
			return nil
		}
		if c, ok := config.ChipsetFromName(path); ok {
			opts.Chipset = c
			fmt.Fprintf(app.Stdout, "Chipset: NV%02X\n", uint32(c))
		}
		return nil
	})
	flag.Func("m", "set the `chipset` version (required, but see -l)", func(s string) error {
		c, err := config.ParseChipset(s)
		opts.Chipset = c
		return err
	})
	flag.Func("n", "set the pushbuf pointer to buffer `id[,offset]`", func(s string) error {
		p, err := config.ParsePBPointer(s)
		opts.PBPointer = p
		return err
	})
	flag.BoolFunc("q", "print only the most important data (= -d all -e pb,macro,buffer-usage,class=all)", func(string) error {
		opts.SetQuiet()
		return nil
	})
	flag.BoolFunc("f", "find possible pushbuf pointers (IB / USER)", func(string) error {
		opts.SetFindMode()
		return nil
	})
	flag.BoolFunc("a", "= -d class=all", func(string) error {
		return opts.Filter("class=all", false)
	})
	flag.BoolFunc("x", "force pushbuf decoding even without pushbuf pointer", func(string) error {
		opts.ForcePushbuf = true
		return nil
	})
	toggle("c", "disable/enable colors (default: 1 on a terminal)", func(v bool) { opts.Colors = &v })
	toggle("g", "= -d/-e gpu-addr (default: 0)", func(v bool) { opts.Filters.GPUAddr = v })
	toggle("o", "= -d/-e ioctl-raw (default: 0)", func(v bool) { opts.Filters.IoctlRaw = v })
	toggle("r", "= -d/-e macro-rt-verbose (default: 0)", func(v bool) { opts.Filters.MacroRTVerbose = v })
	toggle("i", "disable/enable log indentation (default: 0)", func(v bool) { indent = v })
	flag.Func("d", "disable the comma separated message `types`", func(s string) error { return opts.Filter(s, false) })
	flag.Func("e", "enable the comma separated message `types`", func(s string) error { return opts.Filter(s, true) })
}

// toggle registers a flag that only accepts 0 and 1.
func toggle(name, usage string, set func(bool)) {
	flag.Func(name, usage, func(s string) error {
		switch s {
		case "0":
			set(false)
		case "1":
			set(true)
		default:
			return fmt.Errorf("-%s accepts only 0 and 1", name)
		}
		return nil
	})
}

func main() {
	app.ShortHelp = "Decodes binary trace files generated by Valgrind MMT. Reads standard input or the file passed by -l."
	app.UsageFooter = `
Message types for -d and -e:
  write, read, mem (= read,write), gpu-addr, pb, class=[all,0x...],
  macro-rt, macro-rt-verbose, macro-dis, macro, buffer-usage,
  sys_mmap, sys_munmap, sys_mremap, sys_open, sys_write, sys (= all sys_* and ioctl),
  ioctl-raw, ioctl-desc, ioctl, nvrm, msg, info, all
`
	app.Flags.Style = log.Labelled
	app.Run(run)
}

func run(ctx context.Context) error {
	if opts.Chipset == 0 {
		app.Usage()
		return ErrNoChipset
	}
	ctx = log.PutTag(ctx, "demmt")
	if indent {
		app.Flags.Style = log.LabelledIndented
		ctx = app.Flags.Context(ctx, app.LogWriter())
	}

	var in io.Reader = os.Stdin
	if input != "" {
		f, err := config.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	palette := color.For(opts.UseColors())
	s := session.New(app.Stdout, opts, palette)
	return s.Run(ctx, in)
}
