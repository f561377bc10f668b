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

package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/envytools/demmt/core/assert"
	"github.com/envytools/demmt/core/log"
	"github.com/envytools/demmt/demmt/object"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func TestDefaults(t *testing.T) {
	ctx := log.Testing(t)
	o := Defaults()
	assert.For(ctx, "write").ThatBoolean(o.Filters.Write).IsTrue()
	assert.For(ctx, "pb").ThatBoolean(o.Filters.PB).IsTrue()
	assert.For(ctx, "gpu-addr").ThatBoolean(o.Filters.GPUAddr).IsFalse()
	assert.For(ctx, "ioctl-raw").ThatBoolean(o.Filters.IoctlRaw).IsFalse()
	assert.For(ctx, "macro-rt-verbose").ThatBoolean(o.Filters.MacroRTVerbose).IsFalse()
}

func TestFilter(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name   string
		list   string
		en     bool
		expect func(f Filters) bool
	}{
		{"mem off", "mem", false, func(f Filters) bool { return !f.Read && !f.Write && f.PB }},
		{"gpu-addr on", "gpu-addr", true, func(f Filters) bool { return f.GPUAddr }},
		{"macro off", "macro", false, func(f Filters) bool { return !f.MacroRT && !f.MacroDis && !f.MacroRTVerbose }},
		{"macro on", "macro", true, func(f Filters) bool { return f.MacroRT && f.MacroDis && !f.MacroRTVerbose }},
		{"ioctl on", "ioctl", true, func(f Filters) bool { return f.IoctlDesc && !f.IoctlRaw }},
		{"sys off", "sys", false, func(f Filters) bool {
			return !f.SysMmap && !f.SysMunmap && !f.SysMremap && !f.SysOpen && !f.SysWrite && !f.IoctlDesc
		}},
		{"list", "read,write,pb", false, func(f Filters) bool { return !f.Read && !f.Write && !f.PB && f.Msg }},
		{"all off", "all", false, func(f Filters) bool { return f == Filters{} }},
	} {
		ctx := log.Enter(ctx, test.name)
		o := Defaults()
		assert.For(ctx, "err").ThatError(o.Filter(test.list, test.en)).Succeeded()
		assert.For(ctx, "filters").ThatBoolean(test.expect(o.Filters)).IsTrue()
	}
}

func TestFilterClasses(t *testing.T) {
	ctx := log.Testing(t)
	o := Defaults()
	assert.For(ctx, "disable").ThatError(o.Filter("class=all", false)).Succeeded()
	assert.For(ctx, "enable").ThatError(o.Filter("class=0x9097,class=a097", true)).Succeeded()
	assert.For(ctx, "toggles").ThatSlice(o.Classes).Equals([]ClassToggle{
		{All: true},
		{Class: 0x9097, Enabled: true},
		{Class: 0xa097, Enabled: true},
	})
	r := object.NewRegistry(0xe4)
	o.ApplyClasses(r)
	f := r.Default()
	assert.For(ctx, "enabled").That(f.Add(1, 0xa097).Decoder).IsNotNil()
	assert.For(ctx, "disabled").That(f.Add(2, 0xb097).Decoder).IsNil()
}

func TestUnknownTokens(t *testing.T) {
	ctx := log.Testing(t)
	o := Defaults()
	err := o.Filter("read,bogus,class=zz", false)
	assert.For(ctx, "err").ThatError(err).Failed()
	assert.For(ctx, "message").ThatString(err.Error()).Contains("\"bogus\"")
	assert.For(ctx, "message").ThatString(err.Error()).Contains("\"class=zz\"")
	assert.For(ctx, "known tokens still apply").ThatBoolean(o.Filters.Read).IsFalse()
}

func TestParseChipset(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		in     string
		expect Chipset
		ok     bool
	}{
		{"NVC0", 0xc0, true},
		{"nv50", 0x50, true},
		{"e7", 0xe7, true},
		{"0x124", 0x124, true},
		{"", 0, false},
		{"NVxx", 0, false},
	} {
		ctx := log.Enter(ctx, test.in)
		c, err := ParseChipset(test.in)
		if test.ok {
			assert.For(ctx, "err").ThatError(err).Succeeded()
			assert.For(ctx, "chipset").That(c).Equals(test.expect)
		} else {
			assert.For(ctx, "err").ThatError(err).HasCause(ErrBadChipset)
		}
	}
	assert.For(ctx, "nv50 ib").ThatBoolean(Chipset(0x50).IBSupported()).IsTrue()
	assert.For(ctx, "nv40 ib").ThatBoolean(Chipset(0x40).IBSupported()).IsFalse()
	assert.For(ctx, "nv84 ib").ThatBoolean(Chipset(0x84).IBSupported()).IsTrue()
}

func TestPBPointer(t *testing.T) {
	ctx := log.Testing(t)
	p, err := ParsePBPointer("3")
	assert.For(ctx, "id").ThatError(err).Succeeded()
	assert.For(ctx, "id only").That(p).Equals(PBPointer{Set: true, ID: 3})
	p, err = ParsePBPointer("12,0x100")
	assert.For(ctx, "offset").ThatError(err).Succeeded()
	assert.For(ctx, "id and offset").That(p).Equals(PBPointer{Set: true, ID: 12, Offset: 0x100})
	_, err = ParsePBPointer("x,1")
	assert.For(ctx, "bad").ThatError(err).HasCause(ErrBadPointer)
}

func TestChipsetFromName(t *testing.T) {
	ctx := log.Testing(t)
	c, ok := ChipsetFromName("/traces/nvc0-glxgears.mmt.xz")
	assert.For(ctx, "found").ThatBoolean(ok).IsTrue()
	assert.For(ctx, "chipset").That(c).Equals(Chipset(0xc0))
	_, ok = ChipsetFromName("glxgears.mmt")
	assert.For(ctx, "no prefix").ThatBoolean(ok).IsFalse()
	_, ok = ChipsetFromName("nvidia.mmt")
	assert.For(ctx, "no digits").ThatBoolean(ok).IsFalse()
}

func TestLoad(t *testing.T) {
	ctx := log.Testing(t)
	path := filepath.Join(t.TempDir(), "demmt.toml")
	data := `chipset = "NVE7"
colors = false
pb-pointer = "5,0x40"
force-pushbuf-decoding = true
disable = ["all"]
enable = ["pb", "class=all"]
`
	assert.For(ctx, "write").ThatError(os.WriteFile(path, []byte(data), 0644)).Succeeded()
	o, err := Load(path)
	assert.For(ctx, "load").ThatError(err).Succeeded()
	assert.For(ctx, "chipset").That(o.Chipset).Equals(Chipset(0xe7))
	assert.For(ctx, "colors").ThatBoolean(o.UseColors()).IsFalse()
	assert.For(ctx, "pointer").That(o.PBPointer).Equals(PBPointer{Set: true, ID: 5, Offset: 0x40})
	assert.For(ctx, "force").ThatBoolean(o.ForcePushbuf).IsTrue()
	assert.For(ctx, "pb").ThatBoolean(o.Filters.PB).IsTrue()
	assert.For(ctx, "write").ThatBoolean(o.Filters.Write).IsFalse()
	assert.For(ctx, "classes").ThatSlice(o.Classes).Equals([]ClassToggle{{All: true}, {All: true, Enabled: true}})

	bad := filepath.Join(t.TempDir(), "bad.toml")
	assert.For(ctx, "write").ThatError(os.WriteFile(bad, []byte("enable = [\"nope\"]\n"), 0644)).Succeeded()
	_, err = Load(bad)
	assert.For(ctx, "bad token").ThatError(err).HasCause(ErrUnknownToken)
}

func TestQuiet(t *testing.T) {
	ctx := log.Testing(t)
	o := Defaults()
	o.SetQuiet()
	assert.For(ctx, "pb").ThatBoolean(o.Filters.PB).IsTrue()
	assert.For(ctx, "macro").ThatBoolean(o.Filters.MacroRT && o.Filters.MacroDis).IsTrue()
	assert.For(ctx, "write").ThatBoolean(o.Filters.Write).IsFalse()
	assert.For(ctx, "info").ThatBoolean(o.Filters.Info).IsFalse()
}

func TestDecompress(t *testing.T) {
	ctx := log.Testing(t)
	payload := []byte("w\x05\x00\x00\x00\x40\x00\x00\x00\x04\x01\x02\x03\x04\n")
	for _, test := range []struct {
		ext      string
		compress func(w io.Writer) io.WriteCloser
	}{
		{".gz", func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) }},
		{".zst", func(w io.Writer) io.WriteCloser {
			z, _ := zstd.NewWriter(w)
			return z
		}},
		{".xz", func(w io.Writer) io.WriteCloser {
			z, _ := xz.NewWriter(w)
			return z
		}},
		{".mmt", nil},
	} {
		ctx := log.Enter(ctx, test.ext)
		buf := &bytes.Buffer{}
		if test.compress != nil {
			z := test.compress(buf)
			z.Write(payload)
			assert.For(ctx, "close").ThatError(z.Close()).Succeeded()
		} else {
			buf.Write(payload)
		}
		path := filepath.Join(t.TempDir(), "trace"+test.ext)
		assert.For(ctx, "write").ThatError(os.WriteFile(path, buf.Bytes(), 0644)).Succeeded()
		r, err := Open(path)
		assert.For(ctx, "open").ThatError(err).Succeeded()
		got, err := io.ReadAll(r)
		assert.For(ctx, "read").ThatError(err).Succeeded()
		assert.For(ctx, "data").ThatSlice(got).Equals(payload)
		assert.For(ctx, "close").ThatError(r.Close()).Succeeded()
	}
}
