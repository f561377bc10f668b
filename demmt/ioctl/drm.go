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

package ioctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/envytools/demmt/core/log"
)

// Ioctl types.
const (
	TypeDRM    = 0x64
	TypeNvidia = 0x46
)

// DRM core command numbers.
const (
	DRMVersion    = 0x00
	DRMGetMagic   = 0x02
	DRMSetVersion = 0x07
	DRMGemClose   = 0x09
	DRMGemFlink   = 0x0a
	DRMGemOpen    = 0x0b
	DRMGetCap     = 0x0c
	DRMAuthMagic  = 0x11
	DRMSetMaster  = 0x1e
	DRMDropMaster = 0x1f
)

const (
	version64Size = 0x40
	version32Size = 0x24
)

// drm decodes the ioctls of the DRM core.
type drm struct {
	env *Env
}

// RegisterDRM installs the DRM core and nouveau decoders into r.
func RegisterDRM(r *Registry, env *Env) {
	r.Register(TypeDRM, AnyNr, &drm{env: env})
	n := &nouveau{env: env}
	for nr := range nouveauNames {
		r.Register(TypeDRM, int(nr), n)
	}
}

func (d *drm) Pre(ctx context.Context, c Call) bool {
	env := d.env
	r := c.Args()
	switch c.ID.Nr() {
	case DRMVersion, DRMGetMagic, DRMGetCap, DRMSetMaster, DRMDropMaster, DRMAuthMagic, DRMGemFlink:
	case DRMSetVersion:
		diMajor, diMinor, ddMajor, ddMinor := r.Uint32(), r.Uint32(), r.Uint32(), r.Uint32()
		env.printf("%s pre,  di_major: %2d, di_minor: %2d, dd_major: %2d, dd_minor: %2d\n",
			env.name("DRM_IOCTL_SET_VERSION"), int32(diMajor), int32(diMinor), int32(ddMajor), int32(ddMinor))
	case DRMGemClose:
		env.printf("%s, handle: %s\n", env.name("DRM_IOCTL_GEM_CLOSE"), env.num(r.Uint32()))
	case DRMGemOpen:
		env.printf("%s pre,  name: %d\n", env.name("DRM_IOCTL_GEM_OPEN"), r.Uint32())
	default:
		log.W(ctx, "unknown drm ioctl 0x%x", c.ID.Nr())
		return true
	}
	return false
}

func (d *drm) Post(ctx context.Context, c Call) bool {
	env := d.env
	r := c.Args()
	switch c.ID.Nr() {
	case DRMVersion:
		d.version(c)
	case DRMGetMagic:
		env.printf("%s, magic: 0x%x%s\n", env.name("DRM_IOCTL_GET_MAGIC"), r.Uint32(), retErr(env.Palette, c))
	case DRMGetCap:
		capability, value := r.Uint64(), r.Uint64()
		env.printf("%s, capability: %d, value: %d%s\n", env.name("DRM_IOCTL_GET_CAP"), capability, value, retErr(env.Palette, c))
	case DRMGemOpen:
		name, handle, size := r.Uint32(), r.Uint32(), r.Uint64()
		env.printf("%s post, name: %d, handle: %s, size: 0x%x%s\n",
			env.name("DRM_IOCTL_GEM_OPEN"), name, env.num(handle), size, retErr(env.Palette, c))
	case DRMGemFlink:
		handle, name := r.Uint32(), r.Uint32()
		env.printf("%s post, handle: %s, name: %d%s\n", env.name("DRM_IOCTL_GEM_FLINK"), env.num(handle), name, retErr(env.Palette, c))
	case DRMSetVersion, DRMGemClose, DRMSetMaster, DRMDropMaster, DRMAuthMagic:
		if c.Ret != 0 || c.Err != 0 {
			env.printf("%s%s\n", env.name(fmt.Sprintf("drm ioctl 0x%02x", c.ID.Nr())), retErr(env.Palette, c))
		}
	default:
		return true
	}
	return false
}

// version prints the driver identification returned by DRM_IOCTL_VERSION.
// The strings live behind pointers and are resolved through the dumps.
func (d *drm) version(c Call) {
	env := d.env
	r := c.Args()
	major, minor, patch := r.Uint32(), r.Uint32(), r.Uint32()
	var nameLen, name, dateLen, date, descLen, desc uint64
	switch c.ID.Size() {
	case version64Size:
		r.Uint32()
		nameLen, name = r.Uint64(), r.Uint64()
		dateLen, date = r.Uint64(), r.Uint64()
		descLen, desc = r.Uint64(), r.Uint64()
	case version32Size:
		nameLen, name = uint64(r.Uint32()), uint64(r.Uint32())
		dateLen, date = uint64(r.Uint32()), uint64(r.Uint32())
		descLen, desc = uint64(r.Uint32()), uint64(r.Uint32())
	default:
		env.printf("%s, unexpected argument size %d\n", env.name("DRM_IOCTL_VERSION"), c.ID.Size())
		return
	}
	env.printf("%s, version: %s.%s.%s, name: \"%s\", date: \"%s\", desc: \"%s\"%s\n",
		env.name("DRM_IOCTL_VERSION"), env.num(major), env.num(minor), env.num(patch),
		c.str(name, nameLen), c.str(date, dateLen), c.str(desc, descLen), retErr(env.Palette, c))
}

// str returns the string of length n at the user address addr.
func (c Call) str(addr, n uint64) string {
	b := c.Pointer(addr)
	if uint64(len(b)) > n {
		b = b[:n]
	}
	return strings.TrimRight(string(b), "\x00")
}

// GEM memory domains.
const (
	DomainCPU      = 1 << 0
	DomainVRAM     = 1 << 1
	DomainGART     = 1 << 2
	DomainMappable = 1 << 3
)

var domainNames = []struct {
	bit  uint32
	name string
}{
	{DomainCPU, "CPU"},
	{DomainVRAM, "VRAM"},
	{DomainGART, "GART"},
	{DomainMappable, "MAPPABLE"},
}

// domain formats a GEM domain mask.
func domain(d uint32) string {
	if d == 0 {
		return "NONE (0x0)"
	}
	parts := []string{}
	rest := d
	for _, n := range domainNames {
		if rest&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("UNK%x", rest))
	}
	return fmt.Sprintf("%s (0x%x)", strings.Join(parts, ", "), d)
}

// silent suppresses the raw dump of a whole ioctl type.
type silent struct{}

func (silent) Pre(context.Context, Call) bool  { return false }
func (silent) Post(context.Context, Call) bool { return false }

// RegisterNvidia installs the decoder for the proprietary driver's ioctls.
// Their effects are carried by the nested records that follow them, so only
// the raw dump is controlled here.
func RegisterNvidia(r *Registry) { r.Register(TypeNvidia, AnyNr, silent{}) }
