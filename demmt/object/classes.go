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

import "fmt"

var classNames = map[uint32]string{
	0x0039: "NV03_M2MF",
	0x0080: "NV01_DEVICE",
	0x2080: "NV20_SUBDEVICE",
	0x006c: "NV04_CHANNEL_DMA",
	0x006e: "NV10_CHANNEL_DMA",
	0x176e: "NV17_CHANNEL_DMA",
	0x406e: "NV40_CHANNEL_DMA",
	0x506f: "NV50_CHANNEL_GPFIFO",
	0x826f: "G82_CHANNEL_GPFIFO",
	0x906f: "GF100_CHANNEL_GPFIFO",
	0xa06f: "GK104_CHANNEL_GPFIFO",
	0xa16f: "GK110_CHANNEL_GPFIFO",
	0xb06f: "GM107_CHANNEL_GPFIFO",
	0xc06f: "GP100_CHANNEL_GPFIFO",
	0x502d: "NV50_2D",
	0x5039: "NV50_M2MF",
	0x5097: "NV50_3D",
	0x8297: "G82_3D",
	0x8397: "G200_3D",
	0x8597: "GT214_3D",
	0x8697: "GT21A_3D",
	0x50c0: "NV50_COMPUTE",
	0x85c0: "GT214_COMPUTE",
	0x902d: "GF100_2D",
	0x9039: "GF100_M2MF",
	0x9097: "GF100_3D",
	0x9197: "GF108_3D",
	0x9297: "GF110_3D",
	0x90c0: "GF100_COMPUTE",
	0x91c0: "GF110_COMPUTE",
	0xa040: "GK104_P2MF",
	0xa140: "GK110_P2MF",
	0xa097: "GK104_3D",
	0xa197: "GK110_3D",
	0xa297: "GK20A_3D",
	0xb097: "GM107_3D",
	0xb197: "GM200_3D",
	0xc097: "GP100_3D",
	0xa0b5: "GK104_COPY",
	0xb0b5: "GM107_COPY",
	0xc0b5: "GP100_COPY",
	0xc1b5: "GP104_COPY",
	0xa0c0: "GK104_COMPUTE",
	0xa1c0: "GK110_COMPUTE",
	0xb0c0: "GM107_COMPUTE",
	0xb1c0: "GM200_COMPUTE",
	0xc0c0: "GP100_COMPUTE",
	0xc1c0: "GP104_COMPUTE",
}

// ClassName returns the name of class, or an empty string.
func ClassName(class uint32) string { return classNames[class] }

// IsFifoClass returns true for the channel classes.
func IsFifoClass(class uint32) bool {
	switch class & 0xff {
	case 0x6c, 0x6e, 0x6f:
		return true
	}
	return false
}

// isDeviceClass returns true for classes that never appear in a command
// stream.
func isDeviceClass(class uint32) bool { return class == 0x0080 || class == 0x2080 }

// commonMethod names the methods shared by every class.
func commonMethod(mthd uint32) string {
	switch {
	case mthd == 0x0000:
		return "OBJECT"
	case mthd >= 0x0010 && mthd < 0x0020:
		return [...]string{"SEMAPHORE_ADDRESS_HIGH", "SEMAPHORE_ADDRESS_LOW", "SEMAPHORE_SEQUENCE", "SEMAPHORE_TRIGGER"}[(mthd-0x10)/4]
	case mthd == 0x0100:
		return "NOP"
	case mthd == 0x0104:
		return "NOTIFY_ADDRESS_HIGH"
	case mthd == 0x0108:
		return "NOTIFY_ADDRESS_LOW"
	case mthd == 0x010c:
		return "NOTIFY"
	case mthd == 0x0110:
		return "SERIALIZE"
	}
	return ""
}

// arrayName formats the name of element i of a method array.
func arrayName(name string, i uint32, field string) string {
	if field == "" {
		return fmt.Sprintf("%s[%d]", name, i)
	}
	return fmt.Sprintf("%s[%d].%s", name, i, field)
}
