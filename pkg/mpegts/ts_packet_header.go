// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tspack/pkg/base"
)

// ------------------------------------------------
// <iso13818-1.pdf> <2.4.3.2> <page 36/174>
// sync_byte                    [8b]  * always 0x47
// transport_error_indicator    [1b]
// payload_unit_start_indicator [1b]
// transport_priority           [1b]
// PID                          [13b] **
// transport_scrambling_control [2b]
// adaptation_field_control     [2b]
// continuity_counter           [4b]  *
// ------------------------------------------------
type TsPacketHeader struct {
	Sync             uint8
	Err              uint8
	PayloadUnitStart uint8
	Prio             uint8
	Pid              uint16
	Scra             uint8
	Adaptation       uint8
	Cc               uint8
}

func (h TsPacketHeader) HasAdaptation() bool {
	return h.Adaptation&0x2 != 0
}

func (h TsPacketHeader) HasPayload() bool {
	return h.Adaptation&0x1 != 0
}

// ----------------------------------------------------------
// <iso13818-1.pdf> <Table 2-6> <page 40/174>
// adaptation_field_length              [8b] * 不包括自己这1字节
// discontinuity_indicator              [1b]
// random_access_indicator              [1b]
// elementary_stream_priority_indicator [1b]
// PCR_flag                             [1b]
// OPCR_flag                            [1b]
// splicing_point_flag                  [1b]
// transport_private_data_flag          [1b]
// adaptation_field_extension_flag      [1b] *
// -----if PCR_flag == 1-----
// program_clock_reference_base         [33b]
// reserved                             [6b]
// program_clock_reference_extension    [9b] ******
// ----------------------------------------------------------
type TsPacketAdaptation struct {
	Length       uint8
	RandomAccess bool
	HasPcr       bool
	Pcr          int64 // program_clock_reference_base
	StuffingNum  int
}

// TsPacket 一个拆解后的188字节TS包
type TsPacket struct {
	Header     TsPacketHeader
	Adaptation *TsPacketAdaptation
	Payload    []byte
}

// ParseTsPacketHeader 解析4字节TS Packet header
func ParseTsPacketHeader(b []byte) (h TsPacketHeader, err error) {
	if len(b) < tsHeaderSize {
		return h, base.NewErrShortBuffer(tsHeaderSize, len(b), "ts packet header")
	}
	br := nazabits.NewBitReader(b)
	h.Sync, _ = br.ReadBits8(8)
	h.Err, _ = br.ReadBits8(1)
	h.PayloadUnitStart, _ = br.ReadBits8(1)
	h.Prio, _ = br.ReadBits8(1)
	h.Pid, _ = br.ReadBits16(13)
	h.Scra, _ = br.ReadBits8(2)
	h.Adaptation, _ = br.ReadBits8(2)
	h.Cc, _ = br.ReadBits8(4)
	if h.Sync != syncByte {
		return h, fmt.Errorf("%w. invalid sync byte. sync=%x", base.ErrMpegts, h.Sync)
	}
	return
}

// ParseTsPacketAdaptation
//
// @param b: 从adaptation_field_length开始
//
func ParseTsPacketAdaptation(b []byte) (f TsPacketAdaptation, err error) {
	if len(b) < 1 {
		return f, base.NewErrShortBuffer(1, len(b), "adaptation field length")
	}
	f.Length = b[0]
	if len(b) < 1+int(f.Length) {
		return f, base.NewErrShortBuffer(1+int(f.Length), len(b), "adaptation field")
	}
	if f.Length == 0 {
		return
	}

	flags := b[1]
	f.RandomAccess = flags&0x40 != 0
	f.HasPcr = flags&0x10 != 0
	used := 1
	if f.HasPcr {
		if f.Length < 7 {
			return f, base.NewErrShortBuffer(7, int(f.Length), "pcr")
		}
		f.Pcr = ReadPcr(b[2:])
		used += 6
	}
	for i := 1 + used; i < 1+int(f.Length); i++ {
		if b[i] == 0xFF {
			f.StuffingNum++
		}
	}
	return
}

// ParseTsPacket
//
// @param packet: 完整的188字节TS包，函数返回后Payload引用该内存块
//
func ParseTsPacket(packet []byte) (p TsPacket, err error) {
	if len(packet) != PacketSize {
		return p, fmt.Errorf("%w. invalid ts packet size. size=%d", base.ErrMpegts, len(packet))
	}
	if p.Header, err = ParseTsPacketHeader(packet); err != nil {
		return
	}
	pos := tsHeaderSize
	if p.Header.HasAdaptation() {
		var af TsPacketAdaptation
		if af, err = ParseTsPacketAdaptation(packet[pos:]); err != nil {
			return
		}
		p.Adaptation = &af
		pos += 1 + int(af.Length)
	}
	if p.Header.HasPayload() {
		p.Payload = packet[pos:]
	}
	return
}

// SplitTs 将TS流切分成一个个TS包，返回的每个TS包都引用 content 的内存块
func SplitTs(content []byte) (ret [][]byte, err error) {
	if len(content)%PacketSize != 0 {
		return nil, fmt.Errorf("%w. length not multiple of packet size. length=%d", base.ErrMpegts, len(content))
	}
	for len(content) > 0 {
		if content[0] != syncByte {
			return nil, fmt.Errorf("%w. invalid sync byte. index=%d", base.ErrMpegts, len(ret))
		}
		ret = append(ret, content[:PacketSize])
		content = content[PacketSize:]
	}
	return
}
