// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

const (
	// transport_stream_id ~ last_section_number
	psiSyntaxSectionHeaderLength = 5

	psiCrc32Length = 4

	patProgramLength = 4

	// reserved + PCR_PID + reserved + program_info_length
	pmtFixedLength = 4

	pmtStreamLength = 5
)

// PackHeader 生成TS segment开头固定的两个TS包：PAT，PMT
//
// @param hasAudio: PMT中是否包含音频流
//
// @return 内存块为独立新申请，大小固定为 2 * PacketSize
//
func PackHeader(hasAudio bool) []byte {
	out := make([]byte, 2*PacketSize)
	packPsiPacket(out[:PacketSize], PidPat, packPatSection())
	packPsiPacket(out[PacketSize:], PidPmt, packPmtSection(hasAudio))
	return out
}

// PmtSectionLength PMT中section_length字段的值
func PmtSectionLength(hasAudio bool) uint16 {
	n := psiSyntaxSectionHeaderLength + pmtFixedLength + pmtStreamLength + psiCrc32Length
	if hasAudio {
		n += pmtStreamLength
	}
	return uint16(n)
}

// PatSectionLength PAT中section_length字段的值
func PatSectionLength() uint16 {
	return psiSyntaxSectionHeaderLength + patProgramLength + psiCrc32Length
}

// 一个section放在一个TS包中，TS包剩余部分填充0xFF
func packPsiPacket(packet []byte, pid uint16, section []byte) {
	packet[0] = syncByte
	packet[1] = 0x40 | (uint8(pid>>8) & 0x1F) // payload_unit_start_indicator
	packet[2] = uint8(pid & 0xFF)
	packet[3] = 0x10 // no adaptation, continuity_counter 0
	packet[4] = 0    // pointer_field
	wpos := 5 + copy(packet[5:], section)
	for i := wpos; i < len(packet); i++ {
		packet[i] = 0xFF
	}
}

// ---------------------------------------------------------------------------------------------------
// Program association section
// <iso13818-1.pdf> <2.4.4.3> <page 61/174>
// table_id                 [8b] *
// section_syntax_indicator [1b]
// '0'                      [1b]
// reserved                 [2b]
// section_length           [12b] **
// transport_stream_id      [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// -----loop-----
// program_number           [16b] **
// reserved                 [3b]
// program_map_PID          [13b] **
// --------------
// CRC_32                   [32b] ****
// ---------------------------------------------------------------------------------------------------
func packPatSection() []byte {
	sl := PatSectionLength()
	section := make([]byte, 3+int(sl))
	bw := nazabits.NewBitWriter(section)
	writePsiTableHeader(&bw, TsPsiIdPas, sl)
	writePsiSyntaxSectionHeader(&bw, programNumber)

	bw.WriteBits16(16, programNumber)
	bw.WriteBits8(3, 0xFF)
	bw.WriteBits16(13, PidPmt)

	writeCrc32(section)
	return section
}

// ----------------------------------------
// Program Map Table
// <iso13818-1.pdf> <2.4.4.8> <page 64/174>
// table_id                 [8b]  *
// section_syntax_indicator [1b]
// 0                        [1b]
// reserved                 [2b]
// section_length           [12b] **
// program_number           [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// reserved                 [3b]
// PCR_PID                  [13b] **
// reserved                 [4b]
// program_info_length      [12b] **
// -----loop-----
// stream_type              [8b]  *
// reserved                 [3b]
// elementary_PID           [13b] **
// reserved                 [4b]
// ES_info_length           [12b] **
// --------------
// CRC32                    [32b] ****
// ----------------------------------------
func packPmtSection(hasAudio bool) []byte {
	sl := PmtSectionLength(hasAudio)
	section := make([]byte, 3+int(sl))
	bw := nazabits.NewBitWriter(section)
	writePsiTableHeader(&bw, TsPsiIdPms, sl)
	writePsiSyntaxSectionHeader(&bw, programNumber)

	// PCR跟随视频
	bw.WriteBits8(3, 0xFF)
	bw.WriteBits16(13, PidVideo)
	bw.WriteBits8(4, 0xFF)
	bw.WriteBits16(12, 0) // program_info_length

	writePmtStream(&bw, StreamTypeAvc, PidVideo)
	if hasAudio {
		writePmtStream(&bw, StreamTypeAac, PidAudio)
	}

	writeCrc32(section)
	return section
}

func writePsiTableHeader(bw *nazabits.BitWriter, tableId uint8, sectionLength uint16) {
	bw.WriteBits8(8, tableId)
	bw.WriteBit(1) // section_syntax_indicator
	bw.WriteBit(0)
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits16(12, sectionLength)
}

func writePsiSyntaxSectionHeader(bw *nazabits.BitWriter, tableIdExtension uint16) {
	bw.WriteBits16(16, tableIdExtension)
	bw.WriteBits8(2, 0xFF)
	bw.WriteBits8(5, 0) // version_number
	bw.WriteBit(1)      // current_next_indicator
	bw.WriteBits8(8, 0) // section_number
	bw.WriteBits8(8, 0) // last_section_number
}

func writePmtStream(bw *nazabits.BitWriter, streamType uint8, pid uint16) {
	bw.WriteBits8(8, streamType)
	bw.WriteBits8(3, 0xFF)
	bw.WriteBits16(13, pid)
	bw.WriteBits8(4, 0xFF)
	bw.WriteBits16(12, 0) // ES_info_length
}

// CRC覆盖 table_id 到CRC字段之前的所有字节，大端写入section最后4字节
func writeCrc32(section []byte) {
	end := len(section) - psiCrc32Length
	bele.BePutUint32(section[end:], CalcCrc32(0xFFFFFFFF, section[:end]))
}
