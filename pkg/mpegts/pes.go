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

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tspack/pkg/base"
)

// -----------------------------------------------------------
// <iso13818-1.pdf>
// <2.4.3.6 PES packet> <page 49/174>
// <Table E.1 - PES packet header example> <page 142/174>
// <F.0.2 PES packet> <page 144/174>
// packet_start_code_prefix  [24b] *** always 0x00, 0x00, 0x01
// stream_id                 [8b]  *
// PES_packet_length         [16b] **
// '10'                      [2b]
// PES_scrambling_control    [2b]
// PES_priority              [1b]
// data_alignment_indicator  [1b]
// copyright                 [1b]
// original_or_copy          [1b]  *
// PTS_DTS_flags             [2b]
// ESCR_flag                 [1b]
// ES_rate_flag              [1b]
// DSM_trick_mode_flag       [1b]
// additional_copy_info_flag [1b]
// PES_CRC_flag              [1b]
// PES_extension_flag        [1b]  *
// PES_header_data_length    [8b]  *
// -----------------------------------------------------------

const (
	pesFixedHeaderLength = 9

	videoPesHeaderDataLength = 10 // PTS + DTS
	audioPesHeaderDataLength = 5  // PTS

	VideoPesHeaderLength = pesFixedHeaderLength + videoPesHeaderDataLength
	AudioPesHeaderLength = pesFixedHeaderLength + audioPesHeaderDataLength

	maxPesPacketLength = 0xFFFF
)

// PackVideoPes 将一块视频帧数据打包成PES
//
// @param chunk:          不超过 MaxVideoPesPayload
// @param first:          是否为该帧的第一个PES，第一个PES设置data_alignment_indicator
// @param truncateLength: 为true时PES_packet_length只保留低8位，和旧版本的输出保持字节级一致
//
// @return 内存块为独立新申请
//
func PackVideoPes(chunk []byte, first bool, pts, dts int64, truncateLength bool) ([]byte, error) {
	if len(chunk) > MaxVideoPesPayload {
		return nil, base.NewErrPesTooLarge(len(chunk), MaxVideoPesPayload, "video pes")
	}

	out := make([]byte, VideoPesHeaderLength+len(chunk))
	pesPacketLength := 3 + videoPesHeaderDataLength + len(chunk)
	if truncateLength {
		pesPacketLength &= 0xFF
	}

	out[0] = 0x00 // packet_start_code_prefix
	out[1] = 0x00 //
	out[2] = 0x01 //
	out[3] = StreamIdVideo
	bele.BePutUint16(out[4:], uint16(pesPacketLength))
	if first {
		out[6] = 0x84
	} else {
		out[6] = 0x80
	}
	out[7] = 0xC0 // PTS_DTS_flags
	out[8] = videoPesHeaderDataLength
	PackTime(out[9:], pts)
	PackTime(out[14:], dts)
	copy(out[VideoPesHeaderLength:], chunk)
	return out, nil
}

// PackAudioPes 将若干个带ADTS头的音频帧打包成一个PES，只携带PTS
//
// @return 内存块为独立新申请
//
func PackAudioPes(payload []byte, pts int64) ([]byte, error) {
	pesPacketLength := 3 + audioPesHeaderDataLength + len(payload)
	if pesPacketLength > maxPesPacketLength {
		return nil, base.NewErrPesTooLarge(pesPacketLength, maxPesPacketLength, "audio pes")
	}

	out := make([]byte, AudioPesHeaderLength+len(payload))
	out[0] = 0x00
	out[1] = 0x00
	out[2] = 0x01
	out[3] = StreamIdAudio
	bele.BePutUint16(out[4:], uint16(pesPacketLength))
	out[6] = 0x80
	out[7] = 0x80 // PTS_DTS_flags
	out[8] = audioPesHeaderDataLength
	PackTime(out[9:], pts)
	copy(out[AudioPesHeaderLength:], payload)
	return out, nil
}

type Pes struct {
	StreamId         uint8
	PacketLength     uint16
	DataAlignment    bool
	PtsDtsFlag       uint8
	HeaderDataLength uint8
	Pts              int64
	Dts              int64
}

// ParsePes 解析PES头
//
// @return length: PES头的大小，b[length:]为PES负载
//
func ParsePes(b []byte) (pes Pes, length int, err error) {
	if len(b) < pesFixedHeaderLength {
		return pes, 0, base.NewErrShortBuffer(pesFixedHeaderLength, len(b), "pes header")
	}

	br := nazabits.NewBitReader(b)
	pscp, _ := br.ReadBits32(24)
	if pscp != 1 {
		return pes, 0, fmt.Errorf("%w. invalid packet_start_code_prefix. pscp=%x", base.ErrMpegts, pscp)
	}
	pes.StreamId, _ = br.ReadBits8(8)
	pes.PacketLength, _ = br.ReadBits16(16)

	flags, _ := br.ReadBits8(8)
	pes.DataAlignment = flags&0x04 != 0
	pes.PtsDtsFlag, _ = br.ReadBits8(2)
	_, _ = br.ReadBits8(6)
	pes.HeaderDataLength, _ = br.ReadBits8(8)

	length = pesFixedHeaderLength + int(pes.HeaderDataLength)
	if len(b) < length {
		return pes, 0, base.NewErrShortBuffer(length, len(b), "pes header data")
	}

	if pes.PtsDtsFlag&0x2 != 0 && pes.HeaderDataLength >= 5 {
		pes.Pts = ReadTime(b[pesFixedHeaderLength:])
	}
	if pes.PtsDtsFlag&0x1 != 0 && pes.HeaderDataLength >= 10 {
		pes.Dts = ReadTime(b[pesFixedHeaderLength+5:])
	} else {
		pes.Dts = pes.Pts
	}
	return
}
