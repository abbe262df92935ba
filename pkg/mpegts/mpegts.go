// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// MPEG: Moving Picture Experts Group

const (
	syncByte uint8 = 0x47

	PacketSize = 188

	tsHeaderSize = 4

	// 一个TS包除去4字节TS头以及1字节adaptation_field_length后剩余的大小
	maxPayloadWithAdaptation = PacketSize - tsHeaderSize - 1
)

// PID
const (
	PidPat   uint16 = 0
	PidPmt   uint16 = 0xFFF
	PidVideo uint16 = 0x102
	PidAudio uint16 = 0x103
)

// stream_type of PMT
const (
	StreamTypeAvc uint8 = 0x1B
	StreamTypeAac uint8 = 0x0F
)

// stream_id of PES Header
const (
	StreamIdVideo uint8 = 0xE0
	StreamIdAudio uint8 = 0xC0
)

const (
	// MaxVideoPesPayload 单个视频PES最多承载的帧数据大小，超过的帧被切分成多个PES
	MaxVideoPesPayload = 32725

	// AudioFramesPerPes 多少个音频帧合成一个PES
	AudioFramesPerPes = 5

	programNumber uint16 = 1
)

// table_id
const (
	TsPsiIdPas = 0x00 // program_association_section
	TsPsiIdPms = 0x02 // TS_program_map_section
)

// StreamKind 决定PID、continuity_counter，以及是否在PES首包中携带PCR
type StreamKind uint8

const (
	StreamKindVideo StreamKind = iota + 1
	StreamKindAudio
)

func (k StreamKind) ReadableString() string {
	switch k {
	case StreamKindVideo:
		return "video"
	case StreamKindAudio:
		return "audio"
	}
	return "unknown"
}

var (
	// FixedFragmentHeader 每个TS segment开头的PAT+PMT，包含音频和视频
	FixedFragmentHeader = PackHeader(true)

	// FixedFragmentHeaderVideoOnly 每个TS segment开头的PAT+PMT，只包含视频
	FixedFragmentHeaderVideoOnly = PackHeader(false)
)
