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

	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/tspack/pkg/base"
)

const unsetTime int64 = -1

// Segment 一个完整的TS segment的打包状态
//
// 每个segment独立：以PAT+PMT开头，continuity_counter从0开始，PCR状态从零开始。
// 非并发安全，一个Segment只应该在一次打包过程中使用。
type Segment struct {
	buf *nazabytes.Buffer

	videoCc uint8
	audioCc uint8

	lastVideoTime int64
	lastAudioTime int64
	lastPcrTime   int64

	stat SegmentStat
}

type SegmentStat struct {
	VideoPesNum    int
	AudioPesNum    int
	VideoPacketNum int
	AudioPacketNum int
}

// NewSegment
//
// @param hasAudio:  PMT中是否声明音频流
// @param sizeHint:  预估的输出大小，用于预分配内存
//
func NewSegment(hasAudio bool, sizeHint int) *Segment {
	if sizeHint < 2*PacketSize {
		sizeHint = 2 * PacketSize
	}
	s := &Segment{
		buf:           nazabytes.NewBuffer(sizeHint),
		lastVideoTime: unsetTime,
		lastAudioTime: unsetTime,
		lastPcrTime:   unsetTime,
	}
	if hasAudio {
		s.buf.Write(FixedFragmentHeader)
	} else {
		s.buf.Write(FixedFragmentHeaderVideoOnly)
	}
	return s
}

// SetVideoTime 记录最近一个视频样本的时间（90kHz），用于计算PCR
func (s *Segment) SetVideoTime(t int64) {
	s.lastVideoTime = t
}

// SetAudioTime 记录最近一个音频样本的时间（90kHz），用于计算PCR
//
// 注意，音频帧是攒够多个才打包成PES的，但是每个音频样本都应该调用这个函数
func (s *Segment) SetAudioTime(t int64) {
	s.lastAudioTime = t
}

// WritePes 将一个PES切分成TS包追加到segment中
//
// 视频PES的首个TS包携带adaptation field以及PCR，关键帧同时设置random_access_indicator。
// 不足一个TS包的数据，使用adaptation field中的0xFF填充。
//
// @param key: 是否为关键帧，音频忽略
//
func (s *Segment) WritePes(pes []byte, kind StreamKind, key bool) error {
	var pid uint16
	var cc *uint8
	var packetNum *int
	switch kind {
	case StreamKindVideo:
		pid, cc, packetNum = PidVideo, &s.videoCc, &s.stat.VideoPacketNum
		s.stat.VideoPesNum++
	case StreamKindAudio:
		pid, cc, packetNum = PidAudio, &s.audioCc, &s.stat.AudioPacketNum
		s.stat.AudioPesNum++
	default:
		return fmt.Errorf("%w. unknown stream kind. kind=%d", base.ErrMpegts, kind)
	}

	s.reserve(CalcPesPacketNum(len(pes), kind == StreamKindVideo) * PacketSize)

	var packet [PacketSize]byte
	lpos := 0
	for index := 0; lpos < len(pes); index++ {
		first := index == 0
		inSize := len(pes) - lpos
		withPcr := first && kind == StreamKindVideo
		withAdaptation := withPcr || inSize < PacketSize-tsHeaderSize

		// -----TS Header----------------
		// sync_byte
		// transport_error_indicator    0
		// payload_unit_start_indicator
		// transport_priority           0
		// PID
		// transport_scrambling_control 0
		// adaptation_field_control
		// continuity_counter
		// ------------------------------
		packet[0] = syncByte
		packet[1] = 0
		if first {
			packet[1] = 0x40
		}
		packet[1] |= uint8(pid>>8) & 0x1F
		packet[2] = uint8(pid & 0xFF)
		if withAdaptation {
			packet[3] = 0x30
		} else {
			packet[3] = 0x10
		}
		packet[3] |= *cc & 0x0F
		*cc = (*cc + 1) & 0x0F
		wpos := tsHeaderSize

		if withAdaptation {
			// -----Adaptation-----------------------
			// adaptation_field_length
			// discontinuity_indicator              0
			// random_access_indicator
			// elementary_stream_priority_indicator 0
			// PCR_flag
			// OPCR_flag                            0
			// splicing_point_flag                  0
			// transport_private_data_flag          0
			// adaptation_field_extension_flag      0
			// program_clock_reference_base
			// reserved
			// program_clock_reference_extension
			// --------------------------------------
			afl := 0
			if withPcr {
				afl = 7
			}
			if inSize < maxPayloadWithAdaptation && maxPayloadWithAdaptation-inSize > afl {
				afl = maxPayloadWithAdaptation - inSize
			}
			packet[wpos] = uint8(afl)
			wpos++
			if afl > 0 {
				used := 1
				var flags uint8
				if withPcr {
					if key {
						flags |= 0x40 // random_access_indicator
					}
					flags |= 0x10 // PCR_flag
					PackPcr(packet[wpos+1:], s.pcrTimecode())
					used += 6
				}
				packet[wpos] = flags
				for i := wpos + used; i < wpos+afl; i++ {
					packet[i] = 0xFF
				}
				wpos += afl
			}
		}

		n := copy(packet[wpos:], pes[lpos:])
		lpos += n
		if wpos+n != PacketSize {
			return fmt.Errorf("%w. ts packet not full. pid=%d, wpos=%d, n=%d", base.ErrMpegts, pid, wpos, n)
		}

		s.buf.Write(packet[:])
		*packetNum++
	}
	return nil
}

// reserve 剩余空间不足时按至少翻倍扩容，sizeHint偏小时也不会每个TS包都重新分配
func (s *Segment) reserve(n int) {
	if s.buf.Cap()-s.buf.Len() >= n {
		return
	}
	if l := s.buf.Len(); n < l {
		n = l
	}
	s.buf.Grow(n)
}

// CalcPesPacketNum 一个PES被 WritePes 切分后的TS包个数
//
// @param withPcr: 视频PES为true，首包中的adaptation field占用 1+7 字节
//
func CalcPesPacketNum(pesLength int, withPcr bool) int {
	if pesLength <= 0 {
		return 0
	}
	n := 0
	if withPcr {
		firstPayload := maxPayloadWithAdaptation - 7
		if pesLength <= firstPayload {
			return 1
		}
		pesLength -= firstPayload
		n = 1
	}
	return n + (pesLength+PacketSize-tsHeaderSize-1)/(PacketSize-tsHeaderSize)
}

// Bytes 到目前为止整个segment的数据，长度总是 PacketSize 的整数倍
func (s *Segment) Bytes() []byte {
	return s.buf.Bytes()
}

func (s *Segment) Stat() SegmentStat {
	return s.stat
}

// pcrTimecode 取音视频最近时间中较小的那个，并且保证PCR单调不减
func (s *Segment) pcrTimecode() int64 {
	t := unsetTime
	switch {
	case s.lastVideoTime >= 0 && s.lastAudioTime >= 0:
		t = s.lastVideoTime
		if s.lastAudioTime < t {
			t = s.lastAudioTime
		}
	case s.lastAudioTime >= 0:
		t = s.lastAudioTime
	case s.lastVideoTime >= 0:
		t = s.lastVideoTime
	}
	if s.lastPcrTime != unsetTime && t < s.lastPcrTime {
		t = s.lastPcrTime
	}
	if t < 0 {
		t = 0
	}
	s.lastPcrTime = t
	return t
}

func (s *Segment) WriteVideoPes(pes []byte, key bool) error {
	return s.WritePes(pes, StreamKindVideo, key)
}

func (s *Segment) WriteAudioPes(pes []byte) error {
	return s.WritePes(pes, StreamKindAudio, false)
}
