// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "fmt"

type SampleKind int

const (
	SampleKindUnknown SampleKind = iota
	SampleKindAudio
	SampleKindVideo
)

func (k SampleKind) ReadableString() string {
	switch k {
	case SampleKindAudio:
		return "audio"
	case SampleKindVideo:
		return "video"
	}
	return "unknown"
}

// Sample 一个已经解复用的 access unit
//
// 只有 Kind 为 SampleKindVideo 时，Video 字段才有意义。
type Sample struct {
	Kind SampleKind

	// Buffer
	//
	// 视频: AVCC格式，前4字节为大端的nalu长度字段
	// 音频: AAC raw frame，不包含ADTS头
	//
	// 上层持有，打包过程中只读
	Buffer []byte

	// Timestamp 样本时间，乘以 Fragment.Timescale() 后单位为毫秒
	Timestamp float64

	// Timescale 样本自身的时间基，用于换算 VideoData.CompositionOffset
	Timescale uint32

	Video VideoData
}

type VideoData struct {
	Keyframe          bool
	CompositionOffset int64 // 单位为 Sample.Timescale
}

func NewAudioSample(buf []byte, timestamp float64, timescale uint32) Sample {
	return Sample{
		Kind:      SampleKindAudio,
		Buffer:    buf,
		Timestamp: timestamp,
		Timescale: timescale,
	}
}

func NewVideoSample(buf []byte, timestamp float64, timescale uint32, keyframe bool, compositionOffset int64) Sample {
	return Sample{
		Kind:      SampleKindVideo,
		Buffer:    buf,
		Timestamp: timestamp,
		Timescale: timescale,
		Video: VideoData{
			Keyframe:          keyframe,
			CompositionOffset: compositionOffset,
		},
	}
}

func (s Sample) DebugString() string {
	switch s.Kind {
	case SampleKindVideo:
		return fmt.Sprintf("[%s] ts=%v, timescale=%d, key=%t, cts=%d, len=%d",
			s.Kind.ReadableString(), s.Timestamp, s.Timescale, s.Video.Keyframe, s.Video.CompositionOffset, len(s.Buffer))
	default:
		return fmt.Sprintf("[%s] ts=%v, timescale=%d, len=%d",
			s.Kind.ReadableString(), s.Timestamp, s.Timescale, len(s.Buffer))
	}
}
