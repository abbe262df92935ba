// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "context"

// Fragment 一段按时间排序的样本，以及对应的编码参数
//
// 使用方式分两个阶段：
// 1. 调用 Read，等待样本数据就绪（可能涉及IO）
// 2. Read 成功返回后，其余方法都是同步的只读访问，并且在一次打包过程中内容不变
type Fragment interface {
	Read(ctx context.Context) error

	Timescale() uint32

	// VideoExtraData AVCDecoderConfigurationRecord（avcC），可能为空
	VideoExtraData() []byte

	// AudioExtraData AudioSpecificConfig，可能为空
	AudioExtraData() []byte

	Samples() []Sample
}

// SliceFragment 样本已经全部在内存中的 Fragment
type SliceFragment struct {
	timescale      uint32
	videoExtraData []byte
	audioExtraData []byte
	samples        []Sample
}

func NewSliceFragment(timescale uint32, videoExtraData, audioExtraData []byte, samples []Sample) *SliceFragment {
	return &SliceFragment{
		timescale:      timescale,
		videoExtraData: videoExtraData,
		audioExtraData: audioExtraData,
		samples:        samples,
	}
}

func (f *SliceFragment) Read(ctx context.Context) error {
	return ctx.Err()
}

func (f *SliceFragment) Timescale() uint32 {
	return f.timescale
}

func (f *SliceFragment) VideoExtraData() []byte {
	return f.videoExtraData
}

func (f *SliceFragment) AudioExtraData() []byte {
	return f.audioExtraData
}

func (f *SliceFragment) Samples() []Sample {
	return f.samples
}

func (f *SliceFragment) Append(s Sample) {
	f.samples = append(f.samples, s)
}
