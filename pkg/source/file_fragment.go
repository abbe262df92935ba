// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/av/avutil"
	"github.com/nareix/joy4/format"
	"github.com/pkg/errors"
	"github.com/q191201771/tspack/pkg/base"
)

const (
	// FragmentTimescale 样本时间戳单位为秒，乘以1000后再乘90即为90kHz
	FragmentTimescale = 1000

	videoSampleTimescale = 90000
)

func init() {
	format.RegisterAll()
}

type FileFragmentOption struct {
	// MaxDuration 只读取这个时长以内的数据，为0则读取整个文件
	MaxDuration time.Duration
}

var defaultFileFragmentOption = FileFragmentOption{
	MaxDuration: 0,
}

type ModFileFragmentOption func(option *FileFragmentOption)

// FileFragment 使用joy4解封装一个媒体文件（mp4、flv、ts等），得到第一路H264和第一路AAC的样本
//
// 实现 base.Fragment ，文件在 Read 中读取
//
type FileFragment struct {
	UniqueKey string

	filename string
	option   FileFragmentOption

	loaded bool
	frag   *base.SliceFragment
	stat   FileFragmentStat
}

type FileFragmentStat struct {
	VideoSampleNum int
	AudioSampleNum int
	KeyframeNum    int
	SkipPacketNum  int // 不是所选音视频流的packet
	Duration       time.Duration
}

var _ base.Fragment = &FileFragment{}

func NewFileFragment(filename string, modOptions ...ModFileFragmentOption) *FileFragment {
	option := defaultFileFragmentOption
	for _, fn := range modOptions {
		fn(&option)
	}
	uk := base.GenUkFileFragment()
	Log.Debugf("[%s] lifecycle new file fragment. filename=%s, option=%+v", uk, filename, option)
	return &FileFragment{
		UniqueKey: uk,
		filename:  filename,
		option:    option,
	}
}

// Read 读取并解封装整个文件，重复调用直接返回
func (f *FileFragment) Read(ctx context.Context) (err error) {
	if f.loaded {
		return nil
	}

	demuxer, err := avutil.Open(f.filename)
	if err != nil {
		return errors.Wrap(err, "open input file failed")
	}
	defer demuxer.Close()

	streams, err := demuxer.Streams()
	if err != nil {
		return errors.Wrap(err, "read streams failed")
	}

	frag, selector, err := newFragmentByStreams(streams)
	if err != nil {
		return fmt.Errorf("%w. file=%s", err, f.filename)
	}

	var stat FileFragmentStat
	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		var pkt av.Packet
		if pkt, err = demuxer.ReadPacket(); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "read packet failed")
		}
		if f.option.MaxDuration > 0 && pkt.Time >= f.option.MaxDuration {
			break
		}

		switch int(pkt.Idx) {
		case selector.videoIndex:
			frag.Append(base.NewVideoSample(pkt.Data, pkt.Time.Seconds(), videoSampleTimescale, pkt.IsKeyFrame,
				int64(pkt.CompositionTime*videoSampleTimescale/time.Second)))
			stat.VideoSampleNum++
			if pkt.IsKeyFrame {
				stat.KeyframeNum++
			}
		case selector.audioIndex:
			frag.Append(base.NewAudioSample(pkt.Data, pkt.Time.Seconds(), selector.audioSampleRate))
			stat.AudioSampleNum++
		default:
			stat.SkipPacketNum++
			continue
		}
		if pkt.Time > stat.Duration {
			stat.Duration = pkt.Time
		}
	}

	Log.Infof("[%s] read file fragment done. file=%s, stat=%+v", f.UniqueKey, f.filename, stat)
	f.frag = frag
	f.stat = stat
	f.loaded = true
	return nil
}

func (f *FileFragment) Stat() (FileFragmentStat, error) {
	if !f.loaded {
		return f.stat, fmt.Errorf("%w. file=%s", base.ErrFragmentNotLoaded, f.filename)
	}
	return f.stat, nil
}

func (f *FileFragment) Timescale() uint32 {
	return FragmentTimescale
}

func (f *FileFragment) VideoExtraData() []byte {
	if f.frag == nil {
		return nil
	}
	return f.frag.VideoExtraData()
}

func (f *FileFragment) AudioExtraData() []byte {
	if f.frag == nil {
		return nil
	}
	return f.frag.AudioExtraData()
}

func (f *FileFragment) Samples() []base.Sample {
	if f.frag == nil {
		return nil
	}
	return f.frag.Samples()
}

// ---------------------------------------------------------------------------------------------------------------------

type avcDecoderConfigurationRecord interface {
	AVCDecoderConfRecordBytes() []byte
}

type mpeg4AudioConfig interface {
	MPEG4AudioConfigBytes() []byte
}

type streamSelector struct {
	videoIndex      int
	audioIndex      int
	audioSampleRate uint32
}

func newFragmentByStreams(streams []av.CodecData) (*base.SliceFragment, streamSelector, error) {
	selector := streamSelector{
		videoIndex: -1,
		audioIndex: -1,
	}

	var videoExtraData, audioExtraData []byte
	for i, stream := range streams {
		switch stream.Type() {
		case av.H264:
			if selector.videoIndex != -1 {
				continue
			}
			if cd, ok := stream.(avcDecoderConfigurationRecord); ok {
				videoExtraData = cd.AVCDecoderConfRecordBytes()
				selector.videoIndex = i
			}
		case av.AAC:
			if selector.audioIndex != -1 {
				continue
			}
			if cd, ok := stream.(mpeg4AudioConfig); ok {
				audioExtraData = cd.MPEG4AudioConfigBytes()
				selector.audioIndex = i
				if acd, ok := stream.(av.AudioCodecData); ok {
					selector.audioSampleRate = uint32(acd.SampleRate())
				}
			}
		default:
			Log.Debugf("skip stream. index=%d, type=%s", i, stream.Type().String())
		}
	}

	if selector.videoIndex == -1 && selector.audioIndex == -1 {
		return nil, selector, base.ErrSourceNoStream
	}
	return base.NewSliceFragment(FragmentTimescale, videoExtraData, audioExtraData, nil), selector, nil
}
