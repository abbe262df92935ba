// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"context"
	"fmt"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/tspack/pkg/aac"
	"github.com/q191201771/tspack/pkg/avc"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/q191201771/tspack/pkg/mpegts"
)

type FragmentRemuxerOption struct {
	// TruncateVideoPesLength
	//
	// 视频PES_packet_length只保留低8位。
	// 一些旧的播放端是按这种错误的长度做过兼容的，需要与旧版本输出逐字节一致时打开。
	//
	TruncateVideoPesLength bool

	// DumpPesNum debug级别日志下，每次打包最多hex dump多少个PES头。trace级别下全部dump
	DumpPesNum int
}

var defaultFragmentRemuxerOption = FragmentRemuxerOption{
	TruncateVideoPesLength: false,
	DumpPesNum:             4,
}

type ModFragmentRemuxerOption func(option *FragmentRemuxerOption)

// FragmentRemuxer 输入一个fragment的音视频样本，输出一个完整的TS segment
//
// FragmentRemuxer自身只持有配置，每次 Packetize 的打包状态（continuity_counter、PCR等）都是独立的，
// 所以可以顺序复用。同一个对象不要并发调用 Packetize 。
//
type FragmentRemuxer struct {
	UniqueKey string

	option FragmentRemuxerOption
}

func NewFragmentRemuxer(modOptions ...ModFragmentRemuxerOption) *FragmentRemuxer {
	option := defaultFragmentRemuxerOption
	for _, fn := range modOptions {
		fn(&option)
	}

	uk := base.GenUkFragmentRemuxer()
	Log.Debugf("[%s] lifecycle new fragment remuxer. option=%+v", uk, option)
	return &FragmentRemuxer{
		UniqueKey: uk,
		option:    option,
	}
}

// Packetize
//
// 先等待 frag.Read 完成（唯一可能阻塞的地方，ctx用于取消），然后同步完成全部打包。
// 任何错误都导致整个segment打包失败，不会返回部分数据。
//
// @return 内存块为独立新申请，长度为 mpegts.PacketSize 的整数倍，前两个TS包为PAT和PMT
//
func (r *FragmentRemuxer) Packetize(ctx context.Context, frag base.Fragment) ([]byte, error) {
	if err := frag.Read(ctx); err != nil {
		return nil, fmt.Errorf("read fragment failed. err=%w", err)
	}

	p, err := newFragmentPacketizer(r, frag)
	if err != nil {
		return nil, err
	}
	return p.run()
}

// ---------------------------------------------------------------------------------------------------------------------

// fragmentPacketizer 一次 Packetize 调用的全部状态
type fragmentPacketizer struct {
	uk     string
	option FragmentRemuxerOption

	fragTimescale uint32
	samples       []base.Sample

	videoConfig []byte // Annexb格式的sps pps，没有video extra data时为nil
	ascCtx      *aac.AscContext

	segment *mpegts.Segment

	// 攒够 mpegts.AudioFramesPerPes 个音频帧再打包成一个PES，使用第一帧的时间戳
	audioFrames    []byte // ADTS格式
	audioFrameNum  int
	audioFirstTime int64

	noVideoConfigWarned bool
	dump                base.LogDump
}

func newFragmentPacketizer(r *FragmentRemuxer, frag base.Fragment) (*fragmentPacketizer, error) {
	p := &fragmentPacketizer{
		uk:            r.UniqueKey,
		option:        r.option,
		fragTimescale: frag.Timescale(),
		samples:       frag.Samples(),
		dump:          base.NewLogDump(Log, r.option.DumpPesNum),
	}

	if ve := frag.VideoExtraData(); len(ve) > 0 {
		dc, err := avc.ParseAvcc(ve)
		if err != nil {
			return nil, fmt.Errorf("parse video extra data failed. err=%w", err)
		}
		p.videoConfig = dc.AnnexbConfig()
	}

	hasAudio := false
	if ae := frag.AudioExtraData(); len(ae) > 0 {
		ascCtx, err := aac.NewAscContext(ae)
		if err != nil {
			return nil, fmt.Errorf("parse audio extra data failed. err=%w", err)
		}
		p.ascCtx = ascCtx
		hasAudio = true
	}

	p.segment = mpegts.NewSegment(hasAudio, estimateSegmentSize(p.samples, p.videoConfig))
	return p, nil
}

func (p *fragmentPacketizer) run() ([]byte, error) {
	var videoNum, audioNum int
	for i := range p.samples {
		sample := &p.samples[i]
		t := mpegts.Clock90k(sample.Timestamp, p.fragTimescale)

		var err error
		switch sample.Kind {
		case base.SampleKindVideo:
			videoNum++
			err = p.feedVideo(sample, t)
		case base.SampleKindAudio:
			audioNum++
			err = p.feedAudio(sample, t)
		default:
			err = fmt.Errorf("%w. index=%d, kind=%d", base.ErrUnknownSampleKind, i, sample.Kind)
		}
		if err != nil {
			Log.Errorf("[%s] packetize sample failed. index=%d, sample=%s, err=%+v", p.uk, i, sample.DebugString(), err)
			return nil, err
		}
	}

	if err := p.flushAudio(); err != nil {
		return nil, err
	}

	out := p.segment.Bytes()
	stat := p.segment.Stat()
	Log.Debugf("[%s] packetize done. samples=%d(video=%d, audio=%d), pes=(video=%d, audio=%d), ts packets=(video=%d, audio=%d), size=%d",
		p.uk, len(p.samples), videoNum, audioNum, stat.VideoPesNum, stat.AudioPesNum, stat.VideoPacketNum, stat.AudioPacketNum, len(out))
	return out, nil
}

func (p *fragmentPacketizer) feedVideo(sample *base.Sample, dts int64) error {
	p.segment.SetVideoTime(dts)

	cts := mpegts.CompositionClock90k(sample.Video.CompositionOffset, p.fragTimescale, sample.Timescale)
	pts := int64(int32(dts + cts))

	key := sample.Video.Keyframe
	if key && p.videoConfig == nil && !p.noVideoConfigWarned {
		Log.Warnf("[%s] keyframe without video extra data, sps pps not injected.", p.uk)
		p.noVideoConfigWarned = true
	}

	au, err := PackAccessUnit(sample.Buffer, key, p.videoConfig)
	if err != nil {
		return err
	}

	// 过大的帧切分成多个PES，每个PES都带PTS DTS，只有第一个设置data_alignment_indicator
	for pos := 0; pos < len(au); {
		n := len(au) - pos
		if n > mpegts.MaxVideoPesPayload {
			n = mpegts.MaxVideoPesPayload
		}
		pes, err := mpegts.PackVideoPes(au[pos:pos+n], pos == 0, pts, dts, p.option.TruncateVideoPesLength)
		if err != nil {
			return err
		}
		p.dumpPes(pes, mpegts.StreamKindVideo)
		if err = p.segment.WriteVideoPes(pes, key); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

func (p *fragmentPacketizer) feedAudio(sample *base.Sample, t int64) error {
	if p.ascCtx == nil {
		return fmt.Errorf("%w. ts=%v", base.ErrAudioConfigMissing, sample.Timestamp)
	}

	p.segment.SetAudioTime(t)

	header, err := p.ascCtx.PackAdtsHeader(len(sample.Buffer))
	if err != nil {
		return err
	}
	if p.audioFrameNum == 0 {
		p.audioFirstTime = t
	}
	p.audioFrames = append(p.audioFrames, header...)
	p.audioFrames = append(p.audioFrames, sample.Buffer...)
	p.audioFrameNum++

	if p.audioFrameNum == mpegts.AudioFramesPerPes {
		return p.flushAudio()
	}
	return nil
}

func (p *fragmentPacketizer) flushAudio() error {
	if p.audioFrameNum == 0 {
		return nil
	}

	pes, err := mpegts.PackAudioPes(p.audioFrames, p.audioFirstTime)
	if err != nil {
		return err
	}
	p.audioFrames = p.audioFrames[0:0]
	p.audioFrameNum = 0

	p.dumpPes(pes, mpegts.StreamKindAudio)
	return p.segment.WriteAudioPes(pes)
}

func (p *fragmentPacketizer) dumpPes(pes []byte, kind mpegts.StreamKind) {
	if p.dump.ShouldDump() {
		p.dump.Outf("[%s] %s pes. len=%d\n%s", p.uk, kind.ReadableString(), len(pes), base.HexPrefix(pes, 32))
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// PackAccessUnit 将一个AVCC格式的视频样本转换成TS中的Annexb格式
//
// 输出格式: aud(00 00 00 01 09) + flag(关键帧0x10，否则0x30) + [关键帧才有: config] + 00 00 00 01 + buf[4:]
//
// 如果buf开头4字节的长度字段小于实际数据长度，说明样本中还有后续nalu，
// 在该长度的结束位置写入start code。修改发生在拷贝上，不修改buf。
//
// @param buf:    AVCC格式，至少4字节
// @param config: Annexb格式的sps pps，可以为nil
//
// @return 内存块为独立新申请
//
func PackAccessUnit(buf []byte, key bool, config []byte) ([]byte, error) {
	if len(buf) < avc.AvccLengthPrefixSize {
		return nil, fmt.Errorf("%w. need=%d, actual=%d", base.ErrSampleTooShort, avc.AvccLengthPrefixSize, len(buf))
	}

	nalus := buf
	if end := int64(int32(bele.BeUint32(buf))) + avc.AvccLengthPrefixSize; end >= 0 && end < int64(len(buf)) {
		nalus = make([]byte, len(buf))
		copy(nalus, buf)
		copy(nalus[end:], avc.NaluStartCode)
	}

	if !key {
		config = nil
	}

	out := make([]byte, 0, len(avc.AudNalu)+1+len(config)+len(nalus))
	out = append(out, avc.AudNalu...)
	if key {
		out = append(out, 0x10)
	} else {
		out = append(out, 0x30)
	}
	out = append(out, config...)
	out = append(out, avc.NaluStartCode...)
	out = append(out, nalus[avc.AvccLengthPrefixSize:]...)
	return out, nil
}

// estimateSegmentSize 按和打包相同的规则（AU构造、大帧切分、音频攒帧）计算TS包个数
//
// 结果即输出大小。用于一次性预分配segment内存，避免逐包扩容
//
func estimateSegmentSize(samples []base.Sample, videoConfig []byte) int {
	packetNum := 2 // PAT PMT

	audioPayload := 0
	audioFrameNum := 0
	flushAudio := func() {
		if audioFrameNum > 0 {
			packetNum += mpegts.CalcPesPacketNum(mpegts.AudioPesHeaderLength+audioPayload, false)
		}
		audioPayload = 0
		audioFrameNum = 0
	}

	for i := range samples {
		sample := &samples[i]
		switch sample.Kind {
		case base.SampleKindVideo:
			if len(sample.Buffer) < avc.AvccLengthPrefixSize {
				continue
			}
			auLength := len(avc.AudNalu) + 1 + len(avc.NaluStartCode) + len(sample.Buffer) - avc.AvccLengthPrefixSize
			if sample.Video.Keyframe {
				auLength += len(videoConfig)
			}
			for auLength > 0 {
				n := auLength
				if n > mpegts.MaxVideoPesPayload {
					n = mpegts.MaxVideoPesPayload
				}
				packetNum += mpegts.CalcPesPacketNum(mpegts.VideoPesHeaderLength+n, true)
				auLength -= n
			}
		case base.SampleKindAudio:
			audioPayload += aac.AdtsHeaderLength + len(sample.Buffer)
			audioFrameNum++
			if audioFrameNum == mpegts.AudioFramesPerPes {
				flushAudio()
			}
		}
	}
	flushAudio()
	return packetNum * mpegts.PacketSize
}
