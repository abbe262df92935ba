// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/q191201771/tspack/pkg/mpegts"
	"github.com/q191201771/tspack/pkg/remux"
	"github.com/q191201771/tspack/pkg/tsprobe"
)

var (
	goldenAvcc = []byte{
		0x01, 0x64, 0x00, 0x1f, 0xff, 0xe1, 0x00, 0x04, 0x67, 0x64, 0x00, 0x1f, 0x01, 0x00, 0x03, 0x68, 0xee, 0x3c,
	}
	goldenAnnexbConfig = []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x64, 0x00, 0x1f,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xee, 0x3c,
	}
	goldenAsc = []byte{0x12, 0x10} // AAC LC, 44100, stereo
)

// avccSample 4字节长度字段加上nalu
func avccSample(nalu []byte) []byte {
	out := make([]byte, 4+len(nalu))
	bele.BePutUint32(out, uint32(len(nalu)))
	copy(out[4:], nalu)
	return out
}

// collectPes 按PID重组PES，同时检查每个TS包的基本约束以及continuity_counter
func collectPes(t *testing.T, out []byte) map[uint16][][]byte {
	packets, err := mpegts.SplitTs(out)
	assert.Equal(t, nil, err)

	ret := make(map[uint16][][]byte)
	nextCc := make(map[uint16]uint8)
	for _, packet := range packets {
		p, err := mpegts.ParseTsPacket(packet)
		assert.Equal(t, nil, err)

		pid := p.Header.Pid
		assert.Equal(t, nextCc[pid], p.Header.Cc)
		nextCc[pid] = (p.Header.Cc + 1) & 0x0F

		if pid == mpegts.PidPat || pid == mpegts.PidPmt {
			continue
		}
		if p.Header.PayloadUnitStart == 1 {
			ret[pid] = append(ret[pid], nil)
		}
		n := len(ret[pid]) - 1
		ret[pid][n] = append(ret[pid][n], p.Payload...)
	}
	return ret
}

func pcrList(t *testing.T, out []byte) (ret []int64) {
	packets, err := mpegts.SplitTs(out)
	assert.Equal(t, nil, err)
	for _, packet := range packets {
		p, err := mpegts.ParseTsPacket(packet)
		assert.Equal(t, nil, err)
		if p.Adaptation != nil && p.Adaptation.HasPcr {
			ret = append(ret, p.Adaptation.Pcr)
		}
	}
	return
}

// countAdtsFrames 遍历PES负载中的ADTS帧
func countAdtsFrames(t *testing.T, payload []byte) int {
	n := 0
	for len(payload) > 0 {
		assert.Equal(t, true, len(payload) >= 7)
		assert.Equal(t, []byte{0xff, 0xf1}, payload[:2])
		frameLength := int(payload[3]&0x03)<<11 | int(payload[4])<<3 | int(payload[5])>>5
		payload = payload[frameLength:]
		n++
	}
	return n
}

func packetize(t *testing.T, frag base.Fragment, modOptions ...remux.ModFragmentRemuxerOption) []byte {
	out, err := remux.NewFragmentRemuxer(modOptions...).Packetize(context.Background(), frag)
	assert.Equal(t, nil, err)
	return out
}

// ---------------------------------------------------------------------------------------------------------------------

func TestPacketize_SingleKeyframe(t *testing.T) {
	frag := base.NewSliceFragment(1000, nil, nil, []base.Sample{
		base.NewVideoSample(avccSample([]byte{0x65, 1, 2, 3, 4, 5}), 0, 90000, true, 0),
	})
	out := packetize(t, frag)

	assert.Equal(t, 0, len(out)%mpegts.PacketSize)
	assert.Equal(t, mpegts.FixedFragmentHeaderVideoOnly, out[:2*mpegts.PacketSize])

	pes := collectPes(t, out)
	assert.Equal(t, 0, len(pes[mpegts.PidAudio]))
	assert.Equal(t, 1, len(pes[mpegts.PidVideo]))

	h, hl, err := mpegts.ParsePes(pes[mpegts.PidVideo][0])
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(0), h.Pts)
	assert.Equal(t, int64(0), h.Dts)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x10, 0x00, 0x00, 0x00, 0x01, 0x65, 1, 2, 3, 4, 5}, pes[mpegts.PidVideo][0][hl:])

	p, err := mpegts.ParseTsPacket(out[2*mpegts.PacketSize : 3*mpegts.PacketSize])
	assert.Equal(t, nil, err)
	assert.Equal(t, true, p.Adaptation.HasPcr)
	assert.Equal(t, true, p.Adaptation.RandomAccess)
	assert.Equal(t, int64(0), p.Adaptation.Pcr)
}

func TestPacketize_AudioBatch(t *testing.T) {
	var samples []base.Sample
	for i := 0; i < 7; i++ {
		samples = append(samples, base.NewAudioSample(bytes.Repeat([]byte{byte(i)}, 100+i), float64(i)*0.02, 44100))
	}
	frag := base.NewSliceFragment(1000, nil, goldenAsc, samples)
	out := packetize(t, frag)

	assert.Equal(t, mpegts.FixedFragmentHeader, out[:2*mpegts.PacketSize])

	pes := collectPes(t, out)
	assert.Equal(t, 2, len(pes[mpegts.PidAudio]))
	assert.Equal(t, 0, len(pes[mpegts.PidVideo]))

	expectedFrames := []int{5, 2}
	expectedPts := []int64{0, 5 * 1800}
	for i, b := range pes[mpegts.PidAudio] {
		assert.Equal(t, mpegts.StreamIdAudio, b[3])
		h, hl, err := mpegts.ParsePes(b)
		assert.Equal(t, nil, err)
		assert.Equal(t, expectedPts[i], h.Pts)
		assert.Equal(t, uint16(len(b)-6), h.PacketLength)
		assert.Equal(t, expectedFrames[i], countAdtsFrames(t, b[hl:]))
	}

	// 第一帧的ADTS头
	_, hl, _ := mpegts.ParsePes(pes[mpegts.PidAudio][0])
	assert.Equal(t, []byte{0xff, 0xf1, 0x50, 0x80, 0x0d, 0x65, 0xfc}, pes[mpegts.PidAudio][0][hl:hl+7])
}

func TestPacketize_SpsPpsOnlyForKeyframe(t *testing.T) {
	frag := base.NewSliceFragment(1000, goldenAvcc, nil, []base.Sample{
		base.NewVideoSample(avccSample([]byte{0x65, 0xaa}), 0, 90000, true, 0),
		base.NewVideoSample(avccSample([]byte{0x41, 0xbb}), 0.04, 90000, false, 3600),
		base.NewVideoSample(avccSample([]byte{0x65, 0xcc}), 0.08, 90000, true, 0),
	})
	out := packetize(t, frag)

	pes := collectPes(t, out)[mpegts.PidVideo]
	assert.Equal(t, 3, len(pes))

	var expected [][]byte
	for i, tail := range [][]byte{{0x65, 0xaa}, {0x41, 0xbb}, {0x65, 0xcc}} {
		key := i != 1
		b := []byte{0x00, 0x00, 0x00, 0x01, 0x09}
		if key {
			b = append(b, 0x10)
			b = append(b, goldenAnnexbConfig...)
		} else {
			b = append(b, 0x30)
		}
		b = append(b, 0x00, 0x00, 0x00, 0x01)
		b = append(b, tail...)
		expected = append(expected, b)
	}
	for i := range pes {
		h, hl, err := mpegts.ParsePes(pes[i])
		assert.Equal(t, nil, err)
		assert.Equal(t, expected[i], pes[i][hl:])
		assert.Equal(t, int64(i*3600), h.Dts)
	}

	// 非关键帧的composition offset换算到90kHz
	h, _, _ := mpegts.ParsePes(pes[1])
	assert.Equal(t, int64(3600+3600), h.Pts)
}

func TestPacketize_LargeFrame(t *testing.T) {
	nalu := make([]byte, 70000)
	nalu[0] = 0x65
	frag := base.NewSliceFragment(1000, nil, nil, []base.Sample{
		base.NewVideoSample(avccSample(nalu), 1, 90000, true, 0),
	})
	out := packetize(t, frag)

	pes := collectPes(t, out)[mpegts.PidVideo]
	auLength := 5 + 1 + 4 + len(nalu)
	assert.Equal(t, 3, len(pes))

	total := 0
	for i, b := range pes {
		h, hl, err := mpegts.ParsePes(b)
		assert.Equal(t, nil, err)
		assert.Equal(t, i == 0, h.DataAlignment)
		assert.Equal(t, int64(90000), h.Pts)
		assert.Equal(t, int64(90000), h.Dts)
		assert.Equal(t, uint16(13+len(b)-hl), h.PacketLength)
		if i < 2 {
			assert.Equal(t, mpegts.MaxVideoPesPayload, len(b)-hl)
		}
		total += len(b) - hl
	}
	assert.Equal(t, auLength, total)

	// 每个PES的首个TS包都带PCR以及random_access_indicator
	assert.Equal(t, []int64{90000, 90000, 90000}, pcrList(t, out))

	report, err := tsprobe.ProbeBytes(context.Background(), out)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, report.Stream(mpegts.PidVideo).PesNum)
	assert.Equal(t, auLength, report.Stream(mpegts.PidVideo).PayloadBytes)
}

func TestPacketize_TruncateVideoPesLength(t *testing.T) {
	frag := base.NewSliceFragment(1000, nil, nil, []base.Sample{
		base.NewVideoSample(avccSample(make([]byte, 1000)), 0, 90000, false, 0),
	})

	pes := collectPes(t, packetize(t, frag))[mpegts.PidVideo][0]
	assert.Equal(t, []byte{0x03, 0xff}, pes[4:6]) // 13 + 5 + 1 + 4 + 1000

	pes = collectPes(t, packetize(t, frag, func(option *remux.FragmentRemuxerOption) {
		option.TruncateVideoPesLength = true
	}))[mpegts.PidVideo][0]
	assert.Equal(t, []byte{0x00, 0xff}, pes[4:6])
}

func TestPacketize_Reuse(t *testing.T) {
	frag := genFragment(rand.New(rand.NewSource(1)), 2)
	r := remux.NewFragmentRemuxer()
	out1, err := r.Packetize(context.Background(), frag)
	assert.Equal(t, nil, err)
	out2, err := r.Packetize(context.Background(), frag)
	assert.Equal(t, nil, err)
	assert.Equal(t, out1, out2)
}

func TestPacketize_Errors(t *testing.T) {
	r := remux.NewFragmentRemuxer()

	_, err := r.Packetize(context.Background(), base.NewSliceFragment(1000, nil, nil, []base.Sample{
		base.NewAudioSample([]byte{1, 2, 3}, 0, 44100),
	}))
	assert.Equal(t, true, errors.Is(err, base.ErrAudioConfigMissing))

	_, err = r.Packetize(context.Background(), base.NewSliceFragment(1000, nil, nil, []base.Sample{
		base.NewVideoSample([]byte{0, 0, 1}, 0, 90000, true, 0),
	}))
	assert.Equal(t, true, errors.Is(err, base.ErrSampleTooShort))

	_, err = r.Packetize(context.Background(), base.NewSliceFragment(1000, nil, nil, []base.Sample{
		{Kind: base.SampleKindUnknown, Buffer: []byte{0, 0, 0, 0}},
	}))
	assert.Equal(t, true, errors.Is(err, base.ErrUnknownSampleKind))

	_, err = r.Packetize(context.Background(), base.NewSliceFragment(1000, []byte{0x02, 0x64}, nil, nil))
	assert.IsNotNil(t, err)

	_, err = r.Packetize(context.Background(), base.NewSliceFragment(1000, nil, []byte{0x12}, nil))
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.Packetize(ctx, base.NewSliceFragment(1000, nil, nil, nil))
	assert.Equal(t, true, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, len(out))
}

// ---------------------------------------------------------------------------------------------------------------------

// genFragment 生成音视频交织的fragment，视频25fps，音频约43fps，每2秒一个关键帧
func genFragment(rnd *rand.Rand, seconds int) *base.SliceFragment {
	frag := base.NewSliceFragment(1000, goldenAvcc, goldenAsc, nil)

	videoDuration := 0.04
	audioDuration := 1024.0 / 44100
	var vt, at float64
	vi := 0
	for vt < float64(seconds) || at < float64(seconds) {
		if vt <= at {
			nalu := make([]byte, 1+rnd.Intn(20000))
			key := vi%50 == 0
			if key {
				nalu[0] = 0x65
			} else {
				nalu[0] = 0x41
			}
			frag.Append(base.NewVideoSample(avccSample(nalu), vt, 90000, key, int64(rnd.Intn(3))*3600))
			vt += videoDuration
			vi++
		} else {
			frag.Append(base.NewAudioSample(make([]byte, 50+rnd.Intn(400)), at, 44100))
			at += audioDuration
		}
	}
	return frag
}

func TestPacketize_Properties(t *testing.T) {
	rnd := rand.New(rand.NewSource(20241018))
	for round := 0; round < 5; round++ {
		frag := genFragment(rnd, 1+round)
		out := packetize(t, frag)

		assert.Equal(t, 0, len(out)%mpegts.PacketSize)
		for i := 0; i < len(out); i += mpegts.PacketSize {
			assert.Equal(t, uint8(0x47), out[i])
		}
		assert.Equal(t, mpegts.FixedFragmentHeader, out[:2*mpegts.PacketSize])

		// continuity_counter 在 collectPes 中检查
		pes := collectPes(t, out)

		var videoNum, audioNum, keyNum int
		for _, s := range frag.Samples() {
			switch s.Kind {
			case base.SampleKindVideo:
				videoNum++
				if s.Video.Keyframe {
					keyNum++
				}
			case base.SampleKindAudio:
				audioNum++
			}
		}

		audioPes := pes[mpegts.PidAudio]
		assert.Equal(t, (audioNum+mpegts.AudioFramesPerPes-1)/mpegts.AudioFramesPerPes, len(audioPes))
		frames := 0
		for i, b := range audioPes {
			_, hl, err := mpegts.ParsePes(b)
			assert.Equal(t, nil, err)
			n := countAdtsFrames(t, b[hl:])
			if i != len(audioPes)-1 {
				assert.Equal(t, mpegts.AudioFramesPerPes, n)
			}
			frames += n
		}
		assert.Equal(t, audioNum, frames)

		configNum := 0
		for _, b := range pes[mpegts.PidVideo] {
			if bytes.Contains(b, goldenAnnexbConfig) {
				configNum++
			}
		}
		assert.Equal(t, keyNum, configNum)

		pcrs := pcrList(t, out)
		assert.Equal(t, len(pes[mpegts.PidVideo]), len(pcrs))
		for i := 1; i < len(pcrs); i++ {
			assert.Equal(t, true, pcrs[i] >= pcrs[i-1])
		}

		// 使用go-astits交叉校验
		report, err := tsprobe.ProbeBytes(context.Background(), out)
		assert.Equal(t, nil, err)
		assert.Equal(t, len(out)/mpegts.PacketSize, report.PacketNum)
		assert.Equal(t, mpegts.PidVideo, report.PcrPid)
		assert.Equal(t, len(pes[mpegts.PidVideo]), report.Stream(mpegts.PidVideo).PesNum)
		assert.Equal(t, len(audioPes), report.Stream(mpegts.PidAudio).PesNum)
	}
}

func TestPackAccessUnit(t *testing.T) {
	// 长度字段为3，但是样本中还有后续nalu
	buf := []byte{0x00, 0x00, 0x00, 0x03, 0x06, 0x05, 0x01, 0xaa, 0xbb, 0xcc, 0xdd, 0x41, 0x9a}
	orig := append([]byte{}, buf...)

	out, err := remux.PackAccessUnit(buf, false, goldenAnnexbConfig)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x01, 0x09, 0x30,
		0x00, 0x00, 0x00, 0x01, 0x06, 0x05, 0x01,
		0x00, 0x00, 0x00, 0x01, 0x41, 0x9a,
	}, out)
	assert.Equal(t, orig, buf)

	// 长度字段与样本一致，不修复
	out, err = remux.PackAccessUnit(avccSample([]byte{0x65, 0x88}), true, goldenAnnexbConfig)
	assert.Equal(t, nil, err)
	expected := append([]byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x10}, goldenAnnexbConfig...)
	expected = append(expected, 0x00, 0x00, 0x00, 0x01, 0x65, 0x88)
	assert.Equal(t, expected, out)

	// 关键帧但是没有sps pps
	out, err = remux.PackAccessUnit(avccSample([]byte{0x65}), true, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x10, 0x00, 0x00, 0x00, 0x01, 0x65}, out)

	// 长度字段结束位置距离末尾不足4字节，start code只写入能写下的部分
	out, err = remux.PackAccessUnit([]byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xee, 0xee}, false, nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x30, 0x00, 0x00, 0x00, 0x01, 0x65, 0x00, 0x00}, out)

	_, err = remux.PackAccessUnit([]byte{0x00}, true, nil)
	assert.Equal(t, true, errors.Is(err, base.ErrSampleTooShort))
}
