// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/q191201771/tspack/pkg/mpegts"
)

var (
	goldenPatSection = []byte{
		0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00, 0x00, 0x01, 0xef, 0xff,
		0x36, 0x90, 0xe2, 0x3d,
	}
	goldenPmtSectionVideoOnly = []byte{
		0x02, 0xb0, 0x12, 0x00, 0x01, 0xc1, 0x00, 0x00, 0xe1, 0x02, 0xf0, 0x00,
		0x1b, 0xe1, 0x02, 0xf0, 0x00,
		0xa1, 0x4f, 0xad, 0xcc,
	}
	goldenPmtSection = []byte{
		0x02, 0xb0, 0x17, 0x00, 0x01, 0xc1, 0x00, 0x00, 0xe1, 0x02, 0xf0, 0x00,
		0x1b, 0xe1, 0x02, 0xf0, 0x00,
		0x0f, 0xe1, 0x03, 0xf0, 0x00,
		0x4e, 0x3f, 0xe8, 0xbc,
	}
)

func TestCalcCrc32(t *testing.T) {
	assert.Equal(t, uint32(0x0376E6E7), mpegts.CalcCrc32(0xFFFFFFFF, []byte("123456789")))
	assert.Equal(t, true, mpegts.VerifyCrc32(goldenPatSection))
	assert.Equal(t, true, mpegts.VerifyCrc32(goldenPmtSection))
	assert.Equal(t, false, mpegts.VerifyCrc32(goldenPmtSection[:len(goldenPmtSection)-1]))
}

func TestPackHeader(t *testing.T) {
	for _, hasAudio := range []bool{true, false} {
		header := mpegts.PackHeader(hasAudio)
		assert.Equal(t, 2*mpegts.PacketSize, len(header))

		pmtSection := goldenPmtSectionVideoOnly
		if hasAudio {
			pmtSection = goldenPmtSection
		}

		pat := header[:mpegts.PacketSize]
		assert.Equal(t, []byte{0x47, 0x40, 0x00, 0x10, 0x00}, pat[:5])
		assert.Equal(t, goldenPatSection, pat[5:5+len(goldenPatSection)])
		assert.Equal(t, bytes.Repeat([]byte{0xff}, mpegts.PacketSize-5-len(goldenPatSection)), pat[5+len(goldenPatSection):])

		pmt := header[mpegts.PacketSize:]
		assert.Equal(t, []byte{0x47, 0x4f, 0xff, 0x10, 0x00}, pmt[:5])
		assert.Equal(t, pmtSection, pmt[5:5+len(pmtSection)])
		assert.Equal(t, bytes.Repeat([]byte{0xff}, mpegts.PacketSize-5-len(pmtSection)), pmt[5+len(pmtSection):])
	}

	assert.Equal(t, mpegts.FixedFragmentHeader, mpegts.PackHeader(true))
	assert.Equal(t, mpegts.FixedFragmentHeaderVideoOnly, mpegts.PackHeader(false))
	assert.Equal(t, uint16(5), mpegts.PmtSectionLength(true)-mpegts.PmtSectionLength(false))
	assert.Equal(t, uint16(13), mpegts.PatSectionLength())
}

func TestParseHeader(t *testing.T) {
	packets, err := mpegts.SplitTs(mpegts.FixedFragmentHeader)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(packets))

	p, err := mpegts.ParseTsPacket(packets[0])
	assert.Equal(t, nil, err)
	assert.Equal(t, mpegts.PidPat, p.Header.Pid)
	assert.Equal(t, uint8(1), p.Header.PayloadUnitStart)
	pat, err := mpegts.ParsePat(p.Payload[1:])
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(pat.Programs))
	assert.Equal(t, uint16(1), pat.Programs[0].ProgramNumber)
	assert.Equal(t, true, pat.SearchPid(mpegts.PidPmt))
	assert.Equal(t, uint32(0x3690e23d), pat.Crc32)

	p, err = mpegts.ParseTsPacket(packets[1])
	assert.Equal(t, nil, err)
	assert.Equal(t, mpegts.PidPmt, p.Header.Pid)
	pmt, err := mpegts.ParsePmt(p.Payload[1:])
	assert.Equal(t, nil, err)
	assert.Equal(t, mpegts.PidVideo, pmt.PcrPid)
	assert.Equal(t, 2, len(pmt.ProgramElements))
	assert.Equal(t, mpegts.StreamTypeAvc, pmt.SearchPid(mpegts.PidVideo).StreamType)
	assert.Equal(t, mpegts.StreamTypeAac, pmt.SearchPid(mpegts.PidAudio).StreamType)

	// 篡改一个字节，CRC校验失败
	broken := append([]byte{}, goldenPmtSection...)
	broken[13] = 0xe0
	_, err = mpegts.ParsePmt(broken)
	assert.Equal(t, true, errors.Is(err, base.ErrMpegts))
}

func TestPackTime(t *testing.T) {
	cases := []struct {
		t        int64
		expected []byte
	}{
		{0, []byte{0x21, 0x00, 0x01, 0x00, 0x01}},
		{90000, []byte{0x21, 0x00, 0x05, 0xbf, 0x21}},
		{123456789, []byte{0x21, 0x1d, 0x6f, 0x9a, 0x2b}},
		{0x7FFFFFFF, []byte{0x23, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, c := range cases {
		out := make([]byte, 5)
		mpegts.PackTime(out, c.t)
		assert.Equal(t, c.expected, out)
		assert.Equal(t, c.t, mpegts.ReadTime(out))
	}
}

func TestPackPcr(t *testing.T) {
	cases := []struct {
		pcr      int64
		expected []byte
	}{
		{0, []byte{0x00, 0x00, 0x00, 0x00, 0x7e, 0x00}},
		{90000, []byte{0x00, 0x00, 0xaf, 0xc8, 0x7e, 0x00}},
		{123456789, []byte{0x03, 0xad, 0xe6, 0x8a, 0xfe, 0x00}},
		{0x7FFFFFFF, []byte{0x3f, 0xff, 0xff, 0xff, 0xfe, 0x00}},
	}
	for _, c := range cases {
		out := make([]byte, 6)
		mpegts.PackPcr(out, c.pcr)
		assert.Equal(t, c.expected, out)
		assert.Equal(t, c.pcr, mpegts.ReadPcr(out))
	}
}

func TestClock90k(t *testing.T) {
	assert.Equal(t, int64(0), mpegts.Clock90k(0, 1000))
	assert.Equal(t, int64(90000), mpegts.Clock90k(1, 1000))
	assert.Equal(t, int64(45000), mpegts.Clock90k(0.5, 1000))
	assert.Equal(t, int64(90), mpegts.Clock90k(1, 1))
	assert.Equal(t, int64(-22500), mpegts.Clock90k(-0.25, 1000))
	// 超出32位有符号整数后回绕
	assert.Equal(t, int64(-1594967296), mpegts.Clock90k(30000, 1000))

	assert.Equal(t, int64(3600), mpegts.CompositionClock90k(3600, 1000, 90000))
	assert.Equal(t, int64(7200), mpegts.CompositionClock90k(80, 1000, 1000))
	assert.Equal(t, int64(0), mpegts.CompositionClock90k(80, 1000, 0))
}

func TestPackVideoPes(t *testing.T) {
	chunk := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0x10}
	pes, err := mpegts.PackVideoPes(chunk, true, 93600, 90000, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, 19+len(chunk), len(pes))
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x13, 0x84, 0xc0, 0x0a}, pes[:9])
	assert.Equal(t, chunk, pes[19:])

	h, length, err := mpegts.ParsePes(pes)
	assert.Equal(t, nil, err)
	assert.Equal(t, 19, length)
	assert.Equal(t, mpegts.StreamIdVideo, h.StreamId)
	assert.Equal(t, uint16(13+len(chunk)), h.PacketLength)
	assert.Equal(t, true, h.DataAlignment)
	assert.Equal(t, uint8(3), h.PtsDtsFlag)
	assert.Equal(t, int64(93600), h.Pts)
	assert.Equal(t, int64(90000), h.Dts)

	pes, err = mpegts.PackVideoPes(chunk, false, 0, 0, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint8(0x80), pes[6])

	// 旧版本只保留PES_packet_length的低8位
	big := make([]byte, 1000)
	pes, err = mpegts.PackVideoPes(big, true, 0, 0, true)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x00, (13 + 1000) & 0xff}, pes[4:6])
	pes, err = mpegts.PackVideoPes(big, true, 0, 0, false)
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{0x03, 0xf5}, pes[4:6])

	_, err = mpegts.PackVideoPes(make([]byte, mpegts.MaxVideoPesPayload+1), true, 0, 0, false)
	assert.Equal(t, true, errors.Is(err, base.ErrPesTooLarge))
}

func TestPackAudioPes(t *testing.T) {
	payload := []byte{0xff, 0xf1, 0x50, 0x80, 0x01, 0x25, 0xfc, 0x01, 0x02}
	pes, err := mpegts.PackAudioPes(payload, 4500)
	assert.Equal(t, nil, err)
	assert.Equal(t, 14+len(payload), len(pes))
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0xc0, 0x00, byte(8 + len(payload)), 0x80, 0x80, 0x05}, pes[:9])
	assert.Equal(t, payload, pes[14:])

	h, length, err := mpegts.ParsePes(pes)
	assert.Equal(t, nil, err)
	assert.Equal(t, 14, length)
	assert.Equal(t, mpegts.StreamIdAudio, h.StreamId)
	assert.Equal(t, uint8(2), h.PtsDtsFlag)
	assert.Equal(t, int64(4500), h.Pts)
	assert.Equal(t, int64(4500), h.Dts)

	_, err = mpegts.PackAudioPes(make([]byte, 0xFFFF), 0)
	assert.Equal(t, true, errors.Is(err, base.ErrPesTooLarge))
}

func TestParsePes_Invalid(t *testing.T) {
	_, _, err := mpegts.ParsePes([]byte{0x00, 0x00, 0x01})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))
	_, _, err = mpegts.ParsePes([]byte{0x00, 0x00, 0x02, 0xe0, 0x00, 0x00, 0x80, 0x80, 0x00})
	assert.Equal(t, true, errors.Is(err, base.ErrMpegts))
	_, _, err = mpegts.ParsePes([]byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0x80, 0x05, 0x21})
	assert.Equal(t, true, errors.Is(err, base.ErrShortBuffer))
}

func TestSplitTs(t *testing.T) {
	_, err := mpegts.SplitTs(make([]byte, 100))
	assert.Equal(t, true, errors.Is(err, base.ErrMpegts))

	b := append([]byte{}, mpegts.FixedFragmentHeader...)
	b[mpegts.PacketSize] = 0x48
	_, err = mpegts.SplitTs(b)
	assert.Equal(t, true, errors.Is(err, base.ErrMpegts))

	packets, err := mpegts.SplitTs(nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(packets))
}
