// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"fmt"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tspack/pkg/base"
)

var NaluStartCode = []byte{0x0, 0x0, 0x0, 0x1}

// AudNalu access unit delimiter，primary_pic_type 由紧跟的1字节决定
var AudNalu = []byte{0x0, 0x0, 0x0, 0x1, 0x9}

var NaluTypeMapping = map[uint8]string{
	NaluTypeSlice:    "SLICE",
	NaluTypeIdrSlice: "IDR",
	NaluTypeSei:      "SEI",
	NaluTypeSps:      "SPS",
	NaluTypePps:      "PPS",
	NaluTypeAud:      "AUD",
}

const (
	NaluTypeSlice    uint8 = 1
	NaluTypeIdrSlice uint8 = 5
	NaluTypeSei      uint8 = 6
	NaluTypeSps      uint8 = 7
	NaluTypePps      uint8 = 8
	NaluTypeAud      uint8 = 9
)

const (
	// AvccLengthPrefixSize AVCC格式中nalu长度字段的大小
	AvccLengthPrefixSize = 4

	minAvccLength = 7
)

func CalcNaluType(nalu []byte) uint8 {
	return nalu[0] & 0x1f
}

func CalcNaluTypeReadable(nalu []byte) string {
	ret, ok := NaluTypeMapping[CalcNaluType(nalu)]
	if !ok {
		return "unknown"
	}
	return ret
}

// IterateNaluAnnexb 遍历Annexb格式的nalu流，start code可以是3字节或4字节
//
// @param handler: 参数nalu不包含start code。第一个start code之前的数据（比如被切分到多个PES的帧的后半部分）被忽略
//
func IterateNaluAnnexb(nals []byte, handler func(nalu []byte)) {
	start := -1
	emit := func(end int) {
		if start < 0 {
			return
		}
		// 4字节start code的第一个0
		if end > start && nals[end-1] == 0 {
			end--
		}
		if end > start {
			handler(nals[start:end])
		}
	}

	for i := 0; i+3 <= len(nals); {
		if nals[i] == 0 && nals[i+1] == 0 && nals[i+2] == 1 {
			emit(i)
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(nals) {
		handler(nals[start:])
	}
}

// DecoderConfig 从 avcC 中解析出的参数集，保持 avcC 中的顺序
type DecoderConfig struct {
	ConfigurationVersion uint8
	ProfileIndication    uint8
	ProfileCompatibility uint8
	LevelIndication      uint8
	LengthSizeMinusOne   uint8

	Sps [][]byte
	Pps [][]byte
}

// ParseAvcc
//
// @param avcc: AVCDecoderConfigurationRecord，比如mp4中avcC box的内容，或者flv/rtmp seq header去除头部5字节
//              函数调用结束后，内部不持有该内存块
//
func ParseAvcc(avcc []byte) (*DecoderConfig, error) {
	// H.264-AVC-ISO_IEC_14496-15.pdf
	// 5.2.4 Decoder configuration information
	if len(avcc) < minAvccLength {
		return nil, base.NewErrShortBuffer(minAvccLength, len(avcc), "avcc")
	}

	var dc DecoderConfig
	br := nazabits.NewBitReader(avcc)
	dc.ConfigurationVersion, _ = br.ReadBits8(8)
	dc.ProfileIndication, _ = br.ReadBits8(8)
	dc.ProfileCompatibility, _ = br.ReadBits8(8)
	dc.LevelIndication, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(6) // reserved = '111111'b
	dc.LengthSizeMinusOne, _ = br.ReadBits8(2)

	if dc.ConfigurationVersion != 1 {
		return nil, fmt.Errorf("%w. invalid avcc configuration version. version=%d", base.ErrAvc, dc.ConfigurationVersion)
	}

	_, _ = br.ReadBits8(3) // reserved = '111'b
	numOfSps, _ := br.ReadBits8(5)

	index := 6
	var err error
	if dc.Sps, index, err = readParameterSets(avcc, index, int(numOfSps), "sps"); err != nil {
		return nil, err
	}

	if index >= len(avcc) {
		return nil, base.NewErrShortBuffer(index+1, len(avcc), "avcc num of pps")
	}
	numOfPps := int(avcc[index])
	index++
	if dc.Pps, _, err = readParameterSets(avcc, index, numOfPps, "pps"); err != nil {
		return nil, err
	}
	return &dc, nil
}

func (dc *DecoderConfig) SpsLength() int {
	return sumLength(dc.Sps)
}

func (dc *DecoderConfig) PpsLength() int {
	return sumLength(dc.Pps)
}

// AnnexbConfig 所有sps以及pps，每个前面加上4字节start code
//
// @return 内存块为独立新申请
//
func (dc *DecoderConfig) AnnexbConfig() []byte {
	n := len(dc.Sps) + len(dc.Pps)
	out := make([]byte, dc.SpsLength()+dc.PpsLength()+len(NaluStartCode)*n)
	pos := 0
	for _, sets := range [][][]byte{dc.Sps, dc.Pps} {
		for _, set := range sets {
			pos += copy(out[pos:], NaluStartCode)
			pos += copy(out[pos:], set)
		}
	}
	return out
}

func readParameterSets(avcc []byte, index int, num int, name string) (sets [][]byte, next int, err error) {
	for i := 0; i < num; i++ {
		if index+2 > len(avcc) {
			return nil, index, base.NewErrShortBuffer(index+2, len(avcc), name+" length")
		}
		l := int(bele.BeUint16(avcc[index:]))
		index += 2
		if index+l > len(avcc) {
			return nil, index, base.NewErrShortBuffer(index+l, len(avcc), name)
		}
		set := make([]byte, l)
		copy(set, avcc[index:index+l])
		sets = append(sets, set)
		index += l
	}
	return sets, index, nil
}

func sumLength(sets [][]byte) (n int) {
	for _, s := range sets {
		n += len(s)
	}
	return
}
