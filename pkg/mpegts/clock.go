// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import "math"

// Clock90k 样本时间转换为90kHz时钟
//
// 计算结果向0取整，并按32位有符号整数回绕
//
// @param timestamp:         样本时间，乘以 fragmentTimescale 后单位为毫秒
// @param fragmentTimescale: Fragment的时间基
//
func Clock90k(timestamp float64, fragmentTimescale uint32) int64 {
	return truncInt32(90 * timestamp * float64(fragmentTimescale))
}

// CompositionClock90k 视频帧 composition time offset 转换为90kHz时钟
//
// @param offset: 单位为 sampleTimescale
//
func CompositionClock90k(offset int64, fragmentTimescale uint32, sampleTimescale uint32) int64 {
	if sampleTimescale == 0 {
		return 0
	}
	return truncInt32(90 * float64(offset) * float64(fragmentTimescale) / float64(sampleTimescale))
}

func truncInt32(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(v), 1<<32)
	return int64(int32(uint32(int64(m))))
}

// PackTime 写入5字节的PTS或DTS
//
// 第一个字节的前缀固定为0x2，PTS和DTS都使用这个函数
//
// @param out: 至少5字节
//
func PackTime(out []byte, t int64) {
	out[0] = uint8((((t >> 30) & 0x07) << 1) | 0x21)
	out[1] = uint8(t >> 22)
	out[2] = uint8((((t >> 15) & 0x7F) << 1) | 1)
	out[3] = uint8(t >> 7)
	out[4] = uint8(((t & 0x7F) << 1) | 1)
}

// ReadTime 读取 PackTime 写入的5字节时间
func ReadTime(b []byte) int64 {
	var t int64
	t |= int64((b[0]>>1)&0x07) << 30
	t |= int64(b[1]) << 22
	t |= int64(b[2]>>1) << 15
	t |= int64(b[3]) << 7
	t |= int64(b[4] >> 1)
	return t
}

// PackPcr 写入6字节的PCR，program_clock_reference_extension固定为0
//
// @param out: 至少6字节
//
func PackPcr(out []byte, pcr int64) {
	out[0] = uint8(pcr >> 25)
	out[1] = uint8(pcr >> 17)
	out[2] = uint8(pcr >> 9)
	out[3] = uint8(pcr >> 1)
	out[4] = uint8(pcr<<7) | 0x7e
	out[5] = 0
}

// ReadPcr 读取6字节PCR中的program_clock_reference_base
func ReadPcr(b []byte) int64 {
	return int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
}
