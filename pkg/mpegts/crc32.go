// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// CRC-32/MPEG-2: poly 0x04C11DB7, init 0xFFFFFFFF, 不反转，结果不异或
// 注意，hash/crc32只支持反转的形式，所以不能直接使用
const crc32Poly = 0x04C11DB7

var crc32Table = makeCrc32Table()

func makeCrc32Table() (table [256]uint32) {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = (c << 1) ^ crc32Poly
			} else {
				c <<= 1
			}
		}
		table[i] = c
	}
	return
}

// CalcCrc32
//
// @param crc: 初始值，PSI section使用0xFFFFFFFF
//
func CalcCrc32(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}
