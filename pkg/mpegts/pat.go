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

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/tspack/pkg/base"
)

// 字段含义见 packPatSection
type Pat struct {
	TableId       uint8
	SectionLength uint16
	Tsi           uint16
	Version       uint8
	Programs      []PatProgramElement
	Crc32         uint32
}

type PatProgramElement struct {
	ProgramNumber uint16
	PmtPid        uint16
}

// ParsePat
//
// @param b: 从table_id开始，即TS负载跳过pointer_field之后的部分
//
func ParsePat(b []byte) (pat Pat, err error) {
	var sl int
	if sl, err = checkSection(b, "pat"); err != nil {
		return
	}
	br := nazabits.NewBitReader(b)
	pat.TableId, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(4)
	pat.SectionLength, _ = br.ReadBits16(12)
	pat.Tsi, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	pat.Version, _ = br.ReadBits8(5)
	_, _ = br.ReadBits8(1)
	_, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(8)

	for i := psiSyntaxSectionHeaderLength; i+patProgramLength <= sl-psiCrc32Length; i += patProgramLength {
		var ppe PatProgramElement
		ppe.ProgramNumber, _ = br.ReadBits16(16)
		_, _ = br.ReadBits8(3)
		ppe.PmtPid, _ = br.ReadBits16(13)
		pat.Programs = append(pat.Programs, ppe)
	}
	pat.Crc32 = bele.BeUint32(b[3+sl-psiCrc32Length:])
	return
}

func (pat *Pat) SearchPid(pid uint16) bool {
	for _, ppe := range pat.Programs {
		if pid == ppe.PmtPid {
			return true
		}
	}
	return false
}

// VerifyCrc32 对整个section（包含CRC字段）计算CRC，结果为0表示校验通过
func VerifyCrc32(section []byte) bool {
	return CalcCrc32(0xFFFFFFFF, section) == 0
}

// checkSection 检查长度以及CRC，返回section_length
func checkSection(b []byte, name string) (int, error) {
	if len(b) < 3 {
		return 0, base.NewErrShortBuffer(3, len(b), name)
	}
	sl := int(bele.BeUint16(b[1:]) & 0x0FFF)
	if sl < psiSyntaxSectionHeaderLength+psiCrc32Length {
		return 0, fmt.Errorf("%w. invalid section length. name=%s, sl=%d", base.ErrMpegts, name, sl)
	}
	if len(b) < 3+sl {
		return 0, base.NewErrShortBuffer(3+sl, len(b), name)
	}
	if !VerifyCrc32(b[:3+sl]) {
		return 0, fmt.Errorf("%w. crc32 mismatch. name=%s", base.ErrMpegts, name)
	}
	return sl, nil
}
