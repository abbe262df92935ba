// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

// 字段含义见 packPmtSection
type Pmt struct {
	TableId           uint8
	SectionLength     uint16
	ProgramNumber     uint16
	Version           uint8
	PcrPid            uint16
	ProgramInfoLength uint16
	ProgramElements   []PmtProgramElement
	Crc32             uint32
}

type PmtProgramElement struct {
	StreamType uint8
	Pid        uint16
	Length     uint16
}

// ParsePmt
//
// @param b: 从table_id开始，即TS负载跳过pointer_field之后的部分
//
func ParsePmt(b []byte) (pmt Pmt, err error) {
	var sl int
	if sl, err = checkSection(b, "pmt"); err != nil {
		return
	}
	br := nazabits.NewBitReader(b)
	pmt.TableId, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(4)
	pmt.SectionLength, _ = br.ReadBits16(12)
	pmt.ProgramNumber, _ = br.ReadBits16(16)
	_, _ = br.ReadBits8(2)
	pmt.Version, _ = br.ReadBits8(5)
	_, _ = br.ReadBits8(1)
	_, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(8)
	_, _ = br.ReadBits8(3)
	pmt.PcrPid, _ = br.ReadBits16(13)
	_, _ = br.ReadBits8(4)
	pmt.ProgramInfoLength, _ = br.ReadBits16(12)
	if pmt.ProgramInfoLength != 0 {
		_, _ = br.ReadBytes(uint(pmt.ProgramInfoLength))
	}

	end := 3 + sl - psiCrc32Length
	for pos := 3 + psiSyntaxSectionHeaderLength + pmtFixedLength + int(pmt.ProgramInfoLength); pos+pmtStreamLength <= end; {
		var ppe PmtProgramElement
		ppe.StreamType, _ = br.ReadBits8(8)
		_, _ = br.ReadBits8(3)
		ppe.Pid, _ = br.ReadBits16(13)
		_, _ = br.ReadBits8(4)
		ppe.Length, _ = br.ReadBits16(12)
		if ppe.Length != 0 {
			_, _ = br.ReadBytes(uint(ppe.Length))
		}
		pmt.ProgramElements = append(pmt.ProgramElements, ppe)
		pos += pmtStreamLength + int(ppe.Length)
	}
	pmt.Crc32 = bele.BeUint32(b[end:])
	return
}

func (pmt *Pmt) SearchPid(pid uint16) *PmtProgramElement {
	for i := range pmt.ProgramElements {
		if pmt.ProgramElements[i].Pid == pid {
			return &pmt.ProgramElements[i]
		}
	}
	return nil
}
