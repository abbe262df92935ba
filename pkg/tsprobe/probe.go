// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsprobe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	ts "github.com/asticode/go-astits"
	"github.com/q191201771/tspack/pkg/base"
)

// Report 使用go-astits独立解析一个TS流得到的概要信息，用于校验打包结果
type Report struct {
	Size      int
	PacketNum int

	Programs []ProgramInfo
	PcrPid   uint16
	Streams  []*StreamInfo // 按PID排序
}

type ProgramInfo struct {
	ProgramNumber uint16
	PmtPid        uint16
}

type StreamInfo struct {
	Pid        uint16
	StreamType uint8
	StreamId   uint8

	PesNum       int
	PayloadBytes int

	FirstPts int64
	LastPts  int64
	FirstDts int64
	LastDts  int64
}

func (r *Report) Stream(pid uint16) *StreamInfo {
	for _, s := range r.Streams {
		if s.Pid == pid {
			return s
		}
	}
	return nil
}

func (r *Report) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "size=%d, packets=%d, pcr pid=0x%x\n", r.Size, r.PacketNum, r.PcrPid)
	for _, p := range r.Programs {
		_, _ = fmt.Fprintf(&sb, "program. number=%d, pmt pid=0x%x\n", p.ProgramNumber, p.PmtPid)
	}
	for _, s := range r.Streams {
		_, _ = fmt.Fprintf(&sb, "stream. pid=0x%x, type=0x%02x, sid=0x%02x, pes=%d, payload=%d, pts=[%d, %d], dts=[%d, %d]\n",
			s.Pid, s.StreamType, s.StreamId, s.PesNum, s.PayloadBytes, s.FirstPts, s.LastPts, s.FirstDts, s.LastDts)
	}
	return sb.String()
}

// Probe 读取r直到结束，ctx用于取消
func Probe(ctx context.Context, r io.Reader) (*Report, error) {
	cr := &countReader{r: r}
	dmx := ts.NewDemuxer(ctx, bufio.NewReader(cr))

	report := &Report{}
	streams := make(map[uint16]*StreamInfo)
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, ts.ErrNoMorePackets) {
				break
			}
			return nil, fmt.Errorf("%w. demux failed. err=%+v", base.ErrProbe, err)
		}

		switch {
		case d.PAT != nil:
			report.Programs = report.Programs[:0]
			for _, p := range d.PAT.Programs {
				report.Programs = append(report.Programs, ProgramInfo{
					ProgramNumber: p.ProgramNumber,
					PmtPid:        p.ProgramMapID,
				})
			}
		case d.PMT != nil:
			report.PcrPid = d.PMT.PCRPID
			for _, es := range d.PMT.ElementaryStreams {
				if _, ok := streams[es.ElementaryPID]; !ok {
					streams[es.ElementaryPID] = &StreamInfo{
						Pid:        es.ElementaryPID,
						StreamType: uint8(es.StreamType),
					}
				}
			}
		case d.PES != nil:
			pid := d.FirstPacket.Header.PID
			s, ok := streams[pid]
			if !ok {
				Log.Warnf("pes of pid not in pmt. pid=%d", pid)
				continue
			}
			onPes(s, d.PES)
		}
	}

	report.Size = cr.n
	report.PacketNum = cr.n / ts.MpegTsPacketSize
	for _, s := range streams {
		report.Streams = append(report.Streams, s)
	}
	sort.Slice(report.Streams, func(i, j int) bool {
		return report.Streams[i].Pid < report.Streams[j].Pid
	})
	return report, nil
}

func ProbeBytes(ctx context.Context, b []byte) (*Report, error) {
	return Probe(ctx, bytes.NewReader(b))
}

func onPes(s *StreamInfo, pes *ts.PESData) {
	s.StreamId = pes.Header.StreamID
	s.PayloadBytes += len(pes.Data)

	var pts, dts int64
	if oh := pes.Header.OptionalHeader; oh != nil {
		if oh.PTS != nil {
			pts = oh.PTS.Base
		}
		dts = pts
		if oh.DTS != nil {
			dts = oh.DTS.Base
		}
	}
	if s.PesNum == 0 {
		s.FirstPts = pts
		s.FirstDts = dts
	}
	s.LastPts = pts
	s.LastDts = dts
	s.PesNum++
}

type countReader struct {
	r io.Reader
	n int
}

func (cr *countReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += n
	return n, err
}
