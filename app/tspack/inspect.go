// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/q191201771/tspack/pkg/aac"
	"github.com/q191201771/tspack/pkg/avc"
	"github.com/q191201771/tspack/pkg/mpegts"
	"github.com/q191201771/tspack/pkg/tsprobe"
	"github.com/spf13/cobra"
)

func doProbe(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error {
	fp, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer fp.Close()

	report, err := tsprobe.Probe(ctx, fp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, report.String())
	return err
}

func doDump(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	num, _ := cmd.Flags().GetInt("num")
	return dumpTs(os.Stdout, content, num)
}

// dumpTs 每个TS包输出一行，负载起始处的PAT、PMT、PES头也解析出来
//
// 另外按PID重组PES，每个PES结束时输出一行汇总：视频为nalu类型列表，音频为ADTS帧数以及采样率
//
func dumpTs(w io.Writer, content []byte, num int) error {
	packets, err := mpegts.SplitTs(content)
	if err != nil {
		return err
	}

	var (
		pat     *mpegts.Pat
		pmt     *mpegts.Pmt
		pending = map[uint16][]byte{}
		seen    = map[uint16]bool{}
		order   []uint16
	)
	flush := func(pid uint16) error {
		pes, ok := pending[pid]
		if !ok || pmt == nil {
			return nil
		}
		delete(pending, pid)
		element := pmt.SearchPid(pid)
		if element == nil {
			return nil
		}
		_, err := fmt.Fprintf(w, "  pes pid=0x%x size=%d %s\n", pid, len(pes), describePes(element.StreamType, pes))
		return err
	}

	for i, packet := range packets {
		if num > 0 && i >= num {
			break
		}
		p, err := mpegts.ParseTsPacket(packet)
		if err != nil {
			return fmt.Errorf("parse packet failed. index=%d, err=%w", i, err)
		}

		var sb strings.Builder
		h := p.Header
		_, _ = fmt.Fprintf(&sb, "#%d pid=0x%x pusi=%d cc=%d", i, h.Pid, h.PayloadUnitStart, h.Cc)
		if af := p.Adaptation; af != nil {
			_, _ = fmt.Fprintf(&sb, " afl=%d rai=%t stuffing=%d", af.Length, af.RandomAccess, af.StuffingNum)
			if af.HasPcr {
				_, _ = fmt.Fprintf(&sb, " pcr=%d", af.Pcr)
			}
		}
		_, _ = fmt.Fprintf(&sb, " payload=%d", len(p.Payload))

		isPsi := h.Pid == mpegts.PidPat || (pat != nil && pat.SearchPid(h.Pid))
		if h.PayloadUnitStart == 1 && len(p.Payload) > 0 {
			switch {
			case h.Pid == mpegts.PidPat:
				v, err := mpegts.ParsePat(skipPointerField(p.Payload))
				if err != nil {
					_, _ = fmt.Fprintf(&sb, " | pat err=%v", err)
					break
				}
				pat = &v
				_, _ = fmt.Fprintf(&sb, " | pat %+v", v)
			case isPsi:
				v, err := mpegts.ParsePmt(skipPointerField(p.Payload))
				if err != nil {
					_, _ = fmt.Fprintf(&sb, " | pmt err=%v", err)
					break
				}
				pmt = &v
				_, _ = fmt.Fprintf(&sb, " | pmt %+v", v)
			default:
				if err := flush(h.Pid); err != nil {
					return err
				}
				pes, _, err := mpegts.ParsePes(p.Payload)
				if err != nil {
					_, _ = fmt.Fprintf(&sb, " | pes err=%v", err)
					break
				}
				if !seen[h.Pid] {
					seen[h.Pid] = true
					order = append(order, h.Pid)
				}
				pending[h.Pid] = append([]byte(nil), p.Payload...)
				_, _ = fmt.Fprintf(&sb, " | pes sid=0x%x len=%d pts=%d dts=%d", pes.StreamId, pes.PacketLength, pes.Pts, pes.Dts)
			}
		} else if v, ok := pending[h.Pid]; ok && !isPsi {
			pending[h.Pid] = append(v, p.Payload...)
		}

		if _, err = fmt.Fprintln(w, sb.String()); err != nil {
			return err
		}
	}

	for _, pid := range order {
		if err = flush(pid); err != nil {
			return err
		}
	}
	return nil
}

// describePes
//
// @param pes: 包含PES头的完整PES
//
func describePes(streamType uint8, pes []byte) string {
	_, length, err := mpegts.ParsePes(pes)
	if err != nil {
		return fmt.Sprintf("err=%v", err)
	}
	payload := pes[length:]

	switch streamType {
	case mpegts.StreamTypeAvc:
		var types []string
		avc.IterateNaluAnnexb(payload, func(nalu []byte) {
			types = append(types, avc.CalcNaluTypeReadable(nalu))
		})
		return "nalus=" + strings.Join(types, ",")
	case mpegts.StreamTypeAac:
		return describeAdts(payload)
	}
	return fmt.Sprintf("stream_type=0x%x", streamType)
}

func describeAdts(payload []byte) string {
	var first *aac.AdtsHeaderContext
	frames := 0
	for len(payload) > 0 {
		ctx, err := aac.NewAdtsHeaderContext(payload)
		if err != nil {
			return fmt.Sprintf("adts frames=%d err=%v", frames, err)
		}
		if int(ctx.AdtsLength) < aac.AdtsHeaderLength || int(ctx.AdtsLength) > len(payload) {
			return fmt.Sprintf("adts frames=%d invalid frame length=%d, remain=%d", frames, ctx.AdtsLength, len(payload))
		}
		if first == nil {
			first = ctx
		}
		frames++
		payload = payload[ctx.AdtsLength:]
	}
	if first == nil {
		return "adts frames=0"
	}

	sf, err := first.AscCtx.GetSamplingFrequency()
	if err != nil {
		return fmt.Sprintf("adts frames=%d err=%v", frames, err)
	}
	return fmt.Sprintf("adts frames=%d sampling_frequency=%d asc=%s", frames, sf, hex.EncodeToString(first.AscCtx.Pack()))
}

func skipPointerField(payload []byte) []byte {
	pos := 1 + int(payload[0])
	if pos > len(payload) {
		return nil
	}
	return payload[pos:]
}
