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
	"os"
	"time"

	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tspack/pkg/mpegts"
	"github.com/q191201771/tspack/pkg/srtpush"
	"github.com/spf13/cobra"
)

func doPush(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if _, err = mpegts.SplitTs(content); err != nil {
		return err
	}

	session := srtpush.NewPushSession(func(option *srtpush.PushSessionOption) {
		option.LatencyMs = config.Srt.LatencyMs
		option.StreamId = config.Srt.StreamId
	})
	if err = session.Start(args[1]); err != nil {
		return err
	}
	defer session.Dispose()

	pacer := newPcrPacer()
	for pos := 0; pos < len(content); pos += srtpush.LiveChunkSize {
		end := pos + srtpush.LiveChunkSize
		if end > len(content) {
			end = len(content)
		}
		chunk := content[pos:end]
		if config.Srt.Paced {
			if err = pacer.wait(ctx, chunk); err != nil {
				return err
			}
		}
		if err = session.Write(ctx, chunk); err != nil {
			return err
		}
	}
	nazalog.Infof("[%s] push done. file=%s, size=%d", session.UniqueKey, args[0], len(content))
	return nil
}

// pcrPacer 按chunk中的PCR控制发送节奏，使发送速度接近实时
type pcrPacer struct {
	start    time.Time
	firstPcr int64
}

func newPcrPacer() *pcrPacer {
	return &pcrPacer{firstPcr: -1}
}

func (p *pcrPacer) wait(ctx context.Context, chunk []byte) error {
	pcr := int64(-1)
	for i := 0; i+mpegts.PacketSize <= len(chunk); i += mpegts.PacketSize {
		tp, err := mpegts.ParseTsPacket(chunk[i : i+mpegts.PacketSize])
		if err != nil {
			return err
		}
		if tp.Adaptation != nil && tp.Adaptation.HasPcr {
			pcr = tp.Adaptation.Pcr
		}
	}
	if pcr < 0 {
		return nil
	}
	if p.firstPcr < 0 {
		p.firstPcr = pcr
		p.start = time.Now()
		return nil
	}

	d := time.Until(p.start.Add(time.Duration(pcr-p.firstPcr) * time.Second / 90000))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
