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
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/q191201771/tspack/pkg/mpegts"
	"github.com/q191201771/tspack/pkg/remux"
	"github.com/q191201771/tspack/pkg/source"
	"github.com/q191201771/tspack/pkg/tsprobe"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func doPack(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error {
	outFile, _ := cmd.Flags().GetString("out")
	if outFile != "" && len(args) != 1 {
		return fmt.Errorf("-o can only be used with a single input. inputs=%d", len(args))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Pack.Concurrency)
	for _, in := range args {
		in := in
		out := outFile
		if out == "" {
			out = outFilename(config.Pack.OutDir, in)
		}
		g.Go(func() error {
			return packFile(gctx, config, in, out)
		})
	}
	return g.Wait()
}

// packFile 一个输入文件打包成一个TS文件，每个输入使用独立的remuxer
func packFile(ctx context.Context, config *Config, in, out string) error {
	frag := source.NewFileFragment(in, func(option *source.FileFragmentOption) {
		option.MaxDuration = time.Duration(config.Pack.MaxDurationMs) * time.Millisecond
	})
	remuxer := remux.NewFragmentRemuxer(func(option *remux.FragmentRemuxerOption) {
		option.TruncateVideoPesLength = config.Remux.TruncateVideoPesLength
		option.DumpPesNum = config.Remux.DumpPesNum
	})

	b, err := remuxer.Packetize(ctx, frag)
	if err != nil {
		return nazaerrors.Wrap(fmt.Errorf("packetize %s failed: %w", in, err))
	}

	if config.Pack.Verify {
		if err = verifySegment(ctx, b, frag.Samples()); err != nil {
			return nazaerrors.Wrap(fmt.Errorf("verify %s failed: %w", in, err))
		}
	}

	var fw mpegts.FileWriter
	if err = fw.Create(out); err != nil {
		return nazaerrors.Wrap(err)
	}
	if err = fw.Write(b); err != nil {
		_ = fw.Dispose()
		return nazaerrors.Wrap(err)
	}
	if err = fw.Dispose(); err != nil {
		return nazaerrors.Wrap(err)
	}

	stat, _ := frag.Stat()
	nazalog.Infof("[%s] pack done. in=%s, out=%s, size=%d, packets=%d, stat=%+v",
		remuxer.UniqueKey, in, fw.Name(), len(b), len(b)/mpegts.PacketSize, stat)
	return nil
}

// verifySegment 使用go-astits重新解析打包结果，检查TS包个数，以及有样本的流都解析出了PES
func verifySegment(ctx context.Context, b []byte, samples []base.Sample) error {
	report, err := tsprobe.ProbeBytes(ctx, b)
	if err != nil {
		return err
	}
	if report.PacketNum != len(b)/mpegts.PacketSize {
		return fmt.Errorf("%w. packet num mismatch. expected=%d, actual=%d", base.ErrProbe, len(b)/mpegts.PacketSize, report.PacketNum)
	}

	var hasVideo, hasAudio bool
	for i := range samples {
		switch samples[i].Kind {
		case base.SampleKindVideo:
			hasVideo = true
		case base.SampleKindAudio:
			hasAudio = true
		}
	}
	check := func(has bool, pid uint16) error {
		if !has {
			return nil
		}
		if s := report.Stream(pid); s == nil || s.PesNum == 0 {
			return fmt.Errorf("%w. no pes found. pid=0x%x", base.ErrProbe, pid)
		}
		return nil
	}
	if err = check(hasVideo, mpegts.PidVideo); err != nil {
		return err
	}
	if err = check(hasAudio, mpegts.PidAudio); err != nil {
		return err
	}
	nazalog.Debugf("verify done.\n%s", report.String())
	return nil
}

func outFilename(outDir, in string) string {
	base := filepath.Base(in)
	return filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".ts")
}
