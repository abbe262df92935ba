// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/q191201771/tspack/pkg/mpegts"
	"github.com/spf13/cobra"
)

// doCmp 比较两个TS文件，比如新旧版本的打包输出
func doCmp(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error {
	content1, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	content2, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	skipAudio, _ := cmd.Flags().GetBool("skip-audio")
	maxDiff, _ := cmd.Flags().GetInt("max-diff")

	n, err := cmpTs(os.Stdout, content1, content2, skipAudio, maxDiff)
	if err != nil {
		return err
	}
	if n != 0 {
		return fmt.Errorf("ts files differ. diff packets=%d", n)
	}
	return nil
}

// cmpTs
//
// @param maxDiff: 最多输出多少个不同的TS包，0表示全部
//
// @return 不同的TS包个数，包数不同时多出来的包也计入
//
func cmpTs(w io.Writer, content1, content2 []byte, skipAudio bool, maxDiff int) (int, error) {
	tss1, err := mpegts.SplitTs(content1)
	if err != nil {
		return 0, err
	}
	tss2, err := mpegts.SplitTs(content2)
	if err != nil {
		return 0, err
	}
	if skipAudio {
		tss1 = skipPid(tss1, mpegts.PidAudio)
		tss2 = skipPid(tss2, mpegts.PidAudio)
	}
	_, _ = fmt.Fprintf(w, "num of ts1=%d, num of ts2=%d\n", len(tss1), len(tss2))

	m := len(tss1)
	if m > len(tss2) {
		m = len(tss2)
	}

	diff := 0
	for i := 0; i < m; i++ {
		if bytes.Equal(tss1[i], tss2[i]) {
			continue
		}
		diff++
		if maxDiff > 0 && diff > maxDiff {
			continue
		}
		_, _ = fmt.Fprintf(w, "packet #%d differs\n%s%s", i, hex.Dump(tss1[i]), hex.Dump(tss2[i]))
	}
	if len(tss1) > m {
		diff += len(tss1) - m
	} else {
		diff += len(tss2) - m
	}
	return diff, nil
}

func skipPid(tss [][]byte, pid uint16) (ret [][]byte) {
	for _, ts := range tss {
		h, err := mpegts.ParseTsPacketHeader(ts)
		if err == nil && h.Pid == pid {
			continue
		}
		ret = append(ret, ts)
	}
	return
}
