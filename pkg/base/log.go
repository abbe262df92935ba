// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 在debug级别下，只打印前 maxNum 次的大块数据（比如PES头的hex）
type LogDump struct {
	log    nazalog.Logger
	maxNum int

	count int
}

func NewLogDump(log nazalog.Logger, maxNum int) LogDump {
	return LogDump{
		log:    log,
		maxNum: maxNum,
	}
}

// ShouldDump
//
// 将判断独立出来，是为了避免不需要打印时，构造 Outf 实参的开销（比如 hex.Dump）
func (ld *LogDump) ShouldDump() bool {
	switch ld.log.GetOption().Level {
	case nazalog.LevelTrace:
		return true
	case nazalog.LevelDebug:
		if ld.count >= ld.maxNum {
			return false
		}
		ld.count++
		return true
	}
	return false
}

func (ld *LogDump) Outf(format string, v ...interface{}) {
	ld.log.Out(ld.log.GetOption().Level, 3, fmt.Sprintf(format, v...))
}

// HexPrefix 返回 b 前 n 字节的 hex.Dump
func HexPrefix(b []byte, n int) string {
	return hex.Dump(nazabytes.Prefix(b, n))
}
