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
	"os"
	"path/filepath"

	"github.com/q191201771/tspack/pkg/base"
)

// FileWriter 将TS segment写入文件
type FileWriter struct {
	fp *os.File
}

// Create 创建文件，所在目录不存在时会先创建目录
func (fw *FileWriter) Create(filename string) (err error) {
	if err = os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return
	}
	fw.fp, err = os.Create(filename)
	return
}

// Write
//
// @param b: 长度必须是 PacketSize 的整数倍
//
func (fw *FileWriter) Write(b []byte) (err error) {
	if fw.fp == nil {
		return fmt.Errorf("%w. file not created", base.ErrMpegts)
	}
	if len(b)%PacketSize != 0 {
		return fmt.Errorf("%w. length not multiple of packet size. length=%d", base.ErrMpegts, len(b))
	}
	_, err = fw.fp.Write(b)
	return
}

func (fw *FileWriter) Dispose() error {
	if fw.fp == nil {
		return fmt.Errorf("%w. file not created", base.ErrMpegts)
	}
	return fw.fp.Close()
}

func (fw *FileWriter) Name() string {
	if fw.fp == nil {
		return ""
	}
	return fw.fp.Name()
}
