// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
)

type Config struct {
	Log   nazalog.Option `json:"log"`
	Remux RemuxConfig    `json:"remux"`
	Pack  PackConfig     `json:"pack"`
	Srt   SrtConfig      `json:"srt"`
}

type RemuxConfig struct {
	TruncateVideoPesLength bool `json:"truncate_video_pes_length"`
	DumpPesNum             int  `json:"dump_pes_num"`
}

type PackConfig struct {
	OutDir        string `json:"out_dir"`
	Concurrency   int    `json:"concurrency"`
	MaxDurationMs int    `json:"max_duration_ms"`
	Verify        bool   `json:"verify"` // 打包后使用go-astits重新解析校验
}

type SrtConfig struct {
	LatencyMs int    `json:"latency_ms"`
	StreamId  string `json:"stream_id"`
	Paced     bool   `json:"paced"` // 按PCR控制发送速度
}

// LoadConf
//
// @param confFile: 为空时全部使用默认值
//
func LoadConf(confFile string) (*Config, error) {
	rawContent := []byte("{}")
	if confFile != "" {
		var err error
		if rawContent, err = os.ReadFile(confFile); err != nil {
			return nil, err
		}
	}
	return parseConf(rawContent)
}

func parseConf(rawContent []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(rawContent, &config); err != nil {
		return nil, err
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}

	// 配置不存在时，设置默认值
	if !j.Exist("log.level") {
		config.Log.Level = nazalog.LevelInfo
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = true
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = true
	}
	if !j.Exist("log.assert_behavior") {
		config.Log.AssertBehavior = nazalog.AssertError
	}
	if !j.Exist("remux.dump_pes_num") {
		config.Remux.DumpPesNum = 4
	}
	if !j.Exist("pack.out_dir") {
		config.Pack.OutDir = "./out"
	}
	if !j.Exist("pack.concurrency") || config.Pack.Concurrency <= 0 {
		config.Pack.Concurrency = runtime.NumCPU()
	}
	if !j.Exist("srt.paced") {
		config.Srt.Paced = true
	}

	return &config, nil
}
