// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package srtpush

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/haivision/srtgo"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/q191201771/tspack/pkg/mpegts"
)

// LiveChunkSize live模式下每次发送7个TS包，与SRT的默认payload大小一致
const LiveChunkSize = 7 * mpegts.PacketSize

type PushSessionOption struct {
	// LatencyMs 为0时使用srt默认值。url中的latency参数优先
	LatencyMs int

	// StreamId url中的streamid参数优先
	StreamId string
}

var defaultPushSessionOption = PushSessionOption{
	LatencyMs: 0,
	StreamId:  "",
}

type ModPushSessionOption func(option *PushSessionOption)

// PushSession 以caller模式连接SRT listener，推送TS数据
type PushSession struct {
	UniqueKey string

	option PushSessionOption
	socket *srtgo.SrtSocket

	writeBytes int
}

func NewPushSession(modOptions ...ModPushSessionOption) *PushSession {
	option := defaultPushSessionOption
	for _, fn := range modOptions {
		fn(&option)
	}
	uk := base.GenUkSrtPushSession()
	Log.Infof("[%s] lifecycle new srt push session. option=%+v", uk, option)
	return &PushSession{
		UniqueKey: uk,
		option:    option,
	}
}

// Start 建立连接
//
// @param rawUrl: 比如 srt://127.0.0.1:6001?streamid=#!::r=live/test110,m=publish
//
func (s *PushSession) Start(rawUrl string) error {
	urlCtx, err := base.ParseSrtUrl(rawUrl)
	if err != nil {
		return err
	}

	options := makeSocketOptions(urlCtx, s.option)
	Log.Debugf("[%s] connect. host=%s, port=%d, options=%+v", s.UniqueKey, urlCtx.Host, urlCtx.Port, options)

	socket := srtgo.NewSrtSocket(urlCtx.Host, uint16(urlCtx.Port), options)
	if socket == nil {
		return fmt.Errorf("%w. create socket failed. url=%s", base.ErrSrt, rawUrl)
	}
	if err = socket.Connect(); err != nil {
		socket.Close()
		return fmt.Errorf("%w. connect failed. url=%s, err=%+v", base.ErrSrt, rawUrl, err)
	}
	s.socket = socket
	Log.Infof("[%s] connected. url=%s", s.UniqueKey, rawUrl)
	return nil
}

// Write 发送一个或多个完整的TS包
func (s *PushSession) Write(ctx context.Context, b []byte) error {
	if s.socket == nil {
		return fmt.Errorf("%w. not connected", base.ErrSrt)
	}
	n, err := WriteChunks(ctx, s.socket, b, LiveChunkSize)
	s.writeBytes += n
	return err
}

func (s *PushSession) Dispose() error {
	Log.Infof("[%s] lifecycle dispose srt push session. write bytes=%d", s.UniqueKey, s.writeBytes)
	if s.socket == nil {
		return nil
	}
	s.socket.Close()
	s.socket = nil
	return nil
}

// WriteChunks 将b按chunkSize切分后逐个写入w，每次写入前检查ctx
//
// @return 已经写入的字节数
//
func WriteChunks(ctx context.Context, w io.Writer, b []byte, chunkSize int) (int, error) {
	if len(b)%mpegts.PacketSize != 0 {
		return 0, fmt.Errorf("%w. length not multiple of ts packet size. length=%d", base.ErrSrt, len(b))
	}
	if chunkSize <= 0 || chunkSize%mpegts.PacketSize != 0 {
		return 0, fmt.Errorf("%w. invalid chunk size. size=%d", base.ErrSrt, chunkSize)
	}

	written := 0
	for written < len(b) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := written + chunkSize
		if end > len(b) {
			end = len(b)
		}
		n, err := w.Write(b[written:end])
		written += n
		if err != nil {
			return written, fmt.Errorf("%w. write failed. err=%+v", base.ErrSrt, err)
		}
	}
	return written, nil
}

func makeSocketOptions(urlCtx base.SrtUrlContext, option PushSessionOption) map[string]string {
	options := map[string]string{
		"transtype": "live",
		"blocking":  "1",
	}

	latency := option.LatencyMs
	if urlCtx.LatencyMs >= 0 {
		latency = urlCtx.LatencyMs
	}
	if latency > 0 {
		options["latency"] = strconv.Itoa(latency)
	}

	streamId := option.StreamId
	if urlCtx.StreamId != "" {
		streamId = urlCtx.StreamId
	}
	if streamId != "" {
		options["streamid"] = streamId
	}
	return options
}
