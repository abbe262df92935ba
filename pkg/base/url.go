// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// 见单元测试

const DefaultSrtPort = 6001

type UrlContext struct {
	Url string

	Scheme       string
	StdHost      string // host or host:port
	HostWithPort string
	Host         string
	Port         int

	PathWithRawQuery    string
	Path                string
	PathWithoutLastItem string // 注意，没有前面的'/'，也没有后面的'/'
	LastItemOfPath      string // 注意，没有前面的'/'
	RawQuery            string // 参数
}

// SrtUrlContext
//
// srt://host:port?streamid=#!::r=live/test110,m=publish&latency=120
//
type SrtUrlContext struct {
	UrlContext

	StreamId  string
	LatencyMs int // url中没有时为-1
}

// ParseUrl
//
// @param defaultPort: 注意，如果rawUrl中显示指定了端口，则该参数不生效
//                     如果设置为-1，则srt使用 DefaultSrtPort
//
func ParseUrl(rawUrl string, defaultPort int) (ctx UrlContext, err error) {
	ctx.Url = rawUrl

	stdUrl, err := url.Parse(rawUrl)
	if err != nil {
		return ctx, err
	}
	if stdUrl.Scheme == "" {
		return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
	}
	if defaultPort == -1 && stdUrl.Scheme == "srt" {
		defaultPort = DefaultSrtPort
	}

	ctx.Scheme = stdUrl.Scheme
	ctx.StdHost = stdUrl.Host

	h, p, err := net.SplitHostPort(stdUrl.Host)
	if err != nil {
		// url中端口不存在
		ctx.Host = stdUrl.Host
		if defaultPort == -1 {
			ctx.HostWithPort = stdUrl.Host
		} else {
			ctx.HostWithPort = net.JoinHostPort(stdUrl.Host, fmt.Sprintf("%d", defaultPort))
			ctx.Port = defaultPort
		}
	} else {
		if ctx.Port, err = strconv.Atoi(p); err != nil {
			return ctx, err
		}
		ctx.Host = h
		ctx.HostWithPort = stdUrl.Host
	}

	ctx.Path = stdUrl.Path
	index := strings.LastIndexByte(ctx.Path, '/')
	switch {
	case index == -1 || ctx.Path == "/":
	case index == 0:
		ctx.LastItemOfPath = ctx.Path[1:]
	default:
		ctx.PathWithoutLastItem = ctx.Path[1:index]
		ctx.LastItemOfPath = ctx.Path[index+1:]
	}

	ctx.RawQuery = stdUrl.RawQuery
	if ctx.RawQuery == "" {
		ctx.PathWithRawQuery = ctx.Path
	} else {
		ctx.PathWithRawQuery = fmt.Sprintf("%s?%s", ctx.Path, ctx.RawQuery)
	}
	return ctx, nil
}

func ParseSrtUrl(rawUrl string) (ctx SrtUrlContext, err error) {
	ctx.LatencyMs = -1
	if ctx.UrlContext, err = ParseUrl(rawUrl, -1); err != nil {
		return
	}
	if ctx.Scheme != "srt" || ctx.Host == "" || ctx.Port <= 0 || ctx.Port > 65535 {
		return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
	}

	query, err := url.ParseQuery(ctx.RawQuery)
	if err != nil {
		return ctx, fmt.Errorf("%w. url=%s, err=%+v", ErrInvalidUrl, rawUrl, err)
	}
	ctx.StreamId = query.Get("streamid")
	if v := query.Get("latency"); v != "" {
		if ctx.LatencyMs, err = strconv.Atoi(v); err != nil || ctx.LatencyMs < 0 {
			return ctx, fmt.Errorf("%w. invalid latency. url=%s", ErrInvalidUrl, rawUrl)
		}
	}
	return ctx, nil
}
