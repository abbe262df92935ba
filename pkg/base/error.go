// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer = errors.New("tspack: buffer too short")
	ErrInvalidUrl  = errors.New("tspack: invalid url")
)

func NewErrShortBuffer(need, actual int, msg string) error {
	return fmt.Errorf("%w. need=%d, actual=%d, msg=%s", ErrShortBuffer, need, actual, msg)
}

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var (
	ErrAac                    = errors.New("tspack.aac: fxxk")
	ErrSamplingFrequencyIndex = errors.New("tspack.aac: invalid sampling frequency index")
	ErrAdtsFrameTooLarge      = errors.New("tspack.aac: adts frame length overflow")
)

// ----- pkg/avc -------------------------------------------------------------------------------------------------------

var ErrAvc = errors.New("tspack.avc: fxxk")

// ----- pkg/mpegts ----------------------------------------------------------------------------------------------------

var (
	ErrMpegts      = errors.New("tspack.mpegts: fxxk")
	ErrPesTooLarge = errors.New("tspack.mpegts: pes payload too large")
)

func NewErrPesTooLarge(size, limit int, msg string) error {
	return fmt.Errorf("%w. size=%d, limit=%d, msg=%s", ErrPesTooLarge, size, limit, msg)
}

// ----- pkg/remux -----------------------------------------------------------------------------------------------------

var (
	ErrSampleTooShort     = errors.New("tspack.remux: sample buffer too short")
	ErrAudioConfigMissing = errors.New("tspack.remux: audio sample without audio extra data")
	ErrUnknownSampleKind  = errors.New("tspack.remux: unknown sample kind")
)

// ----- pkg/source ----------------------------------------------------------------------------------------------------

var (
	ErrSourceNoStream    = errors.New("tspack.source: no h264 or aac stream found")
	ErrFragmentNotLoaded = errors.New("tspack.source: fragment read before load")
)

// ----- pkg/srtpush ---------------------------------------------------------------------------------------------------

var ErrSrt = errors.New("tspack.srtpush: fxxk")

// ----- pkg/tsprobe ---------------------------------------------------------------------------------------------------

var ErrProbe = errors.New("tspack.tsprobe: fxxk")

// ---------------------------------------------------------------------------------------------------------------------
