// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreFragmentRemuxer = "TSPACK"
	UkPreFileFragment    = "SOURCE"
	UkPreSrtPushSession  = "SRTPUSH"
)

func GenUkFragmentRemuxer() string {
	return siUkFragmentRemuxer.GenUniqueKey()
}

func GenUkFileFragment() string {
	return siUkFileFragment.GenUniqueKey()
}

func GenUkSrtPushSession() string {
	return siUkSrtPushSession.GenUniqueKey()
}

var (
	siUkFragmentRemuxer *unique.SingleGenerator
	siUkFileFragment    *unique.SingleGenerator
	siUkSrtPushSession  *unique.SingleGenerator
)

func init() {
	siUkFragmentRemuxer = unique.NewSingleGenerator(UkPreFragmentRemuxer)
	siUkFileFragment = unique.NewSingleGenerator(UkPreFileFragment)
	siUkSrtPushSession = unique.NewSingleGenerator(UkPreSrtPushSession)
}
