// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/tspack
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// 版本，该变量由外部脚本修改维护
const TspackVersion = "v0.3.0"

var (
	TspackLibraryName = "tspack"
	TspackGithubRepo  = "github.com/q191201771/tspack"

	// e.g. tspack v0.3.0 (github.com/q191201771/tspack)
	TspackFullInfo = TspackLibraryName + " " + TspackVersion + " (" + TspackGithubRepo + ")"
)
