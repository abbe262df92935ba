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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/tspack/pkg/base"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// 所有子命令共用的参数，命令行优先于配置文件
type commonFlags struct {
	confFile string
	logLevel string

	outFile     string
	outDir      string
	concurrency int
	maxDuration time.Duration
	truncate    bool
	verify      bool

	latencyMs int
	streamId  string
	noPace    bool

	dumpNum int
}

var logLevels = map[string]nazalog.Level{
	"trace": nazalog.LevelTrace,
	"debug": nazalog.LevelDebug,
	"info":  nazalog.LevelInfo,
	"warn":  nazalog.LevelWarn,
	"error": nazalog.LevelError,
}

func main() {
	cf := &commonFlags{}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := func(fn func(ctx context.Context, config *Config, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
		return func(cmd *cobra.Command, args []string) {
			config, err := loadConfAndInitLog(cf, cmd.Flags())
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "load conf failed. err=%+v\n", err)
				os.Exit(1)
			}
			if err = fn(ctx, config, cmd, args); err != nil {
				nazalog.Errorf("%s failed. err=%+v", cmd.Name(), err)
				nazalog.Sync()
				os.Exit(1)
			}
			nazalog.Sync()
		}
	}

	cmdPack := &cobra.Command{
		Use:   "pack INPUT...",
		Short: "remux h264/aac media files into mpegts segments",
		Args:  cobra.MinimumNArgs(1),
		Run:   run(doPack),
	}
	cmdPack.Flags().StringVarP(&cf.outFile, "out", "o", "", "output file, only valid with a single input")
	cmdPack.Flags().StringVarP(&cf.outDir, "dir", "d", "", "output directory")
	cmdPack.Flags().IntVarP(&cf.concurrency, "concurrency", "j", 0, "number of inputs packed concurrently")
	cmdPack.Flags().DurationVar(&cf.maxDuration, "max-duration", 0, "only pack samples before this time")
	cmdPack.Flags().BoolVar(&cf.truncate, "truncate-video-pes-length", false, "keep only the low 8 bits of video PES_packet_length")
	cmdPack.Flags().BoolVar(&cf.verify, "verify", false, "demux the output again with go-astits and check it")

	cmdProbe := &cobra.Command{
		Use:   "probe FILE",
		Short: "print programs and elementary streams of a ts file",
		Args:  cobra.ExactArgs(1),
		Run:   run(doProbe),
	}

	cmdDump := &cobra.Command{
		Use:   "dump FILE",
		Short: "dump ts packet headers, psi tables and pes headers",
		Args:  cobra.ExactArgs(1),
		Run:   run(doDump),
	}
	cmdDump.Flags().IntVarP(&cf.dumpNum, "num", "n", 0, "max number of packets to dump, 0 means all")

	cmdPush := &cobra.Command{
		Use:   "push FILE URL",
		Short: "push a ts file to a srt listener, e.g. srt://127.0.0.1:6001?streamid=#!::r=live/test110,m=publish",
		Args:  cobra.ExactArgs(2),
		Run:   run(doPush),
	}
	cmdPush.Flags().IntVar(&cf.latencyMs, "latency", 0, "srt latency in milliseconds")
	cmdPush.Flags().StringVar(&cf.streamId, "streamid", "", "srt stream id")
	cmdPush.Flags().BoolVar(&cf.noPace, "no-pace", false, "send as fast as possible instead of following pcr")

	cmdCmp := &cobra.Command{
		Use:   "cmp FILE1 FILE2",
		Short: "compare two ts files packet by packet",
		Args:  cobra.ExactArgs(2),
		Run:   run(doCmp),
	}
	cmdCmp.Flags().Bool("skip-audio", false, "ignore packets of the audio pid")
	cmdCmp.Flags().Int("max-diff", 8, "max number of differing packets to print, 0 means all")

	cmdVersion := &cobra.Command{
		Use:   "version",
		Short: "show bin info",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(os.Stdout, bininfo.StringifyMultiLine())
			_, _ = fmt.Fprintln(os.Stdout, base.TspackFullInfo)
		},
	}

	rootCmd := &cobra.Command{
		Use:   "tspack",
		Short: "h264/aac to mpegts packetizer for hls segments",
	}
	rootCmd.PersistentFlags().StringVarP(&cf.confFile, "conf", "c", "", "specify conf file, e.g. ./conf/tspack.conf.json")
	rootCmd.PersistentFlags().StringVar(&cf.logLevel, "log-level", "", "trace, debug, info, warn or error")
	rootCmd.AddCommand(cmdPack, cmdProbe, cmdDump, cmdPush, cmdCmp, cmdVersion)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfAndInitLog(cf *commonFlags, fs *pflag.FlagSet) (*Config, error) {
	config, err := LoadConf(cf.confFile)
	if err != nil {
		return nil, err
	}
	if err = applyFlags(config, cf, fs); err != nil {
		return nil, err
	}

	if err = nazalog.Init(func(option *nazalog.Option) {
		*option = config.Log
	}); err != nil {
		return nil, err
	}
	nazalog.Infof("%s", base.TspackFullInfo)
	nazalog.Debugf("config=%+v", config)
	return config, nil
}

func applyFlags(config *Config, cf *commonFlags, fs *pflag.FlagSet) error {
	if fs.Changed("log-level") {
		level, ok := logLevels[cf.logLevel]
		if !ok {
			return fmt.Errorf("invalid log level. level=%s", cf.logLevel)
		}
		config.Log.Level = level
	}
	if fs.Changed("dir") {
		config.Pack.OutDir = cf.outDir
	}
	if fs.Changed("concurrency") && cf.concurrency > 0 {
		config.Pack.Concurrency = cf.concurrency
	}
	if fs.Changed("max-duration") {
		config.Pack.MaxDurationMs = int(cf.maxDuration / time.Millisecond)
	}
	if fs.Changed("truncate-video-pes-length") {
		config.Remux.TruncateVideoPesLength = cf.truncate
	}
	if fs.Changed("verify") {
		config.Pack.Verify = cf.verify
	}
	if fs.Changed("latency") {
		config.Srt.LatencyMs = cf.latencyMs
	}
	if fs.Changed("streamid") {
		config.Srt.StreamId = cf.streamId
	}
	if fs.Changed("no-pace") {
		config.Srt.Paced = !cf.noPace
	}
	return nil
}
