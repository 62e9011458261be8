// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gwuhaolin/livego/av"
	"github.com/kris-nova/logger"
	"github.com/kris-nova/twinx-rtmp"
	"github.com/kris-nova/twinx-rtmp/rtmp"
	"github.com/urfave/cli/v2"
)

var (

	// clientPlay can be opted in to a client.Play() instead of default client.Publish()
	clientPlay bool = false

	// verbose enables log verbosity
	verbose bool = false

	// configFile is an optional yaml, toml or json file read by viper
	configFile string

	// metricsInterval prints server metrics this often, zero disables
	metricsInterval time.Duration

	// record is an optional .flv file that media is written to
	record string

	recordFlag = &cli.StringFlag{
		Name:        "record",
		Aliases:     []string{"r"},
		Usage:       "record media to an flv file",
		Destination: &record,
	}

	globalFlags = []cli.Flag{
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "toggle verbose mode for logger",
			Destination: &verbose,
		},
	}
)

func main() {
	twinx.PrintBanner()

	// cli assumes "-v" for version.
	// override that here
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "Print the version",
	}

	app := &cli.App{
		Name:  "twinx-rtmp",
		Usage: "RTMP server and client built on the twinx chunk stream engine.",
		Action: func(c *cli.Context) error {
			cli.ShowAppHelp(c)
			return nil
		},
		Before: func(c *cli.Context) error {
			if verbose {
				logger.BitwiseLevel = logger.LogEverything
			}
			return nil
		},
		Version: twinx.CompileTimeVersion,
		Flags:   globalFlags,
		Commands: []*cli.Command{
			{
				Name:      "server",
				Aliases:   []string{"s"},
				Usage:     "Start a server that can accept client (play/publish) streams.",
				ArgsUsage: "[bind-addr]",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Aliases:     []string{"c"},
						Usage:       "path to a config file",
						Destination: &configFile,
					},
					&cli.DurationFlag{
						Name:        "metrics",
						Usage:       "print metrics on this interval",
						Destination: &metricsInterval,
					},
					recordFlag,
				}, globalFlags...),
				Action: func(c *cli.Context) error {
					args := c.Args()
					if args.Len() > 1 {
						return errors.New("usage: twinx-rtmp server [bind-addr]")
					}
					return RunServer(args.First())
				},
			},
			{
				Name:      "client",
				Aliases:   []string{"c"},
				Usage:     "Start a client that can publish or play a stream.",
				ArgsUsage: "<rtmp://host:port/app/key>",
				Flags: append([]cli.Flag{
					// Default publish (This is what OBS does)
					&cli.BoolFlag{
						Name:        "play",
						Destination: &clientPlay,
					},
					recordFlag,
				}, globalFlags...),
				Action: func(c *cli.Context) error {
					args := c.Args()
					if args.Len() != 1 {
						return errors.New("usage: twinx-rtmp client <rtmp://host:port/app/key>")
					}
					return RunClient(args.First(), clientPlay)
				},
			},
			{
				Name:      "proxy",
				Aliases:   []string{"p"},
				Usage:     "Play a stream from one server and publish it to another.",
				ArgsUsage: "<play-url> <publish-url>",
				Flags:     globalFlags,
				Action: func(c *cli.Context) error {
					args := c.Args()
					if args.Len() != 2 {
						return errors.New("usage: twinx-rtmp proxy <play-url> <publish-url>")
					}
					ctx, cancel := signalContext()
					defer cancel()
					err := rtmp.NewProxy(args.Get(0), args.Get(1)).Run(ctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		logger.Critical(err.Error())
		os.Exit(1)
	}
	os.Exit(0)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func RunServer(raw string) error {
	cfg, err := rtmp.NewConfig(configFile)
	if err != nil {
		return err
	}
	if raw != "" {
		cfg.RTMPAddr = raw
	}
	if cfg.Verbose {
		logger.BitwiseLevel = logger.LogEverything
	}
	srv := rtmp.NewServer(cfg)
	sink, closeSink, err := newSink()
	if err != nil {
		return err
	}
	defer closeSink()
	srv.Sink = sink
	for _, app := range cfg.Apps {
		logger.Always("stream key for %s: %s", app, srv.Keys.GetKey(app))
	}

	ctx, cancel := signalContext()
	defer cancel()
	if metricsInterval > 0 {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(metricsInterval):
					fmt.Print(srv.Metrics().String())
				}
			}
		}()
	}
	return srv.ListenAndServe(ctx)
}

func RunClient(raw string, play bool) error {
	client, err := rtmp.Dial(raw)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Connect(); err != nil {
		return err
	}
	if err := client.CreateStream(); err != nil {
		return err
	}
	if play {
		err = client.Play()
	} else {
		err = client.Publish()
	}
	if err != nil {
		return err
	}
	logger.Always("stream %d ready on %s", client.StreamID(), client.URLAddr.SafeURL())

	sink, closeSink, err := newSink()
	if err != nil {
		return err
	}
	defer closeSink()

	ctx, cancel := signalContext()
	defer cancel()
	err = client.Serve(ctx, &rtmp.Dispatcher{Media: sink})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newSink returns an FLV recorder when --record is set and a logSink
// otherwise.
func newSink() (rtmp.MediaSink, func(), error) {
	if record == "" {
		return &logSink{}, func() {}, nil
	}
	f, err := os.Create(record)
	if err != nil {
		return nil, nil, fmt.Errorf("record: %v", err)
	}
	w, err := rtmp.NewFLVWriter(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("record: %v", err)
	}
	logger.Info("recording to %s", record)
	return w, func() { f.Close() }, nil
}

// logSink logs every media packet it receives.
type logSink struct{}

func (s *logSink) WritePacket(conn *rtmp.Conn, p *av.Packet) error {
	kind := "audio"
	if p.IsVideo {
		kind = "video"
	}
	logger.Debug("%s %s ts=%d len=%d", conn.ID(), kind, p.TimeStamp, len(p.Data))
	return nil
}
