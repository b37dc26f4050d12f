// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Command famwatch monitors files and directories and prints every event it
// receives, optionally running a command for each.
//
// Usage
//
//	famwatch [--remote URL] [--depth N] [--mask GLOB] [-c command] [path]...
//
// Each path is monitored as a directory, or as a file when it is not one.
// With --depth or --mask directories are monitored as collections instead.
//
// The -c flag registers a command handler, which uses the syntax of package
// text/template. The struct passed to the template is:
//
//	type Event struct {
//		Path    string
//		Event   string
//		Request int
//		Host    string
//	}
//
// The same values are available to the process in the FAM_PATH, FAM_EVENT,
// FAM_REQUEST and FAM_HOST environment variables.
//
// Example usage
//
//	~ $ famwatch -c 'echo "{{.Event}} {{.Path}}"' /tmp
//	Exists "/tmp" (1)
//	EndExists "/tmp" (1)
//	Created "famwatch.tmp" (1)
//	created /tmp/famwatch.tmp
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/trace"
	"github.com/JekaMas/fam/local"
	"github.com/JekaMas/fam/remote"
)

// CLI holds the command line of famwatch.
type CLI struct {
	Paths    []string       `arg:"" optional:"" help:"Files or directories to monitor (default: working directory)."`
	Remote   string         `help:"URL of a famd daemon, e.g. ws://host:4321/fam. Monitors the local file system when empty." env:"FAM_REMOTE"`
	Name     string         `default:"famwatch" help:"Application name reported to the daemon."`
	Depth    int            `help:"Monitor directories as collections this many levels deep."`
	Mask     string         `help:"Monitor directories as collections of names matching this glob."`
	NoExists bool           `help:"Do not report files which exist when monitoring starts."`
	Debug    fam.DebugLevel `default:"off" help:"Daemon debug level (off, on, verbose)."`
	Exec     string         `short:"c" help:"Command template to run for every event."`
	Timeout  time.Duration  `help:"Exit after this long. Zero runs until interrupted."`
}

func (c *CLI) transport() fam.Transport {
	if c.Remote != "" {
		return remote.New(c.Remote)
	}
	return local.New()
}

func (c *CLI) collection() bool {
	return c.Depth > 0 || c.Mask != ""
}

// monitor registers p as a directory, or collection, falling back to a file
// monitor when p is not a directory.
func (c *CLI) monitor(s *fam.Session, p string) (*fam.Request, error) {
	if c.Remote == "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		p = abs
	}
	var (
		req *fam.Request
		err error
	)
	if c.collection() {
		req, err = s.MonitorCollection(p, c.Depth, c.Mask)
	} else {
		req, err = s.MonitorDirectory(p)
	}
	var merr *fam.MonitorError
	if errors.As(err, &merr) {
		req, err = s.MonitorFile(p)
	}
	return req, err
}

// Run monitors the paths through t and writes events to out until ctx is
// done.
func (c *CLI) Run(ctx context.Context, t fam.Transport, out io.Writer) error {
	log := trace.Logger("famwatch")
	var run chan<- Event
	if c.Exec != "" {
		h, err := NewHandler(c.Exec, log)
		if err != nil {
			return err
		}
		run = h.Daemon()
		defer close(run)
	}
	s, err := fam.Config{Name: c.Name, DebugLevel: c.Debug, NoExists: c.NoExists}.Open(t)
	if err != nil {
		return err
	}
	defer s.Close()

	paths := c.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		req, err := c.monitor(s, p)
		if err != nil {
			return err
		}
		log.Info("monitoring", slog.String("request", req.String()))
	}
	for {
		ev, err := s.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(out, ev)
		if run == nil {
			continue
		}
		req, _ := s.Request(ev.Request)
		select {
		case run <- NewEvent(ev, req):
		default:
			log.Warn("event dropped due to slow handler", slog.String("event", ev.String()))
		}
	}
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("famwatch"),
		kong.Description("Monitors files and directories for changes."),
		kong.UsageOnError(),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}
	kctx.FatalIfErrorf(cli.Run(ctx, cli.transport(), os.Stdout))
}
