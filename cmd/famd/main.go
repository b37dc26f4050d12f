// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Command famd serves file alteration monitoring to remote clients over
// websockets, and exports prometheus metrics about them.
//
// Usage
//
//	famd [-c famd.yaml] [--listen ADDR] [--root DIR]... [--debug LEVEL]
//
// Flags override the values read from the configuration file. Clients
// connect with the remote package, or with famwatch --remote.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/famd"
	"github.com/JekaMas/fam/internal/trace"
)

// CLI holds the command line of famd.
type CLI struct {
	Config   string   `short:"c" type:"path" help:"YAML configuration file." env:"FAMD_CONFIG"`
	Listen   string   `help:"Listen address." env:"FAMD_LISTEN"`
	Root     []string `help:"Exported directory tree; may be repeated." env:"FAMD_ROOTS"`
	Debug    string   `help:"Debug level of client sessions (off, on, verbose)." env:"FAMD_DEBUG"`
	Hostname string   `help:"Host name reported in events." env:"FAMD_HOSTNAME"`
	Trace    string   `help:"Logging overrides, in the format of the FAMTRACE environment variable."`
}

// config loads the configuration file, if any, and applies the flags on top
// of it.
func (c *CLI) config() (famd.Config, error) {
	cfg := famd.Default()
	if c.Config != "" {
		var err error
		if cfg, err = famd.Load(c.Config); err != nil {
			return cfg, err
		}
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if len(c.Root) != 0 {
		cfg.Roots = c.Root
	}
	if c.Debug != "" {
		level, err := fam.ParseDebugLevel(c.Debug)
		if err != nil {
			return cfg, err
		}
		cfg.Debug = level
	}
	if c.Hostname != "" {
		cfg.Hostname = c.Hostname
	}
	return cfg, cfg.Validate()
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("famd"),
		kong.Description("File alteration monitor daemon."),
		kong.UsageOnError(),
	)
	trace.SetOverrides("famd:INFO," + os.Getenv(trace.Env) + "," + cli.Trace)

	cfg, err := cli.config()
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sup := famd.NewSupervisor(famd.NewServer(cfg, nil))
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		kctx.FatalIfErrorf(err)
	}
}
