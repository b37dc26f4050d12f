// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package trace hands out per-package slog loggers whose levels can be raised
// with the FAMTRACE environment variable.
//
// FAMTRACE is a comma separated list of package names, optionally followed by
// a colon and a level:
//
//	FAMTRACE=fam,local        # fam and local log at DEBUG
//	FAMTRACE=all:INFO,famd    # everything at INFO, famd at DEBUG
package trace

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Env is the name of the environment variable holding level overrides.
const Env = "FAMTRACE"

var (
	mu       sync.RWMutex
	out      io.Writer = os.Stderr
	defLevel           = slog.LevelWarn
	levels             = make(map[string]slog.Level)
)

func init() {
	SetOverrides(os.Getenv(Env))
}

// SetOverrides parses s in the FAMTRACE format and applies it on top of the
// current levels. Malformed levels fall back to DEBUG.
func SetOverrides(s string) {
	mu.Lock()
	defer mu.Unlock()
	for _, pkg := range strings.Split(s, ",") {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		level := slog.LevelDebug
		if name, lvl, ok := strings.Cut(pkg, ":"); ok {
			pkg = name
			if err := level.UnmarshalText([]byte(lvl)); err != nil {
				level = slog.LevelDebug
			}
		}
		if pkg == "all" {
			defLevel = level
			continue
		}
		levels[pkg] = level
	}
}

// SetOutput redirects every logger created afterwards to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Level reports the configured level for pkg.
func Level(pkg string) slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	if level, ok := levels[pkg]; ok {
		return level
	}
	return defLevel
}

// Logger returns a logger for pkg at its configured level.
func Logger(pkg string) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(Level(pkg))
	return New(pkg, lv)
}

// New returns a logger for pkg whose level is controlled by lv, so callers
// can adjust verbosity at run time.
func New(pkg string, lv *slog.LevelVar) *slog.Logger {
	mu.RLock()
	w := out
	mu.RUnlock()
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return slog.New(h).With(slog.String("pkg", pkg))
}
