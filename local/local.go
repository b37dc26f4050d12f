// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package local implements a fam.Transport which emulates the FAM daemon
// in-process on top of fsnotify (inotify, kqueue, ReadDirectoryChangesW).
//
// Each connection owns a single fsnotify watcher. Every monitor is backed by
// directory watches: a file monitor watches its parent directory, a
// collection monitor watches each subdirectory down to its depth. Watches
// shared by several requests are reference counted.
package local

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
	"github.com/JekaMas/fam/internal/trace"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("local: connection closed")

// Option configures a Transport.
type Option func(*Transport)

// WithBuffer sets the capacity of the fsnotify event channel of each
// connection. Zero means unbuffered.
func WithBuffer(n uint) Option {
	return func(t *Transport) { t.buffer = n }
}

// Transport opens in-process daemon connections.
type Transport struct {
	buffer uint
}

var _ fam.Transport = (*Transport)(nil)

// New gives a Transport watching the local file system.
func New(opts ...Option) *Transport {
	t := &Transport{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open implements fam.Transport.
func (t *Transport) Open(name string) (fam.Conn, error) {
	var (
		w   *fsnotify.Watcher
		err error
	)
	if t.buffer != 0 {
		w, err = fsnotify.NewBufferedWatcher(t.buffer)
	} else {
		w, err = fsnotify.NewWatcher()
	}
	if err != nil {
		return nil, errors.Wrap(err, "local: creating watcher")
	}
	sig, err := readiness.New()
	if err != nil {
		w.Close()
		return nil, errors.Wrap(err, "local: creating wait handle")
	}
	lv := new(slog.LevelVar)
	lv.Set(trace.Level("local"))
	c := &conn{
		name: name,
		w:    w,
		sig:  sig,
		lv:   lv,
		log:  trace.New("local", lv).With(slog.String("name", name)),
		reqs: make(map[int]*watch),
		refs: make(map[string]int),
	}
	c.cond.L = &c.mu
	go c.loop()
	return c, nil
}

// match compiles a collection mask. The empty mask matches everything.
func match(mask string) (glob.Glob, error) {
	if mask == "" {
		return nil, nil
	}
	g, err := glob.Compile(mask)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mask %q", mask)
	}
	return g, nil
}

// translate maps an fsnotify operation onto a FAM event code. Renames are
// reported as deletions; the new name shows up as a separate Create.
func translate(op fsnotify.Op) (fam.Code, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return fam.Created, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return fam.Deleted, true
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return fam.Changed, true
	}
	return 0, false
}

func level(l fam.DebugLevel) slog.Level {
	switch l {
	case fam.DebugOn:
		return slog.LevelInfo
	case fam.DebugVerbose:
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
