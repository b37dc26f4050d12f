// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import "log/slog"

// Config describes how a Session is opened.
type Config struct {
	// Name identifies the application to the daemon. Optional.
	Name string

	// DebugLevel, when not DebugOff, is applied right after the handshake.
	// Opening fails with ErrUnsupported if the daemon cannot honour it.
	DebugLevel DebugLevel

	// NoExists disables the initial Exists events right after the
	// handshake. Opening fails with ErrUnsupported if the daemon cannot
	// honour it.
	NoExists bool

	// Logger receives session diagnostics. Defaults to the "fam" trace
	// logger (see FAMTRACE).
	Logger *slog.Logger
}

// Open opens a session with the given application name.
func Open(t Transport, name string) (*Session, error) {
	return Config{Name: name}.Open(t)
}
