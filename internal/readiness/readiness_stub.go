// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build !unix

package readiness

import "errors"

// ErrClosed is returned by operations on a closed Signal.
var ErrClosed = errors.New("readiness: signal closed")

var errUnsupported = errors.New("readiness: not supported on this platform")

// Signal stub.
type Signal struct{}

// New always fails on this platform.
func New() (*Signal, error) { return nil, errUnsupported }

func (*Signal) Fd() int { return -1 }
func (*Signal) Set() error { return errUnsupported }
func (*Signal) Clear() error { return errUnsupported }
func (*Signal) IsSet() bool { return false }
func (*Signal) Close() error { return nil }
