// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build unix

// Package readiness implements a level-triggered readiness flag backed by a
// pipe, so that "events are queued" can be observed with select(2)/poll(2)
// on a plain file descriptor.
package readiness

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a closed Signal.
var ErrClosed = errors.New("readiness: signal closed")

// Signal is readable through Fd exactly while it is set.
type Signal struct {
	mu     sync.Mutex
	r, w   int
	set    bool
	closed bool
}

// New creates a cleared Signal.
func New() (*Signal, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &Signal{r: p[0], w: p[1]}, nil
}

// Fd gives the descriptor that polls readable while the signal is set.
func (s *Signal) Fd() int {
	return s.r
}

// Set marks the signal. Setting a set signal is a nop.
func (s *Signal) Set() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.set {
		return nil
	}
	if _, err := unix.Write(s.w, []byte{1}); err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	s.set = true
	return nil
}

// Clear unmarks the signal and drains the pipe.
func (s *Signal) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.set {
		return nil
	}
	var buf [16]byte
drain:
	for {
		n, err := unix.Read(s.r, buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			break drain
		case err != nil:
			return os.NewSyscallError("read", err)
		case n < len(buf):
			break drain
		}
	}
	s.set = false
	return nil
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Close releases both ends of the pipe. It is safe to call more than once.
func (s *Signal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := unix.Close(s.w)
	if e := unix.Close(s.r); err == nil {
		err = e
	}
	return err
}
