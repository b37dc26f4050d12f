// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build unix

package fam

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var errBadHandle = errors.New("wait handle is not a valid descriptor")

// waitResult tells what woke up waitReadable.
type waitResult int

const (
	woken    waitResult = iota // one of the wake descriptors became readable
	readable                   // the wait handle became readable
	hangup                     // the wait handle reported hang-up or error
)

// waitReadable blocks in poll(2) until fd or any of the wake descriptors
// becomes readable. It never times out.
func waitReadable(fd int, wake ...int) (waitResult, error) {
	fds := make([]unix.PollFd, 0, 1+len(wake))
	fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	for _, w := range wake {
		fds = append(fds, unix.PollFd{Fd: int32(w), Events: unix.POLLIN})
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return woken, os.NewSyscallError("poll", err)
		}
		break
	}
	for _, p := range fds[1:] {
		if p.Revents != 0 {
			return woken, nil
		}
	}
	switch rev := fds[0].Revents; {
	case rev&unix.POLLNVAL != 0:
		return woken, errBadHandle
	case rev&unix.POLLIN != 0:
		return readable, nil
	case rev&(unix.POLLHUP|unix.POLLERR) != 0:
		return hangup, nil
	}
	return woken, nil
}
