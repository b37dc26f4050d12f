// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build !unix

package fam

import "errors"

type waitResult int

const (
	woken waitResult = iota
	readable
	hangup
)

func waitReadable(fd int, wake ...int) (waitResult, error) {
	return woken, errors.New("waiting on descriptors is not supported on this platform")
}
