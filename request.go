// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the target type of a monitor request.
type Kind int

// Monitor kinds.
const (
	File Kind = iota + 1
	Directory
	Collection
)

var kindstr = map[Kind]string{
	File:       "file",
	Directory:  "directory",
	Collection: "collection",
}

// String implements fmt.Stringer interface.
func (k Kind) String() string {
	if s, ok := kindstr[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText implements encoding.TextMarshaler interface.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindstr[k]
	if !ok {
		return nil, fmt.Errorf("fam: invalid monitor kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (k *Kind) UnmarshalText(p []byte) error {
	s := strings.ToLower(string(p))
	for kind, str := range kindstr {
		if s == str {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("fam: invalid monitor kind %q", s)
}

// Request is a handle for a registered monitor. It is only meaningful to the
// Session that issued it, and only until it is cancelled or the session is
// closed.
type Request struct {
	num   int
	gen   uint64
	sid   uint64
	kind  Kind
	path  string
	depth int
	mask  string
}

// Num gives the daemon's request number. Events produced by the request carry
// the same number. The daemon may hand the number out again after the request
// is cancelled.
func (r *Request) Num() int { return r.num }

// Kind gives the target type of the request.
func (r *Request) Kind() Kind { return r.kind }

// Path gives the monitored path.
func (r *Request) Path() string { return r.path }

// Depth gives the recursion bound of a Collection request.
func (r *Request) Depth() int { return r.depth }

// Mask gives the glob mask of a Collection request.
func (r *Request) Mask() string { return r.mask }

// String implements fmt.Stringer interface.
func (r *Request) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.kind == Collection {
		return fmt.Sprintf("%s %q depth=%d mask=%q (%d)", r.kind, r.path, r.depth, r.mask, r.num)
	}
	return fmt.Sprintf("%s %q (%d)", r.kind, r.path, r.num)
}
