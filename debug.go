// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"fmt"
	"strconv"
	"strings"
)

// DebugLevel controls the verbosity of daemon-side diagnostics.
type DebugLevel int

// Debug levels, fixed by the protocol.
const (
	DebugOff     DebugLevel = iota // no diagnostics
	DebugOn                        // regular diagnostics
	DebugVerbose                   // everything the daemon can tell
)

var levelstr = [...]string{
	DebugOff:     "off",
	DebugOn:      "on",
	DebugVerbose: "verbose",
}

// Valid reports whether l is one of the protocol debug levels.
func (l DebugLevel) Valid() bool {
	return l >= DebugOff && l <= DebugVerbose
}

// String implements fmt.Stringer interface.
func (l DebugLevel) String() string {
	if l.Valid() {
		return levelstr[l]
	}
	return "DebugLevel(" + strconv.Itoa(int(l)) + ")"
}

// MarshalText implements encoding.TextMarshaler interface.
func (l DebugLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("fam: invalid debug level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (l *DebugLevel) UnmarshalText(p []byte) error {
	v, err := ParseDebugLevel(string(p))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseDebugLevel parses either the level name or its numeric value.
func ParseDebugLevel(s string) (DebugLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, str := range levelstr {
		if s == str {
			return DebugLevel(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && DebugLevel(n).Valid() {
		return DebugLevel(n), nil
	}
	return DebugOff, fmt.Errorf("fam: invalid debug level %q", s)
}
