// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import "strings"

// Transport opens connections to a notification daemon.
//
// The daemon process and its wire protocol live behind this interface. See the
// local package for an in-process daemon and the remote package for a client
// of famd.
type Transport interface {
	// Open performs the handshake. The name identifies the application to the
	// daemon and may be empty.
	Open(name string) (Conn, error)
}

// Conn is a single daemon connection. Session serializes every call on a
// Conn, so implementations need not be safe for concurrent use by the
// session, with one exception: Close may run while another goroutine is
// blocked in poll(2) on the descriptor returned by Fd.
type Conn interface {
	// Monitor registers a File or Directory watch and returns the daemon's
	// request number for it.
	Monitor(kind Kind, path string) (int, error)

	// Cancel permanently removes the request. The daemon queues an
	// Acknowledge event for reqnum after the request's last event, and may
	// hand reqnum out again afterwards.
	Cancel(reqnum int) error

	// Pending reports the number of queued events without blocking.
	Pending() (int, error)

	// NextEvent reads the next queued event, blocking if there is none.
	NextEvent() (RawEvent, error)

	// Fd gives a descriptor which polls readable while events are pending.
	Fd() int

	// Close releases the connection.
	Close() error
}

// Collector is implemented by connections to daemons which support
// collection monitors.
type Collector interface {
	// MonitorCollection registers a watch over path and its subdirectories,
	// down to depth levels, restricted to names matching the glob mask.
	MonitorCollection(path string, depth int, mask string) (int, error)
}

// Suspender is implemented by connections to daemons which support pausing
// event delivery for a request.
type Suspender interface {
	Suspend(reqnum int) error
	Resume(reqnum int) error
}

// DebugLeveler is implemented by connections to daemons with adjustable
// diagnostic output.
type DebugLeveler interface {
	SetDebugLevel(level DebugLevel) error
}

// ExistsDisabler is implemented by connections to daemons which can skip the
// initial burst of Exists events sent when a monitor starts.
type ExistsDisabler interface {
	DisableExists() error
}

// Negotiator is implemented by connections that learn the daemon's feature
// set during the handshake. The reported capabilities narrow down the ones
// advertised by the optional interfaces the connection implements.
type Negotiator interface {
	Capabilities() Capabilities
}

// Capabilities describes the optional features available on a connection.
type Capabilities struct {
	Collections   bool `json:"collections,omitempty"`
	SuspendResume bool `json:"suspendResume,omitempty"`
	DebugLevel    bool `json:"debugLevel,omitempty"`
	NoExists      bool `json:"noExists,omitempty"`
}

// String implements fmt.Stringer interface.
func (c Capabilities) String() string {
	var s []string
	if c.Collections {
		s = append(s, "collections")
	}
	if c.SuspendResume {
		s = append(s, "suspend-resume")
	}
	if c.DebugLevel {
		s = append(s, "debug-level")
	}
	if c.NoExists {
		s = append(s, "no-exists")
	}
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ",")
}

func (c Capabilities) intersect(o Capabilities) Capabilities {
	return Capabilities{
		Collections:   c.Collections && o.Collections,
		SuspendResume: c.SuspendResume && o.SuspendResume,
		DebugLevel:    c.DebugLevel && o.DebugLevel,
		NoExists:      c.NoExists && o.NoExists,
	}
}

// negotiate works out the capability set of the connection.
func negotiate(c Conn) (caps Capabilities) {
	_, caps.Collections = c.(Collector)
	_, caps.SuspendResume = c.(Suspender)
	_, caps.DebugLevel = c.(DebugLeveler)
	_, caps.NoExists = c.(ExistsDisabler)
	if n, ok := c.(Negotiator); ok {
		caps = caps.intersect(n.Capabilities())
	}
	return caps
}
