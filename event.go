// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"fmt"
	"strconv"
)

// Code represents the type of change reported by the daemon.
//
// The numeric values are fixed by the FAM protocol and are stable.
type Code int

// Event codes.
const (
	Unknown        Code = iota // daemon could not classify the change
	Changed                    // file contents or attributes changed
	Deleted                    // file was removed
	StartExecuting             // file started executing
	StopExecuting              // file stopped executing
	Created                    // file was created
	Moved                      // file was moved
	Acknowledge                // monitor request was cancelled
	Exists                     // file existed when the monitor was set up
	EndExists                  // end of the initial Exists burst

	// Ack is a short alias for Acknowledge.
	Ack = Acknowledge
)

var codestr = [...]string{
	Unknown:        "Unknown",
	Changed:        "Changed",
	Deleted:        "Deleted",
	StartExecuting: "StartExecuting",
	StopExecuting:  "StopExecuting",
	Created:        "Created",
	Moved:          "Moved",
	Acknowledge:    "Acknowledge",
	Exists:         "Exists",
	EndExists:      "EndExists",
}

// Valid reports whether c is one of the codes defined by the protocol.
//
// Note that Unknown is a valid code: the daemon reports it on its own.
func (c Code) Valid() bool {
	return c >= Unknown && c <= EndExists
}

// String implements fmt.Stringer interface.
func (c Code) String() string {
	if c.Valid() {
		return codestr[c]
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// LocalHost is reported as the event host when the daemon does not say
// where the change originated.
const LocalHost = "localhost"

// RawEvent is an undecoded event as read off a daemon connection.
type RawEvent struct {
	Request  int    // request number the event belongs to
	Code     int    // protocol event code
	Filename string // name as reported by the daemon
	Hostname string // empty when the daemon has no remote support
}

// Event describes a single change reported by the daemon.
//
// For directory and collection monitors Filename is relative to the monitored
// directory; for file monitors it is the monitored path itself. Events carry
// the request number only: an event queued before its request was cancelled
// may still be delivered and must be tolerated.
type Event struct {
	Request  int
	Code     Code
	Filename string
	Hostname string
}

// String gives a human-readable rendering of the event, e.g.:
//
//	Created "a.txt" (7)
func (e Event) String() string {
	return e.Code.String() + ` "` + e.Filename + `" (` + strconv.Itoa(e.Request) + ")"
}

// DecodeEvent converts a raw event into an Event.
//
// An event code outside of the protocol enumeration is reported as a
// *ProtocolError; it is never mapped onto Unknown.
func DecodeEvent(raw RawEvent) (Event, error) {
	code := Code(raw.Code)
	if !code.Valid() {
		return Event{}, &ProtocolError{
			Reason: fmt.Sprintf("unrecognized event code %d for request %d", raw.Code, raw.Request),
		}
	}
	host := raw.Hostname
	if host == "" {
		host = LocalHost
	}
	return Event{
		Request:  raw.Request,
		Code:     code,
		Filename: raw.Filename,
		Hostname: host,
	}, nil
}
