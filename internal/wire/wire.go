// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package wire defines the frames exchanged between the remote transport and
// famd. Every websocket message is a single JSON encoded Frame.
//
// The client opens with a hello and waits for its reply before sending
// anything else. Every later client frame carries a sequence number which the
// daemon echoes in the matching reply; events are sent unsolicited and carry
// no sequence number.
package wire

import (
	"github.com/pkg/errors"

	"github.com/JekaMas/fam"
)

// Op identifies the purpose of a frame.
type Op string

const (
	OpHello    = Op("hello")    // client: name; reply: caps
	OpMonitor  = Op("monitor")  // client: kind, path, depth, mask; reply: request
	OpSuspend  = Op("suspend")  // client: request
	OpResume   = Op("resume")   // client: request
	OpCancel   = Op("cancel")   // client: request
	OpDebug    = Op("debug")    // client: level
	OpNoExists = Op("noexists") // client
	OpReply    = Op("reply")    // daemon: seq, and error on failure
	OpEvent    = Op("event")    // daemon: request, code, filename, host
)

// Frame is the single message type of the protocol. Unused fields are
// omitted from the encoding.
type Frame struct {
	Op       Op                `json:"op"`
	Seq      uint64            `json:"seq,omitempty"`
	Name     string            `json:"name,omitempty"`
	Kind     fam.Kind          `json:"kind,omitempty"`
	Path     string            `json:"path,omitempty"`
	Depth    int               `json:"depth,omitempty"`
	Mask     string            `json:"mask,omitempty"`
	Request  int               `json:"request,omitempty"`
	Level    fam.DebugLevel    `json:"level,omitempty"`
	Code     int               `json:"code,omitempty"`
	Filename string            `json:"filename,omitempty"`
	Host     string            `json:"host,omitempty"`
	Caps     *fam.Capabilities `json:"caps,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Reply gives a successful reply to the frame with the given sequence number.
func Reply(seq uint64) Frame {
	return Frame{Op: OpReply, Seq: seq}
}

// Failure gives a reply reporting err.
func Failure(seq uint64, err error) Frame {
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return Frame{Op: OpReply, Seq: seq, Error: msg}
}

// Event wraps a raw event reported on host.
func Event(ev fam.Event, host string) Frame {
	if ev.Hostname != "" && ev.Hostname != fam.LocalHost {
		host = ev.Hostname
	}
	return Frame{
		Op:       OpEvent,
		Request:  ev.Request,
		Code:     int(ev.Code),
		Filename: ev.Filename,
		Host:     host,
	}
}

// RawEvent extracts the event carried by an OpEvent frame.
func (f Frame) RawEvent() fam.RawEvent {
	return fam.RawEvent{
		Request:  f.Request,
		Code:     f.Code,
		Filename: f.Filename,
		Hostname: f.Host,
	}
}

// Err gives the failure reported by a reply, or nil.
func (f Frame) Err() error {
	if f.Error == "" {
		return nil
	}
	return errors.New(f.Error)
}
