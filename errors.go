// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidRequest is returned when a Request is used after it was
	// cancelled, after its session was closed, or with a session that did not
	// issue it.
	ErrInvalidRequest = errors.New("invalid monitor request")

	// ErrInvalidState is returned by operations on a session that was never
	// opened or was already closed.
	ErrInvalidState = errors.New("session is not open")

	// ErrUnsupported is returned by operations which depend on a capability
	// the daemon does not provide.
	ErrUnsupported = errors.New("operation not supported by daemon")
)

const unknownReason = "unknown error"

// reason gives the daemon's own diagnostic text for err.
func reason(err error) string {
	if err == nil || err.Error() == "" {
		return unknownReason
	}
	return err.Error()
}

// ConnectionError reports that the daemon is unreachable, rejected the
// handshake, or the link broke mid-session. A session that reported a
// ConnectionError from its event stream is not resumable.
type ConnectionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	return "fam: " + e.Op + ": connection error: " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MonitorError reports that the daemon rejected a monitor registration or a
// lifecycle operation on an existing request. Local session state is not
// affected by the failure.
type MonitorError struct {
	Op      string
	Path    string
	Request int
	Reason  string
	Err     error
}

func (e *MonitorError) Error() string {
	if e.Path != "" {
		return "fam: " + e.Op + ` "` + e.Path + `": ` + e.Reason
	}
	return "fam: " + e.Op + " request " + strconv.Itoa(e.Request) + ": " + e.Reason
}

func (e *MonitorError) Unwrap() error { return e.Err }

// CloseError reports a daemon-side failure while closing the connection.
// The connection is released regardless.
type CloseError struct {
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	return "fam: close: " + e.Reason
}

func (e *CloseError) Unwrap() error { return e.Err }

// ProtocolError reports malformed or unrecognized data read from the daemon.
// The event stream can no longer be trusted; the session must be closed.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "fam: protocol error: " + e.Reason
}

func opError(op string, err error) error {
	return &opErr{op: op, err: err}
}

// opErr attaches an operation name to one of the sentinel errors.
type opErr struct {
	op  string
	err error
}

func (e *opErr) Error() string { return "fam: " + e.op + ": " + e.err.Error() }
func (e *opErr) Unwrap() error { return e.err }
