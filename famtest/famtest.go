// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package famtest provides a scriptable in-memory daemon for testing code
// built on fam sessions.
//
// A Transport hands out Conns which record every call made on them and
// deliver whatever events the test pushes:
//
//	tr := famtest.NewTransport(famtest.AllCapabilities)
//	s, _ := fam.Open(tr, "test")
//	req, _ := s.MonitorDirectory("/tmp")
//	tr.Last().Push(famtest.Event(req.Num(), fam.Created, "a.txt"))
package famtest

import (
	"errors"
	"sync"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
)

// AllCapabilities enables every optional feature.
var AllCapabilities = fam.Capabilities{
	Collections:   true,
	SuspendResume: true,
	DebugLevel:    true,
	NoExists:      true,
}

// ErrNoRequest is returned for operations naming a request number the
// daemon does not know.
var ErrNoRequest = errors.New("famtest: no such request")

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("famtest: connection closed")

// Event builds a raw event for the given request.
func Event(req int, code fam.Code, filename string) fam.RawEvent {
	return fam.RawEvent{Request: req, Code: int(code), Filename: filename}
}

// Transport opens Conns advertising Caps.
type Transport struct {
	// Caps are advertised by every Conn opened afterwards.
	Caps fam.Capabilities

	// OpenErr, when non-nil, fails every Open.
	OpenErr error

	// Acknowledge makes Cancel queue an Acknowledge event for the request.
	// NewTransport turns it on.
	Acknowledge bool

	mu    sync.Mutex
	conns []*Conn
}

// NewTransport gives a Transport advertising caps.
func NewTransport(caps fam.Capabilities) *Transport {
	return &Transport{Caps: caps, Acknowledge: true}
}

// Open implements fam.Transport.
func (t *Transport) Open(name string) (fam.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	sig, err := readiness.New()
	if err != nil {
		return nil, err
	}
	c := &Conn{
		name: name,
		caps: t.Caps,
		ack:  t.Acknowledge,
		sig:  sig,
		reqs: make(map[int]bool),
		fail: make(map[Op]error),
	}
	c.cond = sync.NewCond(&c.mu)
	t.conns = append(t.conns, c)
	return c, nil
}

// Conns lists the connections opened so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Last gives the most recently opened connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}
