// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package famtest

import (
	"sync"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
)

// Op names a Conn method.
type Op string

const (
	OpMonitor    = Op("Monitor")
	OpCollection = Op("MonitorCollection")
	OpCancel     = Op("Cancel")
	OpSuspend    = Op("Suspend")
	OpResume     = Op("Resume")
	OpPending    = Op("Pending")
	OpNextEvent  = Op("NextEvent")
	OpDebug      = Op("SetDebugLevel")
	OpNoExists   = Op("DisableExists")
	OpClose      = Op("Close")
)

// Call records a single Conn method invocation.
type Call struct {
	Op      Op
	Kind    fam.Kind
	Path    string
	Depth   int
	Mask    string
	Request int
	Level   fam.DebugLevel
}

// Spy is the ordered record of calls made on a Conn.
type Spy []Call

// Ops lists the recorded operations in order.
func (s Spy) Ops() []Op {
	ops := make([]Op, len(s))
	for i := range s {
		ops[i] = s[i].Op
	}
	return ops
}

// Conn is an in-memory daemon connection. It implements fam.Conn and every
// optional interface, restricting itself to the advertised capabilities
// through fam.Negotiator.
type Conn struct {
	mu     sync.Mutex
	cond   *sync.Cond
	name   string
	caps   fam.Capabilities
	ack    bool
	sig    *readiness.Signal
	queue  []fam.RawEvent
	reqs   map[int]bool
	fail   map[Op]error
	spy    Spy
	closes int
	closed bool
}

var (
	_ fam.Conn           = (*Conn)(nil)
	_ fam.Collector      = (*Conn)(nil)
	_ fam.Suspender      = (*Conn)(nil)
	_ fam.DebugLeveler   = (*Conn)(nil)
	_ fam.ExistsDisabler = (*Conn)(nil)
	_ fam.Negotiator     = (*Conn)(nil)
)

// Name gives the application name passed to Open.
func (c *Conn) Name() string {
	return c.name
}

// Calls gives a copy of the recorded calls.
func (c *Conn) Calls() Spy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(Spy(nil), c.spy...)
}

// CloseCount reports how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Fail makes every later call of op return err. A nil err restores normal
// behaviour.
func (c *Conn) Fail(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
		return
	}
	c.fail[op] = err
}

// Push queues events for delivery, in order.
func (c *Conn) Push(evs ...fam.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(evs...)
}

func (c *Conn) push(evs ...fam.RawEvent) {
	if c.closed || len(evs) == 0 {
		return
	}
	c.queue = append(c.queue, evs...)
	c.sig.Set()
	c.cond.Broadcast()
}

// Live reports whether the daemon considers req registered.
func (c *Conn) Live(req int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[req]
}

// record must be called with c.mu held.
func (c *Conn) record(call Call) error {
	c.spy = append(c.spy, call)
	if c.closed && call.Op != OpClose {
		return ErrClosed
	}
	return c.fail[call.Op]
}

// alloc gives the lowest request number not in use, the way a daemon reuses
// numbers of cancelled requests.
func (c *Conn) alloc() int {
	n := 1
	for c.reqs[n] {
		n++
	}
	c.reqs[n] = true
	return n
}

// Capabilities implements fam.Negotiator.
func (c *Conn) Capabilities() fam.Capabilities {
	return c.caps
}

// Monitor implements fam.Conn.
func (c *Conn) Monitor(kind fam.Kind, path string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpMonitor, Kind: kind, Path: path}); err != nil {
		return 0, err
	}
	return c.alloc(), nil
}

// MonitorCollection implements fam.Collector.
func (c *Conn) MonitorCollection(path string, depth int, mask string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := Call{Op: OpCollection, Kind: fam.Collection, Path: path, Depth: depth, Mask: mask}
	if err := c.record(call); err != nil {
		return 0, err
	}
	return c.alloc(), nil
}

// Cancel implements fam.Conn.
func (c *Conn) Cancel(req int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpCancel, Request: req}); err != nil {
		return err
	}
	if !c.reqs[req] {
		return ErrNoRequest
	}
	delete(c.reqs, req)
	if c.ack {
		c.push(Event(req, fam.Acknowledge, ""))
	}
	return nil
}

// Suspend implements fam.Suspender.
func (c *Conn) Suspend(req int) error {
	return c.request(OpSuspend, req)
}

// Resume implements fam.Suspender.
func (c *Conn) Resume(req int) error {
	return c.request(OpResume, req)
}

func (c *Conn) request(op Op, req int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: op, Request: req}); err != nil {
		return err
	}
	if !c.reqs[req] {
		return ErrNoRequest
	}
	return nil
}

// SetDebugLevel implements fam.DebugLeveler.
func (c *Conn) SetDebugLevel(level fam.DebugLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(Call{Op: OpDebug, Level: level})
}

// DisableExists implements fam.ExistsDisabler.
func (c *Conn) DisableExists() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(Call{Op: OpNoExists})
}

// Pending implements fam.Conn. Pending calls are not recorded, as sessions
// issue them while waiting.
func (c *Conn) Pending() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if err := c.fail[OpPending]; err != nil {
		return 0, err
	}
	return len(c.queue), nil
}

// NextEvent implements fam.Conn. It blocks until an event is pushed or the
// connection is closed.
func (c *Conn) NextEvent() (fam.RawEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(Call{Op: OpNextEvent}); err != nil {
		return fam.RawEvent{}, err
	}
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return fam.RawEvent{}, ErrClosed
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.sig.Clear()
	}
	return ev, nil
}

// Fd implements fam.Conn.
func (c *Conn) Fd() int {
	return c.sig.Fd()
}

// Close implements fam.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	err := c.record(Call{Op: OpClose})
	if !c.closed {
		c.closed = true
		c.queue = nil
		c.sig.Close()
		c.cond.Broadcast()
	}
	return err
}
