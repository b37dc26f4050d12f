// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package remote

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
	"github.com/JekaMas/fam/internal/wire"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("remote: connection closed")

type conn struct {
	ws      *websocket.Conn
	timeout time.Duration
	caps    fam.Capabilities
	wmu     sync.Mutex // serializes writers
	mu      sync.Mutex
	cond    sync.Cond
	seq     uint64
	waiting map[uint64]chan wire.Frame
	queue   []fam.RawEvent
	err     error // receive failure, reported once the queue drains
	closed  bool
	sig     *readiness.Signal
	done    chan struct{}
	log     *slog.Logger
}

var (
	_ fam.Conn           = (*conn)(nil)
	_ fam.Collector      = (*conn)(nil)
	_ fam.Suspender      = (*conn)(nil)
	_ fam.DebugLeveler   = (*conn)(nil)
	_ fam.ExistsDisabler = (*conn)(nil)
	_ fam.Negotiator     = (*conn)(nil)
)

func (c *conn) loop() {
	defer close(c.done)
	for {
		var f wire.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.fail(err)
			return
		}
		switch f.Op {
		case wire.OpReply:
			c.mu.Lock()
			ch := c.waiting[f.Seq]
			delete(c.waiting, f.Seq)
			c.mu.Unlock()
			if ch == nil {
				c.log.Warn("unsolicited reply", slog.Uint64("seq", f.Seq))
				continue
			}
			ch <- f
		case wire.OpEvent:
			c.mu.Lock()
			c.queue = append(c.queue, f.RawEvent())
			c.sig.Set()
			c.cond.Broadcast()
			c.mu.Unlock()
		default:
			c.log.Warn("unexpected frame", slog.String("op", string(f.Op)))
		}
	}
}

// fail breaks the connection after a receive failure. Waiting callers are
// released and the wait handle is left readable, so that a blocked session
// notices.
func (c *conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.err = &fam.ConnectionError{Op: "receive", Reason: err.Error(), Err: err}
		c.log.Warn("connection lost", slog.Any("err", err))
	} else {
		c.err = ErrClosed
	}
	for seq, ch := range c.waiting {
		close(ch)
		delete(c.waiting, seq)
	}
	c.sig.Set()
	c.cond.Broadcast()
}

// call sends f and waits for the matching reply. A failure reported by the
// daemon is returned as a plain error; transport failures are
// *fam.ConnectionError.
func (c *conn) call(f wire.Frame) (wire.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.Frame{}, ErrClosed
	}
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return wire.Frame{}, err
	}
	c.seq++
	f.Seq = c.seq
	ch := make(chan wire.Frame, 1)
	c.waiting[f.Seq] = ch
	c.mu.Unlock()

	if err := c.write(f); err != nil {
		c.forget(f.Seq)
		return wire.Frame{}, &fam.ConnectionError{Op: string(f.Op), Reason: err.Error(), Err: err}
	}
	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return wire.Frame{}, err
		}
		return reply, reply.Err()
	case <-t.C:
		c.forget(f.Seq)
		return wire.Frame{}, &fam.ConnectionError{
			Op:     string(f.Op),
			Reason: "no reply within " + c.timeout.String(),
		}
	}
}

func (c *conn) forget(seq uint64) {
	c.mu.Lock()
	delete(c.waiting, seq)
	c.mu.Unlock()
}

func (c *conn) write(f wire.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	return errors.Wrap(c.ws.WriteJSON(f), "remote: write")
}

// Capabilities implements fam.Negotiator.
func (c *conn) Capabilities() fam.Capabilities {
	return c.caps
}

// Monitor implements fam.Conn.
func (c *conn) Monitor(kind fam.Kind, path string) (int, error) {
	reply, err := c.call(wire.Frame{Op: wire.OpMonitor, Kind: kind, Path: path})
	return reply.Request, err
}

// MonitorCollection implements fam.Collector.
func (c *conn) MonitorCollection(path string, depth int, mask string) (int, error) {
	reply, err := c.call(wire.Frame{
		Op:    wire.OpMonitor,
		Kind:  fam.Collection,
		Path:  path,
		Depth: depth,
		Mask:  mask,
	})
	return reply.Request, err
}

// Cancel implements fam.Conn.
func (c *conn) Cancel(num int) error {
	_, err := c.call(wire.Frame{Op: wire.OpCancel, Request: num})
	return err
}

// Suspend implements fam.Suspender.
func (c *conn) Suspend(num int) error {
	_, err := c.call(wire.Frame{Op: wire.OpSuspend, Request: num})
	return err
}

// Resume implements fam.Suspender.
func (c *conn) Resume(num int) error {
	_, err := c.call(wire.Frame{Op: wire.OpResume, Request: num})
	return err
}

// SetDebugLevel implements fam.DebugLeveler.
func (c *conn) SetDebugLevel(l fam.DebugLevel) error {
	_, err := c.call(wire.Frame{Op: wire.OpDebug, Level: l})
	return err
}

// DisableExists implements fam.ExistsDisabler.
func (c *conn) DisableExists() error {
	_, err := c.call(wire.Frame{Op: wire.OpNoExists})
	return err
}

// Pending implements fam.Conn. Queued events are delivered before a receive
// failure is reported.
func (c *conn) Pending() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return 0, ErrClosed
	case len(c.queue) != 0:
		return len(c.queue), nil
	}
	return 0, c.err
}

// NextEvent implements fam.Conn.
func (c *conn) NextEvent() (fam.RawEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && c.err == nil && !c.closed {
		c.cond.Wait()
	}
	switch {
	case c.closed:
		return fam.RawEvent{}, ErrClosed
	case len(c.queue) == 0:
		return fam.RawEvent{}, c.err
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	if len(c.queue) == 0 && c.err == nil {
		c.sig.Clear()
	}
	return ev, nil
}

// Fd implements fam.Conn.
func (c *conn) Fd() int {
	return c.sig.Fd()
}

// Close implements fam.Conn. It says goodbye to the daemon and waits for the
// receiving goroutine to finish.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wmu.Unlock()
	err := c.ws.Close()
	<-c.done
	c.sig.Close()
	return errors.Wrap(err, "remote: close")
}
