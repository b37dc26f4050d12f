// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/JekaMas/fam/internal/readiness"
	"github.com/JekaMas/fam/internal/trace"
)

type state int

const (
	uninitialized state = iota
	opened
	closed
)

var lastSessionID uint64

// Session is a connection to the notification daemon together with the
// monitor requests registered over it.
//
// All methods are safe for concurrent use. Calls which talk to the daemon are
// serialized, as the protocol is a single ordered stream. The zero Session is
// not open: every method except Close fails with ErrInvalidState.
type Session struct {
	mu      sync.Mutex
	state   state
	conn    Conn
	caps    Capabilities
	name    string
	reg     registry
	stale   map[int]int         // cancelled numbers whose Acknowledge is undelivered
	acked   []int               // released from stale by the next read
	err     error               // set once the event stream is broken
	wake    *readiness.Signal   // set on Close to release blocked waiters
	idle    []*readiness.Signal // reusable context wake signals
	waiters sync.WaitGroup      // goroutines polling the connection
	log     *slog.Logger
}

// Open connects to the daemon through t. Should applying the configured debug
// level or exists suppression fail, the connection is released before Open
// returns.
func (c Config) Open(t Transport) (*Session, error) {
	if t == nil {
		return nil, &ConnectionError{Op: "open", Reason: "no transport"}
	}
	log := c.Logger
	if log == nil {
		log = trace.Logger("fam")
	}
	conn, err := t.Open(c.Name)
	if err != nil {
		return nil, connError("open", err)
	}
	wake, err := readiness.New()
	if err != nil {
		conn.Close()
		return nil, connError("open", err)
	}
	sid := atomic.AddUint64(&lastSessionID, 1)
	s := &Session{
		state: opened,
		conn:  conn,
		caps:  negotiate(conn),
		name:  c.Name,
		reg:   newRegistry(sid),
		stale: make(map[int]int),
		wake:  wake,
		log:   log.With(slog.Uint64("session", sid)),
	}
	runtime.SetFinalizer(s, (*Session).finalize)
	s.log.Debug("session opened", slog.String("name", c.Name), slog.String("caps", s.caps.String()))
	if c.DebugLevel != DebugOff {
		if err := s.SetDebugLevel(c.DebugLevel); err != nil {
			s.Close()
			return nil, err
		}
	}
	if c.NoExists {
		if err := s.DisableInitialExistsEvents(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) finalize() {
	s.mu.Lock()
	leaked := s.state == opened
	s.mu.Unlock()
	if leaked {
		s.log.Warn("session garbage collected without Close", slog.String("name", s.name))
		s.Close()
	}
}

// Name gives the application name the session was opened with.
func (s *Session) Name() string {
	return s.name
}

// Capabilities gives the optional features negotiated with the daemon, or
// none once the session is closed.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != opened {
		return Capabilities{}
	}
	return s.caps
}

// Close releases the daemon connection. Goroutines blocked in NextEvent are
// woken up and fail with ErrInvalidState.
//
// Close is idempotent: closing a closed or never opened session is a nop. A
// daemon-side failure is reported as *CloseError, but the connection is
// released regardless.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != opened {
		s.mu.Unlock()
		return nil
	}
	s.state = closed
	s.wake.Set()
	n := s.reg.len()
	s.reg.clear()
	s.stale, s.acked = nil, nil
	s.mu.Unlock()

	runtime.SetFinalizer(s, nil)
	s.waiters.Wait()
	s.mu.Lock()
	idle := s.idle
	s.idle = nil
	s.mu.Unlock()
	for _, sig := range idle {
		sig.Close()
	}
	err := s.conn.Close()
	s.wake.Close()
	s.log.Debug("session closed", slog.Int("requests", n))
	if err != nil {
		return &CloseError{Reason: reason(err), Err: err}
	}
	return nil
}

// check must be called with s.mu held.
func (s *Session) check(op string) error {
	if s.state != opened {
		return opError(op, ErrInvalidState)
	}
	return s.err
}

// fail turns an error reported by the connection for a request operation
// into the error returned to the caller.
func (s *Session) fail(op, path string, num int, err error) error {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &MonitorError{Op: op, Path: path, Request: num, Reason: reason(err), Err: err}
}

// broken marks the event stream as unusable. Must be called with s.mu held.
func (s *Session) broken(err error) error {
	if s.err == nil {
		s.err = err
		s.log.Warn("session broken", slog.Any("err", err))
	}
	return s.err
}

func connError(op string, err error) error {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &ConnectionError{Op: op, Reason: reason(err), Err: err}
}

// MonitorFile registers a watch for a single file. Events report the
// monitored path as their file name.
func (s *Session) MonitorFile(path string) (*Request, error) {
	return s.monitor(File, path, 0, "")
}

// MonitorDirectory registers a watch for a directory. Events report names of
// the children relative to path.
func (s *Session) MonitorDirectory(path string) (*Request, error) {
	return s.monitor(Directory, path, 0, "")
}

// MonitorCollection registers a watch for a directory subtree, depth levels
// deep (0 means the directory itself only), restricted to names matching the
// glob mask. It fails with ErrUnsupported unless the daemon supports
// collections.
func (s *Session) MonitorCollection(path string, depth int, mask string) (*Request, error) {
	return s.monitor(Collection, path, depth, mask)
}

func (s *Session) monitor(kind Kind, path string, depth int, mask string) (*Request, error) {
	op := "monitor " + kind.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(op); err != nil {
		return nil, err
	}
	switch {
	case path == "":
		return nil, &MonitorError{Op: op, Path: path, Reason: "empty path"}
	case depth < 0:
		return nil, &MonitorError{Op: op, Path: path, Reason: "negative depth"}
	}
	var (
		num int
		err error
	)
	if kind == Collection {
		col, ok := s.conn.(Collector)
		if !ok || !s.caps.Collections {
			return nil, opError(op, ErrUnsupported)
		}
		num, err = col.MonitorCollection(path, depth, mask)
	} else {
		num, err = s.conn.Monitor(kind, path)
	}
	if err != nil {
		return nil, s.fail(op, path, 0, err)
	}
	req := s.reg.add(num, kind, path, depth, mask)
	s.log.Debug("monitor registered", slog.String("request", req.String()))
	return req, nil
}

// Suspend pauses event delivery for req. It fails with ErrUnsupported unless
// the daemon supports suspension.
func (s *Session) Suspend(req *Request) error {
	return s.control("suspend", req)
}

// Resume restarts event delivery for a suspended req. It fails with
// ErrUnsupported unless the daemon supports suspension.
func (s *Session) Resume(req *Request) error {
	return s.control("resume", req)
}

// Cancel permanently invalidates req. Events queued before the cancellation
// may still be delivered afterwards, up to the Acknowledge event the daemon
// sends for the cancelled request.
func (s *Session) Cancel(req *Request) error {
	return s.control("cancel", req)
}

func (s *Session) control(op string, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(op); err != nil {
		return err
	}
	if !s.reg.valid(req) {
		return opError(op, ErrInvalidRequest)
	}
	var err error
	switch op {
	case "suspend", "resume":
		sp, ok := s.conn.(Suspender)
		if !ok || !s.caps.SuspendResume {
			return opError(op, ErrUnsupported)
		}
		if op == "suspend" {
			err = sp.Suspend(req.num)
		} else {
			err = sp.Resume(req.num)
		}
	case "cancel":
		err = s.conn.Cancel(req.num)
	}
	if err != nil {
		return s.fail(op, "", req.num, err)
	}
	if op == "cancel" {
		s.reg.del(req)
		s.stale[req.num]++
	}
	s.log.Debug("request "+op, slog.String("request", req.String()))
	return nil
}

// Request looks up the live request with the given number, which correlates
// an Event with the request that produced it. It reports false for events of
// cancelled requests.
//
// A cancelled request's number may be handed out again before its remaining
// events are delivered. Until NextEvent has returned the Acknowledge for the
// cancelled request and then one more event, the number is ambiguous and
// Request reports false for it.
func (s *Session) Request(num int) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != opened || s.stale[num] > 0 {
		return nil, false
	}
	return s.reg.lookup(num)
}

// Requests lists the live requests ordered by request number.
func (s *Session) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != opened {
		return nil
	}
	return s.reg.list()
}

// Pending reports whether at least one event is queued. It never blocks.
func (s *Session) Pending() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("pending"); err != nil {
		return false, err
	}
	n, err := s.conn.Pending()
	if err != nil {
		return false, s.broken(connError("pending", err))
	}
	return n > 0, nil
}

// NextEvent returns the next event, blocking the calling goroutine until one
// is available, ctx is done, or the session is closed.
//
// The wait is a poll(2) on the connection's wait handle and never holds the
// session lock, so other goroutines may keep registering and cancelling
// requests meanwhile. An unrecognized event code fails with *ProtocolError
// and breaks the session, as does any connection failure.
func (s *Session) NextEvent(ctx context.Context) (Event, error) {
	var (
		wake []int
		sig  *readiness.Signal
	)
	if ctx.Done() != nil {
		var err error
		if sig, err = s.signal(); err != nil {
			return Event{}, err
		}
		stop := context.AfterFunc(ctx, func() { sig.Set() })
		defer func() {
			stop()
			s.release(sig)
		}()
		wake = append(wake, sig.Fd())
	}
	hup := false
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		s.mu.Lock()
		if err := s.check("next event"); err != nil {
			s.mu.Unlock()
			return Event{}, err
		}
		n, err := s.conn.Pending()
		if err != nil {
			err = s.broken(connError("next event", err))
			s.mu.Unlock()
			return Event{}, err
		}
		if n > 0 {
			ev, err := s.read()
			s.mu.Unlock()
			return ev, err
		}
		if hup {
			err = s.broken(&ConnectionError{Op: "next event", Reason: "connection hung up"})
			s.mu.Unlock()
			return Event{}, err
		}
		fd := s.conn.Fd()
		s.waiters.Add(1)
		s.mu.Unlock()

		res, err := waitReadable(fd, append(wake, s.wake.Fd())...)
		s.waiters.Done()
		if err != nil {
			s.mu.Lock()
			if s.state == opened {
				err = s.broken(connError("next event", err))
			} else {
				err = opError("next event", ErrInvalidState)
			}
			s.mu.Unlock()
			return Event{}, err
		}
		switch res {
		case hangup:
			hup = true
		case woken:
			if sig != nil {
				sig.Clear()
			}
		}
	}
}

// signal takes an idle context wake signal or makes a new one.
func (s *Session) signal() (*readiness.Signal, error) {
	s.mu.Lock()
	if n := len(s.idle); n > 0 {
		sig := s.idle[n-1]
		s.idle = s.idle[:n-1]
		s.mu.Unlock()
		return sig, nil
	}
	s.mu.Unlock()
	return readiness.New()
}

func (s *Session) release(sig *readiness.Signal) {
	sig.Clear()
	s.mu.Lock()
	if s.state == opened {
		s.idle = append(s.idle, sig)
		sig = nil
	}
	s.mu.Unlock()
	if sig != nil {
		sig.Close()
	}
}

// read decodes one event. Must be called with s.mu held.
func (s *Session) read() (Event, error) {
	for _, num := range s.acked {
		if s.stale[num]--; s.stale[num] <= 0 {
			delete(s.stale, num)
		}
	}
	s.acked = s.acked[:0]
	raw, err := s.conn.NextEvent()
	if err != nil {
		return Event{}, s.broken(connError("next event", err))
	}
	ev, err := DecodeEvent(raw)
	if err != nil {
		return Event{}, s.broken(err)
	}
	if ev.Code == Acknowledge && s.stale[ev.Request] > 0 {
		s.acked = append(s.acked, ev.Request)
	}
	return ev, nil
}

// WaitHandle gives the descriptor which polls readable while events are
// pending, for callers integrating the session into their own event loop.
// The descriptor is owned by the session and must not be closed.
func (s *Session) WaitHandle() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("wait handle"); err != nil {
		return -1, err
	}
	return s.conn.Fd(), nil
}

// SetDebugLevel adjusts daemon-side diagnostics. It fails with ErrUnsupported
// unless the daemon supports it.
func (s *Session) SetDebugLevel(level DebugLevel) error {
	const op = "set debug level"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(op); err != nil {
		return err
	}
	if !level.Valid() {
		return opError(op, errors.New("invalid level "+level.String()))
	}
	dl, ok := s.conn.(DebugLeveler)
	if !ok || !s.caps.DebugLevel {
		return opError(op, ErrUnsupported)
	}
	if err := dl.SetDebugLevel(level); err != nil {
		return connError(op, err)
	}
	s.log.Debug("debug level set", slog.String("level", level.String()))
	return nil
}

// DisableInitialExistsEvents stops the daemon from sending the Exists burst
// for monitors registered afterwards. The caller's view of pre-existing
// directory contents may then diverge from the daemon's. It fails with
// ErrUnsupported unless the daemon supports it.
func (s *Session) DisableInitialExistsEvents() error {
	const op = "disable exists events"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(op); err != nil {
		return err
	}
	ed, ok := s.conn.(ExistsDisabler)
	if !ok || !s.caps.NoExists {
		return opError(op, ErrUnsupported)
	}
	if err := ed.DisableExists(); err != nil {
		return connError(op, err)
	}
	return nil
}
