// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/famtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, caps fam.Capabilities) (*fam.Session, *famtest.Conn) {
	t.Helper()
	tr := famtest.NewTransport(caps)
	s, err := fam.Open(tr, "test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, tr.Last()
}

func next(t *testing.T, s *fam.Session) fam.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := s.NextEvent(ctx)
	require.NoError(t, err)
	return ev
}

func TestSessionEventsInOrder(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp/dir")
	require.NoError(t, err)
	assert.Equal(t, fam.Directory, req.Kind())
	assert.Equal(t, "/tmp/dir", req.Path())

	c.Push(
		famtest.Event(req.Num(), fam.Created, "a.txt"),
		famtest.Event(req.Num(), fam.Changed, "a.txt"),
		famtest.Event(req.Num(), fam.Deleted, "a.txt"),
	)
	for _, code := range []fam.Code{fam.Created, fam.Changed, fam.Deleted} {
		ev := next(t, s)
		assert.Equal(t, code, ev.Code)
		assert.Equal(t, "a.txt", ev.Filename)
		assert.Equal(t, req.Num(), ev.Request)
		assert.Equal(t, fam.LocalHost, ev.Hostname)
	}
	ok, err := s.Pending()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionEventString(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	for i := 0; i < 6; i++ {
		_, err := s.MonitorFile("/tmp/f")
		require.NoError(t, err)
	}
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)
	require.Equal(t, 7, req.Num())
	c.Push(famtest.Event(7, fam.Created, "a.txt"))
	assert.Equal(t, `Created "a.txt" (7)`, next(t, s).String())
}

func TestSessionPendingDoesNotBlock(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	_, err := s.MonitorFile("/etc/passwd")
	require.NoError(t, err)

	ok, err := s.Pending()
	require.NoError(t, err)
	assert.False(t, ok)

	c.Push(famtest.Event(1, fam.Exists, "/etc/passwd"))
	ok, err = s.Pending()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionNextEventBlocksUntilPushed(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Push(famtest.Event(req.Num(), fam.Created, "late"))
	}()
	ev := next(t, s)
	assert.Equal(t, "late", ev.Filename)
}

func TestSessionCancelInvalidatesRequest(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)
	require.NoError(t, s.Cancel(req))
	assert.False(t, c.Live(req.Num()))

	_, ok := s.Request(req.Num())
	assert.False(t, ok)
	assert.ErrorIs(t, s.Suspend(req), fam.ErrInvalidRequest)
	assert.ErrorIs(t, s.Resume(req), fam.ErrInvalidRequest)
	assert.ErrorIs(t, s.Cancel(req), fam.ErrInvalidRequest)
	assert.ErrorIs(t, s.Cancel(nil), fam.ErrInvalidRequest)
}

func TestSessionEventsAfterCancel(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	s, err := fam.Open(tr, "test")
	require.NoError(t, err)
	defer s.Close()

	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)
	tr.Last().Push(famtest.Event(req.Num(), fam.Changed, "x"))
	require.NoError(t, s.Cancel(req))

	assert.Equal(t, fam.Changed, next(t, s).Code)
	assert.Equal(t, fam.Acknowledge, next(t, s).Code)
}

func TestSessionRequestNumberReuse(t *testing.T) {
	s, _ := open(t, famtest.AllCapabilities)
	old, err := s.MonitorFile("/tmp/a")
	require.NoError(t, err)
	require.NoError(t, s.Cancel(old))

	cur, err := s.MonitorFile("/tmp/b")
	require.NoError(t, err)
	require.Equal(t, old.Num(), cur.Num())

	assert.ErrorIs(t, s.Suspend(old), fam.ErrInvalidRequest)
	assert.NoError(t, s.Suspend(cur))
	assert.Equal(t, []*fam.Request{cur}, s.Requests())
}

func TestSessionStaleEventsAfterNumberReuse(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	old, err := s.MonitorDirectory("/tmp/a")
	require.NoError(t, err)
	c.Push(famtest.Event(old.Num(), fam.Created, "stale.txt"))
	require.NoError(t, s.Cancel(old))

	cur, err := s.MonitorDirectory("/tmp/b")
	require.NoError(t, err)
	require.Equal(t, old.Num(), cur.Num())
	c.Push(famtest.Event(cur.Num(), fam.Created, "fresh.txt"))

	_, ok := s.Request(cur.Num())
	assert.False(t, ok)
	for _, want := range []fam.Code{fam.Created, fam.Acknowledge} {
		ev := next(t, s)
		require.Equal(t, want, ev.Code)
		_, ok := s.Request(ev.Request)
		assert.False(t, ok, "event %v", ev)
	}

	ev := next(t, s)
	require.Equal(t, "fresh.txt", ev.Filename)
	got, ok := s.Request(ev.Request)
	require.True(t, ok)
	assert.Same(t, cur, got)
}

func TestSessionRequestWithoutAcknowledge(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	tr.Acknowledge = false
	s, err := fam.Open(tr, "test")
	require.NoError(t, err)
	defer s.Close()

	req, err := s.MonitorFile("/tmp/f")
	require.NoError(t, err)
	got, ok := s.Request(req.Num())
	require.True(t, ok)
	assert.Same(t, req, got)

	require.NoError(t, s.Cancel(req))
	_, ok = s.Request(req.Num())
	assert.False(t, ok)
}

func TestSessionsAreIndependent(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	s1, err := fam.Open(tr, "one")
	require.NoError(t, err)
	defer s1.Close()
	c1 := tr.Last()
	s2, err := fam.Open(tr, "two")
	require.NoError(t, err)
	defer s2.Close()

	r1, err := s1.MonitorFile("/tmp/shared")
	require.NoError(t, err)
	r2, err := s2.MonitorFile("/tmp/shared")
	require.NoError(t, err)

	assert.ErrorIs(t, s2.Cancel(r1), fam.ErrInvalidRequest)
	require.NoError(t, s1.Cancel(r1))
	assert.NoError(t, s2.Suspend(r2))

	c1.Push(famtest.Event(r1.Num(), fam.Changed, "/tmp/shared"))
	ok, err := s2.Pending()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s2.Requests(), 1)
	assert.Empty(t, s1.Requests())
}

func TestSessionClose(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, c.CloseCount())

	_, err = s.MonitorFile("/tmp/x")
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	assert.ErrorIs(t, s.Suspend(req), fam.ErrInvalidState)
	assert.ErrorIs(t, s.Cancel(req), fam.ErrInvalidState)
	_, err = s.Pending()
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	_, err = s.NextEvent(context.Background())
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	_, err = s.WaitHandle()
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	assert.ErrorIs(t, s.SetDebugLevel(fam.DebugOn), fam.ErrInvalidState)
	assert.Nil(t, s.Requests())
}

func TestSessionCloseFailure(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	boom := errors.New("boom")
	c.Fail(famtest.OpClose, boom)

	err := s.Close()
	var cerr *fam.CloseError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "fam: close: boom", err.Error())
	assert.NoError(t, s.Close())
}

func TestSessionCapabilitiesAfterClose(t *testing.T) {
	s, _ := open(t, famtest.AllCapabilities)
	assert.Equal(t, famtest.AllCapabilities, s.Capabilities())
	require.NoError(t, s.Close())
	assert.Equal(t, fam.Capabilities{}, s.Capabilities())
}

func TestSessionNextEventReusesContextSignal(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := s.NextEvent(ctx)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	// A signal left set by an earlier context must not spin or end the wait.
	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Push(famtest.Event(req.Num(), fam.Changed, "late"))
	}()
	assert.Equal(t, "late", next(t, s).Filename)
}

func TestSessionZeroValue(t *testing.T) {
	var s fam.Session
	_, err := s.MonitorFile("/tmp")
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	_, err = s.Pending()
	assert.ErrorIs(t, err, fam.ErrInvalidState)
	assert.NoError(t, s.Close())
}

func TestSessionCloseWakesNextEvent(t *testing.T) {
	s, _ := open(t, famtest.AllCapabilities)
	errc := make(chan error, 1)
	go func() {
		_, err := s.NextEvent(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, fam.ErrInvalidState)
	case <-time.After(5 * time.Second):
		t.Fatal("NextEvent was not woken by Close")
	}
}

func TestSessionNextEventContext(t *testing.T) {
	s, _ := open(t, famtest.AllCapabilities)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.NextEvent(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The session stays usable.
	_, err = s.MonitorFile("/tmp/f")
	assert.NoError(t, err)
}

func TestSessionProtocolErrorBreaksSession(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorDirectory("/tmp")
	require.NoError(t, err)
	c.Push(famtest.Event(req.Num(), fam.Code(99), "bad"))

	_, err = s.NextEvent(context.Background())
	var perr *fam.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "99")

	_, again := s.NextEvent(context.Background())
	assert.Equal(t, err, again)
	_, again = s.Pending()
	assert.Equal(t, err, again)
	assert.NoError(t, s.Close())
}

func TestSessionConnectionFailureBreaksSession(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	c.Fail(famtest.OpPending, errors.New("reset by peer"))

	_, err := s.Pending()
	var cerr *fam.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "reset by peer", cerr.Reason)

	_, again := s.MonitorFile("/tmp/f")
	assert.Equal(t, err, again)
}

func TestSessionMonitorErrors(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)

	_, err := s.MonitorFile("")
	var merr *fam.MonitorError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "empty path", merr.Reason)

	_, err = s.MonitorCollection("/tmp", -1, "*")
	require.ErrorAs(t, err, &merr)

	boom := errors.New("permission denied")
	c.Fail(famtest.OpMonitor, boom)
	_, err = s.MonitorFile("/root/secret")
	require.ErrorAs(t, err, &merr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `fam: monitor file "/root/secret": permission denied`, err.Error())
	assert.Empty(t, s.Requests())
}

func TestSessionCancelFailureKeepsRequest(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorFile("/tmp/f")
	require.NoError(t, err)
	c.Fail(famtest.OpCancel, errors.New("daemon busy"))

	err = s.Cancel(req)
	var merr *fam.MonitorError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, req.Num(), merr.Request)

	c.Fail(famtest.OpCancel, nil)
	assert.NoError(t, s.Cancel(req))
}

func TestSessionCollection(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	req, err := s.MonitorCollection("/src", 2, "*.go")
	require.NoError(t, err)
	assert.Equal(t, fam.Collection, req.Kind())
	assert.Equal(t, 2, req.Depth())
	assert.Equal(t, "*.go", req.Mask())

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, famtest.Call{Op: famtest.OpCollection, Kind: fam.Collection, Path: "/src", Depth: 2, Mask: "*.go"}, calls[0])
}

func TestSessionUnsupported(t *testing.T) {
	s, c := open(t, fam.Capabilities{})
	assert.Equal(t, fam.Capabilities{}, s.Capabilities())

	req, err := s.MonitorFile("/tmp/f")
	require.NoError(t, err)
	_, err = s.MonitorCollection("/tmp", 1, "*")
	assert.ErrorIs(t, err, fam.ErrUnsupported)
	assert.ErrorIs(t, s.Suspend(req), fam.ErrUnsupported)
	assert.ErrorIs(t, s.Resume(req), fam.ErrUnsupported)
	assert.ErrorIs(t, s.SetDebugLevel(fam.DebugVerbose), fam.ErrUnsupported)
	assert.ErrorIs(t, s.DisableInitialExistsEvents(), fam.ErrUnsupported)
	assert.Equal(t, []famtest.Op{famtest.OpMonitor}, c.Calls().Ops())

	// Validity is checked first.
	require.NoError(t, s.Cancel(req))
	assert.ErrorIs(t, s.Suspend(req), fam.ErrInvalidRequest)
}

func TestSessionDebugLevel(t *testing.T) {
	s, c := open(t, famtest.AllCapabilities)
	require.NoError(t, s.SetDebugLevel(fam.DebugVerbose))
	assert.Error(t, s.SetDebugLevel(fam.DebugLevel(7)))

	c.Fail(famtest.OpDebug, errors.New("gone"))
	var cerr *fam.ConnectionError
	require.ErrorAs(t, s.SetDebugLevel(fam.DebugOff), &cerr)

	_, err := s.MonitorFile("/tmp/f")
	assert.NoError(t, err)
}

func TestOpen(t *testing.T) {
	var cerr *fam.ConnectionError
	_, err := fam.Open(nil, "x")
	require.ErrorAs(t, err, &cerr)

	tr := famtest.NewTransport(famtest.AllCapabilities)
	tr.OpenErr = errors.New("no daemon")
	_, err = fam.Open(tr, "x")
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fam: open: connection error: no daemon", err.Error())
}

func TestConfigOpen(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	s, err := fam.Config{Name: "app", DebugLevel: fam.DebugOn, NoExists: true}.Open(tr)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "app", s.Name())
	assert.Equal(t, "app", tr.Last().Name())
	calls := tr.Last().Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, famtest.Call{Op: famtest.OpDebug, Level: fam.DebugOn}, calls[0])
	assert.Equal(t, famtest.OpNoExists, calls[1].Op)
}

func TestConfigOpenUnsupportedReleasesConn(t *testing.T) {
	tr := famtest.NewTransport(fam.Capabilities{})
	_, err := fam.Config{NoExists: true}.Open(tr)
	assert.ErrorIs(t, err, fam.ErrUnsupported)
	assert.Equal(t, 1, tr.Last().CloseCount())
}
