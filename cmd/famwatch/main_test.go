// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/famtest"
	"github.com/JekaMas/fam/internal/trace"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewEvent(t *testing.T) {
	s, err := fam.Open(famtest.NewTransport(famtest.AllCapabilities), "t")
	require.NoError(t, err)
	defer s.Close()
	dir, err := s.MonitorDirectory("/var/spool")
	require.NoError(t, err)
	file, err := s.MonitorFile("/etc/hosts")
	require.NoError(t, err)

	cases := []struct {
		ev   fam.Event
		req  *fam.Request
		want Event
	}{
		{
			fam.Event{Request: 1, Code: fam.Created, Filename: "job.1", Hostname: "localhost"},
			dir,
			Event{Path: "/var/spool/job.1", Event: "created", Request: 1, Host: "localhost"},
		},
		{
			fam.Event{Request: 2, Code: fam.Changed, Filename: "/etc/hosts", Hostname: "localhost"},
			file,
			Event{Path: "/etc/hosts", Event: "changed", Request: 2, Host: "localhost"},
		},
		{
			fam.Event{Request: 9, Code: fam.EndExists, Filename: "x"},
			nil,
			Event{Path: "x", Event: "endexists", Request: 9},
		},
	}
	for i, cas := range cases {
		assert.Equal(t, cas.want, NewEvent(cas.ev, cas.req), "case %d", i)
	}
}

func TestHandlerRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	h, err := NewHandler(`echo "{{.Event}} {{.Path}}" "$FAM_EVENT" "$FAM_REQUEST"`, trace.Logger("famwatch"))
	require.NoError(t, err)
	var out bytes.Buffer
	h.Stdout = &out
	require.NoError(t, h.Run(Event{Path: "/tmp/a", Event: "created", Request: 3}))
	assert.Equal(t, "created /tmp/a created 3\n", out.String())

	_, err = NewHandler("{{.Path", nil)
	assert.Error(t, err)
}

func TestRunPrintsEvents(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	cli := CLI{Paths: []string{"/srv"}, Name: "famwatch", Depth: 2, Mask: "*.log"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- cli.Run(ctx, tr, &out) }()

	require.Eventually(t, func() bool {
		c := tr.Last()
		return c != nil && c.Live(1)
	}, 5*time.Second, 10*time.Millisecond)
	c := tr.Last()
	assert.Equal(t, famtest.Call{Op: famtest.OpCollection, Kind: fam.Collection, Path: "/srv", Depth: 2, Mask: "*.log"}, c.Calls()[0])

	c.Push(famtest.Event(1, fam.Created, "app/error.log"), famtest.Event(1, fam.Deleted, "old.log"))
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Created \"app/error.log\" (1)\nDeleted \"old.log\" (1)\n", out.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, 1, c.CloseCount())
}

// failMonitor opens connections on which every monitor fails.
type failMonitor struct{ *famtest.Transport }

func (f failMonitor) Open(name string) (fam.Conn, error) {
	c, err := f.Transport.Open(name)
	if err == nil {
		c.(*famtest.Conn).Fail(famtest.OpMonitor, errors.New("not a directory"))
	}
	return c, err
}

func TestRunFallsBackToFileMonitor(t *testing.T) {
	tr := famtest.NewTransport(famtest.AllCapabilities)
	cli := CLI{Paths: []string{"/etc/hosts"}, Remote: "ws://unused"}

	err := cli.Run(context.Background(), failMonitor{tr}, &syncBuffer{})
	var merr *fam.MonitorError
	require.ErrorAs(t, err, &merr)

	calls := tr.Last().Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, famtest.Call{Op: famtest.OpMonitor, Kind: fam.Directory, Path: "/etc/hosts"}, calls[0])
	assert.Equal(t, famtest.Call{Op: famtest.OpMonitor, Kind: fam.File, Path: "/etc/hosts"}, calls[1])
	assert.Equal(t, famtest.OpClose, calls[2].Op)
}
