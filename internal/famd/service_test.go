// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package famd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JekaMas/fam/famtest"
)

func TestSupervisorStopsOnCancel(t *testing.T) {
	cfg := Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Hostname = "test-host"
	srv := NewServer(cfg, famtest.NewTransport(famtest.AllCapabilities))
	assert.Equal(t, "test-host", srv.Hostname())

	ctx, cancel := context.WithCancel(context.Background())
	errc := NewSupervisor(srv).ServeBackground(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error %v", err)
	case <-time.After(2 * ServiceTimeout):
		t.Fatal("supervisor did not stop")
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	cfg := Default()
	cfg.Listen = "256.0.0.1:bad"
	svc := &httpService{srv: NewServer(cfg, famtest.NewTransport(famtest.AllCapabilities))}
	svc.log = svc.srv.log
	err := svc.Serve(context.Background())
	assert.ErrorContains(t, err, "famd: listen")
	assert.Equal(t, "famd.http@256.0.0.1:bad", svc.String())
}
