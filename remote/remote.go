// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package remote implements a fam.Transport talking to a famd daemon over a
// websocket. Events carry the host name of the daemon that produced them.
package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
	"github.com/JekaMas/fam/internal/trace"
	"github.com/JekaMas/fam/internal/wire"
)

// DefaultTimeout bounds dialing and every request/reply round trip.
const DefaultTimeout = 10 * time.Second

// Option configures a Transport.
type Option func(*Transport)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(t *Transport) { t.header = h }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// Transport dials a famd daemon.
type Transport struct {
	url     string
	dialer  *websocket.Dialer
	header  http.Header
	timeout time.Duration
}

var _ fam.Transport = (*Transport)(nil)

// New gives a Transport for the daemon listening at url, for example
// "ws://build-01:4321/fam".
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:     url,
		dialer:  websocket.DefaultDialer,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open dials the daemon and performs the hello handshake, which reports the
// capabilities of the daemon.
func (t *Transport) Open(name string) (fam.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	ws, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: dial %s", t.url)
	}
	sig, err := readiness.New()
	if err != nil {
		ws.Close()
		return nil, errors.Wrap(err, "remote: creating wait handle")
	}
	c := &conn{
		ws:      ws,
		timeout: t.timeout,
		sig:     sig,
		waiting: make(map[uint64]chan wire.Frame),
		done:    make(chan struct{}),
		log:     trace.Logger("remote").With("url", t.url),
	}
	c.cond.L = &c.mu
	go c.loop()
	reply, err := c.call(wire.Frame{Op: wire.OpHello, Name: name})
	if err != nil {
		c.Close()
		return nil, err
	}
	if reply.Caps != nil {
		c.caps = *reply.Caps
	}
	c.log.Debug("connected", "caps", c.caps.String())
	return c, nil
}
