// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package famd implements the file alteration monitor daemon served to remote
// clients. Every websocket client gets its own fam.Session, by default over
// the local transport, and receives the events of that session stamped with
// the daemon's host name.
package famd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/trace"
	"github.com/JekaMas/fam/internal/wire"
	"github.com/JekaMas/fam/local"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

var (
	errNoRequest = errors.New("no such request")
	errNotHello  = errors.New("expected hello")
	errForbidden = errors.New("path is outside the exported roots")
)

// Server serves the daemon protocol over websockets.
type Server struct {
	cfg       Config
	host      string
	transport fam.Transport
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
	log       *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer gives a server for cfg. Client sessions are opened through t; a
// nil t means the local file system.
func NewServer(cfg Config, t fam.Transport) *Server {
	if t == nil {
		t = local.New(local.WithBuffer(cfg.Buffer))
	}
	host := cfg.Hostname
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = fam.LocalHost
		}
	}
	s := &Server{
		cfg:       cfg,
		host:      host,
		transport: t,
		upgrader:  websocket.Upgrader{HandshakeTimeout: handshakeTimeout},
		mux:       http.NewServeMux(),
		log:       trace.Logger("famd"),
		clients:   make(map[*client]struct{}),
	}
	s.mux.HandleFunc(cfg.Path, s.serveWS)
	if cfg.Metrics != "-" {
		s.mux.Handle(cfg.Metrics, promhttp.Handler())
	}
	return s
}

// Hostname gives the name stamped on events.
func (s *Server) Hostname() string {
	return s.host
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close disconnects every client. Websockets are hijacked connections, so
// http.Server.Shutdown does not do it.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.ws.Close()
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("websocket upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}
	c := &client{
		srv:  s,
		ws:   ws,
		reqs: make(map[int]*fam.Request),
		log:  s.log.With(slog.String("remote", r.RemoteAddr)),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	metricClients.Inc()
	defer func() {
		metricClients.Dec()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()
	c.serve()
}

type client struct {
	srv  *Server
	ws   *websocket.Conn
	wmu  sync.Mutex
	sess *fam.Session
	reqs map[int]*fam.Request // owned by the reading goroutine
	log  *slog.Logger
}

func (c *client) serve() {
	defer c.ws.Close()
	if err := c.hello(); err != nil {
		c.log.Info("handshake failed", slog.Any("err", err))
		return
	}
	c.log.Info("client connected", slog.String("name", c.sess.Name()))

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		c.pump()
	}()
	for {
		var f wire.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("read failed", slog.Any("err", err))
			}
			break
		}
		if err := c.send(c.handle(f)); err != nil {
			c.log.Info("write failed", slog.Any("err", err))
			break
		}
	}
	if err := c.sess.Close(); err != nil {
		c.log.Warn("closing session", slog.Any("err", err))
	}
	<-pumped
	c.log.Info("client disconnected", slog.Int("requests", len(c.reqs)))
}

func (c *client) hello() error {
	var f wire.Frame
	c.ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := c.ws.ReadJSON(&f); err != nil {
		return errors.Wrap(err, "reading hello")
	}
	c.ws.SetReadDeadline(time.Time{})
	if f.Op != wire.OpHello {
		c.send(wire.Failure(f.Seq, errNotHello))
		return errNotHello
	}
	sess, err := fam.Config{
		Name:       f.Name,
		DebugLevel: c.srv.cfg.Debug,
		Logger:     c.log,
	}.Open(c.srv.transport)
	if err != nil {
		c.send(wire.Failure(f.Seq, err))
		return err
	}
	caps := sess.Capabilities()
	reply := wire.Reply(f.Seq)
	reply.Caps = &caps
	if err := c.send(reply); err != nil {
		sess.Close()
		return err
	}
	c.sess = sess
	return nil
}

// pump forwards session events until the session is closed or broken.
func (c *client) pump() {
	for {
		ev, err := c.sess.NextEvent(context.Background())
		if err != nil {
			if !errors.Is(err, fam.ErrInvalidState) {
				c.log.Warn("session broken", slog.Any("err", err))
				c.ws.Close()
			}
			return
		}
		metricEvents.WithLabelValues(ev.Code.String()).Inc()
		if err := c.send(wire.Event(ev, c.srv.host)); err != nil {
			return
		}
	}
}

func (c *client) send(f wire.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(f)
}

func (c *client) handle(f wire.Frame) wire.Frame {
	var err error
	switch f.Op {
	case wire.OpMonitor:
		return c.monitor(f)
	case wire.OpSuspend, wire.OpResume, wire.OpCancel:
		req, ok := c.reqs[f.Request]
		if !ok {
			return failure(f.Seq, errNoRequest)
		}
		switch f.Op {
		case wire.OpSuspend:
			err = c.sess.Suspend(req)
		case wire.OpResume:
			err = c.sess.Resume(req)
		default:
			if err = c.sess.Cancel(req); err == nil {
				delete(c.reqs, f.Request)
			}
		}
	case wire.OpDebug:
		err = c.sess.SetDebugLevel(f.Level)
	case wire.OpNoExists:
		err = c.sess.DisableInitialExistsEvents()
	default:
		err = errors.Errorf("unexpected %s frame", f.Op)
	}
	if err != nil {
		return failure(f.Seq, err)
	}
	return wire.Reply(f.Seq)
}

func (c *client) monitor(f wire.Frame) wire.Frame {
	if !c.srv.cfg.Allowed(f.Path) {
		metricRejected.Inc()
		c.log.Info("monitor rejected", slog.String("path", f.Path))
		return failure(f.Seq, errForbidden)
	}
	var (
		req *fam.Request
		err error
	)
	switch f.Kind {
	case fam.File:
		req, err = c.sess.MonitorFile(f.Path)
	case fam.Directory:
		req, err = c.sess.MonitorDirectory(f.Path)
	case fam.Collection:
		req, err = c.sess.MonitorCollection(f.Path, f.Depth, f.Mask)
	default:
		err = errors.Errorf("invalid monitor kind %s", f.Kind)
	}
	if err != nil {
		return failure(f.Seq, err)
	}
	c.reqs[req.Num()] = req
	metricRequests.WithLabelValues(f.Kind.String()).Inc()
	reply := wire.Reply(f.Seq)
	reply.Request = req.Num()
	return reply
}

// failure reports err to the client. Monitor errors are reduced to their
// reason, since the client wraps the reply into its own MonitorError.
func failure(seq uint64, err error) wire.Frame {
	var merr *fam.MonitorError
	if errors.As(err, &merr) {
		err = errors.New(merr.Reason)
	}
	return wire.Failure(seq, err)
}
