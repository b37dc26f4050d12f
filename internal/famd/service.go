// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package famd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/thejerf/suture/v4"
)

// ServiceTimeout bounds the shutdown of supervised services.
const ServiceTimeout = 10 * time.Second

// httpService serves a Server on its configured listen address.
type httpService struct {
	srv *Server
	log *slog.Logger
}

func (h *httpService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.srv.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "famd: listen")
	}
	hs := &http.Server{
		Handler:           h.srv,
		ReadHeaderTimeout: handshakeTimeout,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	h.log.Info("listening", slog.String("addr", ln.Addr().String()), slog.String("host", h.srv.host))

	select {
	case err := <-errc:
		return errors.Wrap(err, "famd: serve")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout/2)
	defer cancel()
	err = hs.Shutdown(sctx)
	h.srv.Close()
	if err != nil {
		return errors.Wrap(err, "famd: shutdown")
	}
	return ctx.Err()
}

func (h *httpService) String() string {
	return "famd.http@" + h.srv.cfg.Listen
}

// NewSupervisor gives a supervisor running srv, restarting its listener after
// failures.
func NewSupervisor(srv *Server) *suture.Supervisor {
	sup := suture.New("famd", suture.Spec{
		EventHook: func(e suture.Event) {
			srv.log.Info(e.String())
		},
		Timeout: ServiceTimeout,
	})
	sup.Add(&httpService{srv: srv, log: srv.log})
	return sup
}
