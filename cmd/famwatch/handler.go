// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"

	"github.com/JekaMas/fam"
)

// Event is passed to the command template.
type Event struct {
	Path    string // absolute path of the changed file, when known
	Event   string // lowercase event code, e.g. "created"
	Request int
	Host    string
}

// NewEvent resolves ev against the request that produced it. Directory and
// collection events are relative to the monitored path.
func NewEvent(ev fam.Event, req *fam.Request) Event {
	p := ev.Filename
	if req != nil && !filepath.IsAbs(p) {
		p = filepath.Join(req.Path(), filepath.FromSlash(p))
	}
	return Event{
		Path:    p,
		Event:   strings.ToLower(ev.Code.String()),
		Request: ev.Request,
		Host:    ev.Hostname,
	}
}

// environ gives the environment of the handler process: the inherited one,
// with FAM_* variables describing e.
func environ(e Event) []string {
	vars := []string{
		"FAM_PATH=" + e.Path,
		"FAM_EVENT=" + e.Event,
		"FAM_REQUEST=" + strconv.Itoa(e.Request),
		"FAM_HOST=" + e.Host,
	}
	env := make([]string, 0, len(os.Environ())+len(vars))
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "FAM_") {
			env = append(env, kv)
		}
	}
	return append(env, vars...)
}

// Handler runs a shell command rendered from a text/template for each event.
type Handler struct {
	tmpl   *template.Template
	Stdout io.Writer
	Stderr io.Writer
	log    *slog.Logger
}

// NewHandler parses the command template.
func NewHandler(text string, log *slog.Logger) (*Handler, error) {
	tmpl, err := template.New("main.Handler").Parse(text)
	if err != nil {
		return nil, err
	}
	return &Handler{
		tmpl:   tmpl,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    log,
	}, nil
}

// Run renders the command for e and waits for it to finish.
func (h *Handler) Run(e Event) error {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, e); err != nil {
		return err
	}
	s := buf.String()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", s)
	default:
		cmd = exec.Command("/bin/sh", "-c", s)
	}
	cmd.Stdout = h.Stdout
	cmd.Stderr = h.Stderr
	cmd.Env = environ(e)
	return cmd.Run()
}

// Daemon runs the handler in the background. Events arriving while a
// command is still running are dropped.
func (h *Handler) Daemon() chan<- Event {
	c := make(chan Event)
	go func() {
		for e := range c {
			if err := h.Run(e); err != nil {
				h.log.Warn("handler failed", slog.String("path", e.Path), slog.Any("err", err))
			}
		}
	}()
	return c
}
