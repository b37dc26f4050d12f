// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package local

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"gopkg.in/tomb.v1"

	"github.com/JekaMas/fam"
	"github.com/JekaMas/fam/internal/readiness"
)

// watch is the daemon side of a monitor request.
type watch struct {
	num       int
	kind      fam.Kind
	path      string // as given by the client
	root      string // absolute, cleaned
	depth     int
	mask      glob.Glob // nil matches everything
	dirs      map[string]bool
	suspended bool
}

// filename gives the name reported for an event on p, or false when p is
// outside the scope of w. The mask is not applied.
func (w *watch) filename(p string) (string, bool) {
	if p == w.root {
		return w.path, true
	}
	switch w.kind {
	case fam.File:
		return "", false
	case fam.Directory:
		if filepath.Dir(p) != w.root {
			return "", false
		}
		return filepath.Base(p), true
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if strings.Count(rel, "/") > w.depth {
		return "", false
	}
	return rel, true
}

func (w *watch) matches(name string) bool {
	return w.mask == nil || w.mask.Match(name)
}

// reports tells whether an event on p named name is queued for w.
func (w *watch) reports(p, name string) bool {
	return !w.suspended && (p == w.root || w.matches(path.Base(name)))
}

type conn struct {
	mu       sync.Mutex
	cond     sync.Cond
	name     string
	w        *fsnotify.Watcher
	sig      *readiness.Signal
	t        tomb.Tomb
	lv       *slog.LevelVar
	log      *slog.Logger
	reqs     map[int]*watch
	refs     map[string]int
	queue    []fam.RawEvent
	noexists bool
	closed   bool
}

var (
	_ fam.Conn           = (*conn)(nil)
	_ fam.Collector      = (*conn)(nil)
	_ fam.Suspender      = (*conn)(nil)
	_ fam.DebugLeveler   = (*conn)(nil)
	_ fam.ExistsDisabler = (*conn)(nil)
)

func (c *conn) loop() {
	defer c.t.Done()
	for {
		select {
		case ev, ok := <-c.w.Events:
			if !ok {
				return
			}
			c.dispatch(ev)
		case err, ok := <-c.w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				c.log.Warn("kernel event queue overflowed, events were lost")
				continue
			}
			c.log.Warn("watcher error", slog.Any("err", err))
		case <-c.t.Dying():
			return
		}
	}
}

func (c *conn) dispatch(ev fsnotify.Event) {
	code, ok := translate(ev.Op)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.log.Debug("fsnotify event", slog.String("event", ev.String()))
	for _, num := range c.nums() {
		w := c.reqs[num]
		name, ok := w.filename(ev.Name)
		if !ok {
			continue
		}
		switch {
		case w.kind == fam.Collection && code == fam.Created && ev.Name != w.root:
			if strings.Count(name, "/") < w.depth {
				c.subdir(w, ev.Name)
			}
		case code == fam.Deleted && w.dirs[ev.Name] && ev.Name != w.root:
			delete(w.dirs, ev.Name)
			c.unref(ev.Name)
		}
		if !w.reports(ev.Name, name) {
			continue
		}
		c.push(fam.RawEvent{Request: w.num, Code: int(code), Filename: name})
	}
}

// subdir starts watching a directory created inside a collection.
func (c *conn) subdir(w *watch, p string) {
	fi, err := os.Lstat(p)
	if err != nil || !fi.IsDir() || w.dirs[p] {
		return
	}
	if err := c.ref(p); err != nil {
		c.log.Info("cannot watch new directory", slog.String("path", p), slog.Any("err", err))
		return
	}
	w.dirs[p] = true
}

// nums lists request numbers in ascending order, so that events matching
// several requests are queued deterministically.
func (c *conn) nums() []int {
	nums := make([]int, 0, len(c.reqs))
	for num := range c.reqs {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

func (c *conn) push(evs ...fam.RawEvent) {
	if len(evs) == 0 {
		return
	}
	c.queue = append(c.queue, evs...)
	c.sig.Set()
	c.cond.Broadcast()
}

func (c *conn) ref(dir string) error {
	if c.refs[dir] == 0 {
		if err := c.w.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %s", dir)
		}
	}
	c.refs[dir]++
	return nil
}

func (c *conn) unref(dir string) {
	switch c.refs[dir] {
	case 0:
		return
	case 1:
		delete(c.refs, dir)
		if err := c.w.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			c.log.Debug("unwatch failed", slog.String("path", dir), slog.Any("err", err))
		}
	default:
		c.refs[dir]--
	}
}

// alloc gives the lowest unused request number.
func (c *conn) alloc() int {
	n := 1
	for c.reqs[n] != nil {
		n++
	}
	return n
}

// Monitor implements fam.Conn.
func (c *conn) Monitor(kind fam.Kind, p string) (int, error) {
	if kind != fam.File && kind != fam.Directory {
		return 0, errors.Errorf("unsupported monitor kind %s", kind)
	}
	return c.monitor(kind, p, 0, nil)
}

// MonitorCollection implements fam.Collector.
func (c *conn) MonitorCollection(p string, depth int, mask string) (int, error) {
	g, err := match(mask)
	if err != nil {
		return 0, err
	}
	return c.monitor(fam.Collection, p, depth, g)
}

func (c *conn) monitor(kind fam.Kind, p string, depth int, mask glob.Glob) (int, error) {
	root, err := filepath.Abs(p)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return 0, errors.Wrap(err, "cannot monitor")
	}
	if kind != fam.File && !fi.IsDir() {
		return 0, errors.Errorf("cannot monitor %s: not a directory", root)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	w := &watch{
		num:   c.alloc(),
		kind:  kind,
		path:  p,
		root:  root,
		depth: depth,
		mask:  mask,
		dirs:  make(map[string]bool),
	}
	var exists []fam.RawEvent
	switch kind {
	case fam.File:
		err = c.watchDir(w, filepath.Dir(root))
	default:
		if err = c.watchDir(w, root); err == nil {
			exists, err = c.walk(w, root, "", 0)
		}
	}
	if err != nil {
		for dir := range w.dirs {
			c.unref(dir)
		}
		return 0, err
	}
	c.reqs[w.num] = w
	c.log.Info("monitor", slog.Int("request", w.num), slog.String("kind", kind.String()),
		slog.String("path", root), slog.Int("dirs", len(w.dirs)))
	if !c.noexists {
		c.push(fam.RawEvent{Request: w.num, Code: int(fam.Exists), Filename: p})
		c.push(exists...)
		c.push(fam.RawEvent{Request: w.num, Code: int(fam.EndExists), Filename: p})
	}
	return w.num, nil
}

func (c *conn) watchDir(w *watch, dir string) error {
	if err := c.ref(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// walk lists the entries of dir as Exists events, descending into
// subdirectories of a collection while level is below its depth.
func (c *conn) walk(w *watch, dir, rel string, lvl int) ([]fam.RawEvent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list directory")
	}
	var evs []fam.RawEvent
	for _, e := range entries {
		name := path.Join(rel, e.Name())
		if w.kind == fam.Directory {
			name = e.Name()
		}
		if w.matches(e.Name()) {
			evs = append(evs, fam.RawEvent{Request: w.num, Code: int(fam.Exists), Filename: name})
		}
		if w.kind != fam.Collection || !e.IsDir() || lvl >= w.depth {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if err := c.watchDir(w, sub); err != nil {
			c.log.Info("skipping subdirectory", slog.String("path", sub), slog.Any("err", err))
			continue
		}
		more, err := c.walk(w, sub, name, lvl+1)
		if err != nil {
			c.log.Info("skipping subdirectory", slog.String("path", sub), slog.Any("err", err))
			continue
		}
		evs = append(evs, more...)
	}
	return evs, nil
}

func (c *conn) lookup(num int) (*watch, error) {
	if c.closed {
		return nil, ErrClosed
	}
	w, ok := c.reqs[num]
	if !ok {
		return nil, errors.Errorf("no such request %d", num)
	}
	return w, nil
}

// Cancel implements fam.Conn. The request is acknowledged with an
// Acknowledge event.
func (c *conn) Cancel(num int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, err := c.lookup(num)
	if err != nil {
		return err
	}
	for dir := range w.dirs {
		c.unref(dir)
	}
	delete(c.reqs, num)
	c.push(fam.RawEvent{Request: num, Code: int(fam.Acknowledge), Filename: w.path})
	c.log.Info("cancel", slog.Int("request", num))
	return nil
}

// Suspend implements fam.Suspender. Events for a suspended request are
// dropped.
func (c *conn) Suspend(num int) error {
	return c.suspend(num, true)
}

// Resume implements fam.Suspender.
func (c *conn) Resume(num int) error {
	return c.suspend(num, false)
}

func (c *conn) suspend(num int, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, err := c.lookup(num)
	if err != nil {
		return err
	}
	w.suspended = on
	return nil
}

// SetDebugLevel implements fam.DebugLeveler.
func (c *conn) SetDebugLevel(l fam.DebugLevel) error {
	c.lv.Set(level(l))
	return nil
}

// DisableExists implements fam.ExistsDisabler.
func (c *conn) DisableExists() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noexists = true
	return nil
}

// Pending implements fam.Conn.
func (c *conn) Pending() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	return len(c.queue), nil
}

// NextEvent implements fam.Conn.
func (c *conn) NextEvent() (fam.RawEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return fam.RawEvent{}, ErrClosed
	}
	ev := c.queue[0]
	c.queue[0] = fam.RawEvent{}
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.sig.Clear()
	}
	return ev, nil
}

// Fd implements fam.Conn.
func (c *conn) Fd() int {
	return c.sig.Fd()
}

// Close implements fam.Conn.
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

	c.t.Kill(nil)
	err := c.w.Close()
	c.t.Wait()
	c.sig.Close()
	c.log.Debug("connection closed", slog.Int("requests", len(c.reqs)))
	return errors.Wrap(err, "local: closing watcher")
}
