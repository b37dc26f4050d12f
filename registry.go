// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import "sort"

// registry maps daemon request numbers to the live requests of one session.
//
// Request numbers are not identities: the daemon may reuse a number once the
// request holding it is cancelled. Every request gets a generation which is
// never reused within a session, and a handle is valid only while the entry
// under its number carries the same generation.
type registry struct {
	sid uint64
	gen uint64
	m   map[int]*Request
}

func newRegistry(sid uint64) registry {
	return registry{sid: sid, m: make(map[int]*Request)}
}

func (r *registry) add(num int, kind Kind, path string, depth int, mask string) *Request {
	r.gen++
	req := &Request{
		num:   num,
		gen:   r.gen,
		sid:   r.sid,
		kind:  kind,
		path:  path,
		depth: depth,
		mask:  mask,
	}
	r.m[num] = req
	return req
}

func (r *registry) valid(req *Request) bool {
	if req == nil || req.sid != r.sid {
		return false
	}
	cur, ok := r.m[req.num]
	return ok && cur.gen == req.gen
}

func (r *registry) del(req *Request) {
	if r.valid(req) {
		delete(r.m, req.num)
	}
}

func (r *registry) lookup(num int) (*Request, bool) {
	req, ok := r.m[num]
	return req, ok
}

// list gives live requests ordered by request number.
func (r *registry) list() []*Request {
	reqs := make([]*Request, 0, len(r.m))
	for _, req := range r.m {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].num < reqs[j].num })
	return reqs
}

func (r *registry) clear() {
	r.m = make(map[int]*Request)
}

func (r *registry) len() int {
	return len(r.m)
}
