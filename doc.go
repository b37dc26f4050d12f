// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package fam is a client of file alteration monitor daemons in the manner
// of FAM and Gamin.
//
// A Session is a connection to a daemon, opened through a Transport. The
// local package emulates the daemon in-process on top of fsnotify, the
// remote package talks to a famd daemon over a websocket. Over a session the
// client registers monitor requests for files, directories or collections
// (directory subtrees filtered by a glob mask) and reads the resulting
// events one by one:
//
//	s, err := fam.Open(local.New(), "myapp")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//	if _, err := s.MonitorDirectory("/var/spool/jobs"); err != nil {
//		log.Fatal(err)
//	}
//	for {
//		ev, err := s.NextEvent(ctx)
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Println(ev) // Created "job.1" (1)
//	}
//
// Every directory monitor starts with an Exists event for the directory and
// each of its entries, followed by EndExists. Cancelling a request is
// acknowledged with an Acknowledge event; events queued before the
// cancellation may still be delivered.
//
// Request numbers are chosen by the daemon and may be reused once a request
// is cancelled. A Request handle stays bound to the registration that
// produced it, so a stale handle never operates on a newer request which
// happens to share its number.
//
// Suspension, collections, debug levels and suppressing the initial Exists
// events are optional daemon features; the operations depending on them
// fail with ErrUnsupported unless Session.Capabilities reports them.
//
// WaitHandle exposes a descriptor which polls readable while events are
// pending, so that a session can be integrated into a foreign event loop.
package fam
