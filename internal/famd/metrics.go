// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package famd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "famd",
		Name:      "clients",
		Help:      "Number of connected clients.",
	})
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famd",
		Name:      "requests_total",
		Help:      "Monitor requests registered by clients, per kind.",
	}, []string{"kind"})
	metricRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "famd",
		Name:      "rejected_total",
		Help:      "Monitor requests for paths outside the exported roots.",
	})
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famd",
		Name:      "events_total",
		Help:      "Events sent to clients, per event code.",
	}, []string{"code"})
)
