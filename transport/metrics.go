// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "extend",
	Subsystem: "transport",
	Name:      "connections_open",
	Help:      "Number of currently open connections",
})

type connMetrics struct {
	opened prometheus.Gauge
}

func newConnMetrics() *connMetrics {
	return &connMetrics{opened: metricConnectionsOpen}
}
