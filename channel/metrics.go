// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "extend",
		Subsystem: "channel",
		Name:      "messages_sent_total",
		Help:      "Total number of messages sent on any channel",
	})
	metricRequestsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extend",
		Subsystem: "channel",
		Name:      "requests_pending",
		Help:      "Number of requests currently awaiting a response, across all channels",
	})
)

// channelMetrics gives each Channel its own view onto the package-level
// collectors registered once at init, the same split promauto requires
// between a single registration and many call sites recording against it.
type channelMetrics struct {
	sent    prometheus.Counter
	pending prometheus.Gauge
}

func newChannelMetrics() *channelMetrics {
	return &channelMetrics{sent: metricMessagesSent, pending: metricRequestsPending}
}
