// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command cacheclient is a minimal process wrapping one Initiator: it
// maintains a connection to a remote cache server, exposes Prometheus
// metrics over HTTP, and exercises a single named cache with a put/get
// smoke check on an interval. It is the process-level analogue of
// cmd/syncthing/main.go's flag parsing plus lib/api's
// suture.Service/promhttp wiring, scaled down to this client's single
// long-lived connection instead of a whole sync engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	"github.com/coherence-go/extend/cache"
	"github.com/coherence-go/extend/initiator"
	"github.com/coherence-go/extend/logger"
	"github.com/coherence-go/extend/transport"
)

func main() {
	var (
		remoteAddress = "127.0.0.1:7574"
		cacheName     = "example"
		metricsAddr   = ""
		redialEvery   = 5 * time.Second
		requestEvery  = 30 * time.Second
		debug         = false
	)
	flag.StringVar(&remoteAddress, "remote", remoteAddress, "Cache server address (host:port)")
	flag.StringVar(&cacheName, "cache", cacheName, "Named cache to open")
	flag.StringVar(&metricsAddr, "metrics-address", metricsAddr, "Address to serve Prometheus metrics on (disabled if empty)")
	flag.DurationVar(&redialEvery, "redial-interval", redialEvery, "Minimum time between reconnect attempts")
	flag.DurationVar(&requestEvery, "probe-interval", requestEvery, "Interval between put/get smoke checks")
	flag.BoolVar(&debug, "debug", debug, "Enable debug logging")
	flag.Parse()

	l := logger.New()
	if debug {
		l.SetDebug("cache-registry", true)
		l.SetDebug("channel", true)
		l.SetDebug("transport", true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ini := initiator.New(redialEvery,
		transport.WithRemoteAddress(remoteAddress),
		transport.WithLogger(l),
		transport.WithMetrics(metricsAddr != ""),
	)
	defer ini.Close()

	supervisor := suture.NewSimple("cacheclient")
	supervisor.Add(&probeService{
		init:    ini,
		manager: nil,
		name:    cacheName,
		every:   requestEvery,
		log:     l.NewFacility("cacheclient", "probe loop"),
	})
	if metricsAddr != "" {
		supervisor.Add(&metricsService{addr: metricsAddr})
	}

	if err := supervisor.Serve(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "cacheclient:", err)
		os.Exit(1)
	}
}

// probeService is a suture.Service that keeps one named cache open
// through init and periodically exercises it with a put followed by a
// get, the simplest possible end-to-end liveness check for the wire
// engine underneath.
type probeService struct {
	init    *initiator.Initiator
	manager *cache.Manager
	name    string
	every   time.Duration
	log     *logger.Facility
}

func (s *probeService) String() string { return "cacheclient.probe" }

func (s *probeService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.probe(ctx); err != nil {
				s.log.Debugf("probe failed: %v", err)
			}
		}
	}
}

func (s *probeService) probe(ctx context.Context) error {
	conn, err := s.init.EnsureConnection(ctx)
	if err != nil {
		return err
	}
	if s.manager == nil {
		m, err := cache.NewManager(conn, "", 8, nil)
		if err != nil {
			return err
		}
		s.manager = m
	}
	c, err := s.manager.Open(ctx, s.name)
	if err != nil {
		return err
	}
	key := []byte("cacheclient-probe")
	value := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if _, _, err := c.Put(ctx, key, value, 0, false); err != nil {
		return err
	}
	got, present, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("cacheclient: probe key vanished immediately after Put")
	}
	s.log.Debugf("probe round trip ok: %s", got)
	return nil
}

// metricsService serves the process's registered Prometheus collectors
// (transport and channel metrics are registered at package init time) on
// addr, the same promhttp.Handler wiring lib/api/api.go exposes under
// its own HTTP mux.
type metricsService struct {
	addr string
	srv  *http.Server
}

func (s *metricsService) String() string { return "cacheclient.metrics" }

func (s *metricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
