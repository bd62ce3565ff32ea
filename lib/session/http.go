// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	_ "net/http/pprof" // registers the pprof handlers on http.DefaultServeMux
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// newInfoHandler routes /metrics to gatherer and /debug/pprof to the
// standard profiling handlers.
func newInfoHandler(gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.PathPrefix("/debug/pprof").Handler(http.DefaultServeMux)
	return router
}

// infoServer serves metrics and profiles on a listener opened during
// Mounting, so a bad address fails startup instead of a serving mount.
type infoServer struct {
	listener net.Listener
	server   *http.Server
}

func listenInfo(address string, gatherer prometheus.Gatherer) (*infoServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &infoServer{
		listener: listener,
		server: &http.Server{
			Handler:           newInfoHandler(gatherer),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *infoServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *infoServer) serve() error {
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *infoServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
	}
}
