package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/xproc-rwlock/internal/health"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

const adminShutdownTimeout = 2 * time.Second

type adminServer struct {
	srv  *http.Server
	done chan struct{}
	once sync.Once
}

// startAdmin serves /metrics, /live and /ready on addr until ctx is done or
// shutdown is called.
func startAdmin(ctx context.Context, addr string, reg *prometheus.Registry, l *rwlock.Lock, lockDir string) (*adminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	checks := health.NewHandler(reg, l, lockDir)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", checks.LiveEndpoint)
	mux.HandleFunc("/ready", checks.ReadyEndpoint)

	a := &adminServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cliLogger.Errorf("admin server: %v", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			a.shutdown()
		case <-a.done:
		}
	}()
	cliLogger.Infof("admin endpoint on %s", ln.Addr())
	return a, nil
}

func (a *adminServer) shutdown() {
	a.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			cliLogger.Warnf("admin shutdown: %v", err)
		}
	})
	<-a.done
}
