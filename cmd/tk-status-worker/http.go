package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artem12345-png/tkfulfill/internal/services/statuspoll"
)

func runWorkerHTTPServer(ctx context.Context, httpAddr string, p *statuspoll.Poller) error {
	return runWorkerHTTPServerOn(ctx, httpAddr, p, nil)
}

// runWorkerHTTPServerOn — служебный HTTP воркера: здоровье, статистика,
// метрики и ручной запуск цикла.
func runWorkerHTTPServerOn(ctx context.Context, httpAddr string, p *statuspoll.Poller, onListen func(addr string)) error {
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return err
	}
	if onListen != nil {
		onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Stats())
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		p.Trigger()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
