// Command agentd is a demo binary wiring config, a Transport, and the
// dispatch loop together for manual end-to-end exercise (SPEC_FULL.md §2's
// "Demo command"). It is not the production agent spec.md describes —
// there is no scheduler, no command execution, and Handle just logs
// whatever arrives — it exists to stand up a real reverse/bind/adopted
// session against a peer and watch the dispatch loop run.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/subtrace-labs/tlscore"
	"github.com/subtrace-labs/tlscore/internal/cipher"
	"github.com/subtrace-labs/tlscore/internal/config"
	"github.com/subtrace-labs/tlscore/internal/dispatch"
	"github.com/subtrace-labs/tlscore/internal/frame"
	"github.com/subtrace-labs/tlscore/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (empty disables)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("agentd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"url", cfg.Transport.URL,
		"comms_timeout", cfg.Transport.Comms,
		"cipher", cfg.Transport.Cipher.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Hold the latest config in a mutex-protected pointer so hot-reload is
	// safe; a reload only takes effect on the next Init (SPEC_FULL.md §4.8).
	var mu sync.RWMutex
	current := cfg

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			mu.Lock()
			current = updated
			mu.Unlock()
			slog.Info("config hot-reloaded", "url", updated.Transport.URL)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry)
	}

	mu.RLock()
	tcfg := current.Transport
	mu.RUnlock()

	remote := tlscore.NewRemote()
	if tcfg.Cipher.Mode == "xor" {
		key := tcfg.Cipher.Key()
		if len(key) == 0 {
			slog.Error("cipher mode xor requires a non-empty key")
			os.Exit(1)
		}
		remote.SetCipher(cipher.XOR{Key: key[0]})
	}

	timeouts := tlscore.Timeouts{
		Comms:      tcfg.Comms,
		RetryTotal: tcfg.RetryTotal,
		RetryWait:  tcfg.RetryWait,
		Expiry:     tcfg.Expiry,
	}

	transport, err := tlscore.New(tcfg.URL, timeouts, remote, nil, collector)
	if err != nil {
		slog.Error("failed to build transport", "err", err)
		os.Exit(1)
	}

	if err := transport.Init(ctx, nil); err != nil {
		slog.Error("transport init failed", "err", err)
		os.Exit(1)
	}
	defer transport.Destroy()

	slog.Info("session established", "socket", transport.GetSocket())

	outcome, err := transport.Dispatch(ctx, loggingHandler{}, noopScheduler{})
	if err != nil {
		slog.Error("dispatch loop exited with error", "outcome", outcome, "err", err)
		os.Exit(1)
	}
	slog.Info("dispatch loop exited", "outcome", outcome)
}

// loggingHandler is the demo command handler: it logs every packet and
// never asks the loop to stop.
type loggingHandler struct{}

func (loggingHandler) Handle(pkt frame.Packet) (dispatch.Action, error) {
	id, _ := pkt.RequestID()
	slog.Info("packet received", "type", pkt.Header.Type, "len", len(pkt.Payload), "request_id", id)
	return dispatch.ActionContinue, nil
}

// noopScheduler is the demo scheduler collaborator: it does no periodic
// work of its own (spec.md §1 scopes the scheduler's actual behavior out as
// an external collaborator).
type noopScheduler struct{}

func (noopScheduler) Initialize() error { return nil }
func (noopScheduler) Destroy()          {}
func (noopScheduler) Wait()             {}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "err", err)
	}
}
