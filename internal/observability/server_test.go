// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func startServer(t *testing.T, server *Server) {
	t.Helper()
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

type fakeAccount struct {
	halted     atomic.Bool
	proxyIssue atomic.Bool
}

func (a *fakeAccount) Halted() bool     { return a.halted.Load() }
func (a *fakeAccount) ProxyIssue() bool { return a.proxyIssue.Load() }

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", func() bool { return true })
	startServer(t, server)

	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}

	status, body := get(t, server, "/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") {
		t.Error("expected Prometheus format with HELP comments")
	}
	if !strings.Contains(body, "# TYPE") {
		t.Error("expected Prometheus format with TYPE comments")
	}
	if !strings.Contains(body, "go_") {
		t.Error("expected go_* metrics")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process_* metrics")
	}
	if !strings.Contains(body, "trainerbot_session_ready 1") {
		t.Error("expected trainerbot_session_ready to be 1")
	}
}

func TestServer_RegistrarsApplied(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trainerbot_test_events_total",
		Help: "test counter",
	}, []string{"event"})

	server := NewServer("127.0.0.1:0", nil,
		func(reg prometheus.Registerer) { reg.MustRegister(counter) },
		nil,
	)
	startServer(t, server)

	counter.WithLabelValues("LEVEL_UP").Inc()
	counter.WithLabelValues("LEVEL_UP").Inc()

	_, body := get(t, server, "/metrics")
	if !strings.Contains(body, `trainerbot_test_events_total{event="LEVEL_UP"} 2`) {
		t.Errorf("expected registrar counter at 2, got:\n%s", body)
	}
}

func TestServer_AccountGauges(t *testing.T) {
	account := &fakeAccount{}
	server := NewServer("127.0.0.1:0", nil, AccountGauges(account))
	startServer(t, server)

	_, body := get(t, server, "/metrics")
	if !strings.Contains(body, "trainerbot_account_halted 0") {
		t.Error("expected trainerbot_account_halted to be 0")
	}
	if !strings.Contains(body, "trainerbot_account_proxy_issue 0") {
		t.Error("expected trainerbot_account_proxy_issue to be 0")
	}

	account.halted.Store(true)
	account.proxyIssue.Store(true)

	_, body = get(t, server, "/metrics")
	if !strings.Contains(body, "trainerbot_account_halted 1") {
		t.Error("expected trainerbot_account_halted to be 1")
	}
	if !strings.Contains(body, "trainerbot_account_proxy_issue 1") {
		t.Error("expected trainerbot_account_proxy_issue to be 1")
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	status, body := get(t, server, "/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	var ready atomic.Bool
	server := NewServer("127.0.0.1:0", ready.Load)
	startServer(t, server)

	status, body := get(t, server, "/healthz/readiness")
	if status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", status)
	}
	if strings.TrimSpace(body) != "not ready" {
		t.Errorf("expected body 'not ready', got %q", body)
	}

	ready.Store(true)

	status, body = get(t, server, "/healthz/readiness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_ReadinessWithNilChecker(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	status, _ := get(t, server, "/healthz/readiness")
	if status != http.StatusOK {
		t.Errorf("expected status 200 with nil checker, got %d", status)
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}

	if server.listener != nil {
		_ = server.listener.Close()
	}

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error from the error channel after closing listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}
