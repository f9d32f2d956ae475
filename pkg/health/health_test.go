package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPChecker tests status ranges, headers and timeouts
func TestHTTPChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/created":
			w.WriteHeader(http.StatusCreated)
		case "/redirect":
			w.WriteHeader(http.StatusNotModified)
		case "/auth":
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	tests := []struct {
		name    string
		checker *HTTPChecker
		healthy bool
	}{
		{"ok", NewHTTPChecker(server.URL + "/ok"), true},
		{"server error", NewHTTPChecker(server.URL + "/fail"), false},
		{"3xx in default range", NewHTTPChecker(server.URL + "/redirect"), true},
		{"3xx outside narrow range", NewHTTPChecker(server.URL+"/redirect", WithStatusRange(200, 299)), false},
		{"201 in narrow range", NewHTTPChecker(server.URL+"/created", WithStatusRange(200, 299)), true},
		{"header sent", NewHTTPChecker(server.URL+"/auth", WithHeader("Authorization", "Bearer token")), true},
		{"header missing", NewHTTPChecker(server.URL + "/auth"), false},
		{"timeout", NewHTTPChecker(server.URL+"/slow", WithClientTimeout(50*time.Millisecond)), false},
		{"bad url", NewHTTPChecker("://nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.checker.Check(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy, res.Message)
			assert.False(t, res.CheckedAt.IsZero())
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := NewHTTPChecker(server.URL + "/ok").Check(ctx)
		assert.False(t, res.Healthy)
	})

	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker(server.URL).Type())
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	addr := ln.Addr().String()

	res := NewTCPChecker(addr).Check(context.Background())
	assert.True(t, res.Healthy, res.Message)
	assert.Contains(t, res.Message, addr)

	require.NoError(t, ln.Close())
	res = NewTCPChecker(addr).WithTimeout(time.Second).Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, CheckTypeTCP, NewTCPChecker(addr).Type())
}

// TestTCPCheckerBanner tests greeting checks for SMTP relays
func TestTCPCheckerBanner(t *testing.T) {
	serve := func(t *testing.T, greeting string) string {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				if greeting != "" {
					_, _ = conn.Write([]byte(greeting))
				}
				time.Sleep(100 * time.Millisecond)
				_ = conn.Close()
			}
		}()
		return ln.Addr().String()
	}

	tests := []struct {
		name     string
		greeting string
		healthy  bool
	}{
		{"smtp greeting", "220 mail.example.com ESMTP ready\r\n", true},
		{"service unavailable", "421 try again later\r\n", false},
		{"silent server", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := serve(t, tt.greeting)
			res := NewSMTPChecker(addr).WithTimeout(50 * time.Millisecond).Check(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy, res.Message)
		})
	}

	addr := serve(t, "SSH-2.0-OpenSSH_9.6\r\n")
	res := NewTCPChecker(addr).ExpectBanner(BannerSSH).Check(context.Background())
	assert.True(t, res.Healthy, res.Message)
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker(func(context.Context) error { return nil })
	assert.True(t, ok.Check(context.Background()).Healthy)

	down := NewPingChecker(func(context.Context) error { return errors.New("connection refused") })
	res := down.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, "connection refused", res.Message)
	assert.Equal(t, CheckTypePing, down.Type())
}

// TestStatusUpdate tests the retry threshold and recovery
func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus()
	fail := Result{Healthy: false, Message: "down"}

	s.Update(fail, cfg)
	s.Update(fail, cfg)
	assert.True(t, s.Healthy, "below threshold")
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(fail, cfg)
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
}

// TestMonitorRunOnce tests that check state reaches the component registry
func TestMonitorRunOnce(t *testing.T) {
	m := NewMonitor(Config{Retries: 1, Timeout: time.Second})
	m.Add("dep-up", NewPingChecker(func(context.Context) error { return nil }))
	m.Add("dep-down", NewPingChecker(func(context.Context) error { return errors.New("smtp unreachable") }))
	m.Add("dep-slow", NewPingChecker(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	assert.Equal(t, []string{"dep-down", "dep-slow", "dep-up"}, m.Names())

	statuses := m.RunOnce(context.Background())
	assert.True(t, statuses["dep-up"].Healthy)
	assert.False(t, statuses["dep-down"].Healthy)
	assert.False(t, statuses["dep-slow"].Healthy, "bounded by the check timeout")

	components := metrics.GetHealth().Components
	assert.Equal(t, "healthy", components["dep-up"])
	assert.True(t, strings.HasPrefix(components["dep-down"], "unhealthy"), components["dep-down"])
	assert.Contains(t, components["dep-down"], "smtp unreachable")
}

func TestMonitorRunStops(t *testing.T) {
	m := NewMonitor(Config{Interval: 10 * time.Millisecond})
	calls := make(chan struct{}, 100)
	m.Add("dep-loop", NewPingChecker(func(context.Context) error {
		calls <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("check did not run")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
