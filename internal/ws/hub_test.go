package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://127.0.0.1:5000", want: "ws://127.0.0.1:5000/ws"},
		{in: "https://example.com/base/", want: "wss://example.com/base/ws"},
		{in: "http://host/?q=1", want: "ws://host/ws"},
		{in: "ftp://host", wantErr: true},
	}
	for _, tt := range tests {
		got, err := StreamURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("StreamURL(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("StreamURL(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("StreamURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubscriberReceivesProgress(t *testing.T) {
	hub, srv := startHub(t)

	sub, err := Subscribe(context.Background(), srv.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })

	if _, ok := sub.Latest("abc"); ok {
		t.Fatalf("expected no progress before broadcast")
	}
	hub.Broadcast(Message{Type: "other", VideoID: "abc", Percent: 99})
	hub.Progress("abc", 42)

	waitFor(t, "progress message", func() bool {
		pct, ok := sub.Latest("abc")
		return ok && pct == 42
	})

	sub.Forget("abc")
	if _, ok := sub.Latest("abc"); ok {
		t.Fatalf("expected progress to be forgotten")
	}
	hub.Progress("abc", 7)
	waitFor(t, "progress after forget", func() bool {
		pct, ok := sub.Latest("abc")
		return ok && pct == 7
	})
}

func TestSubscriberStopsWithContext(t *testing.T) {
	_, srv := startHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := Subscribe(ctx, srv.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("subscriber did not stop after cancel")
	}
}

func TestNilSubscriberLatest(t *testing.T) {
	var s *Subscriber
	if _, ok := s.Latest("x"); ok {
		t.Fatalf("nil subscriber should report nothing")
	}
	s.Forget("x")
}
