package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Subscriber follows a service's progress stream and remembers the latest
// percentage per video.
type Subscriber struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu     sync.RWMutex
	latest map[string]float64
	done   chan struct{}
}

// StreamURL turns a service base URL into its websocket endpoint.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parsing service URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Subscribe dials the progress stream of the service at base and starts
// reading it in the background.
func Subscribe(ctx context.Context, base string, log zerolog.Logger) (*Subscriber, error) {
	endpoint, err := StreamURL(base)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	s := &Subscriber{
		conn:   conn,
		log:    log,
		latest: make(map[string]float64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Subscriber) readLoop() {
	defer close(s.done)
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.log.Debug().Err(err).Msg("progress stream closed")
			return
		}
		if msg.Type != TypeProgress || msg.VideoID == "" {
			continue
		}
		s.mu.Lock()
		s.latest[msg.VideoID] = msg.Percent
		s.mu.Unlock()
	}
}

// Latest returns the most recent percentage reported for itemID.
func (s *Subscriber) Latest(itemID string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	pct, ok := s.latest[itemID]
	return pct, ok
}

// Forget drops the percentage recorded for itemID.
func (s *Subscriber) Forget(itemID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.latest, itemID)
	s.mu.Unlock()
}

// Done is closed once the stream ends.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription and waits for the reader to stop.
func (s *Subscriber) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}
