// ABOUTME: Websocket feed streaming session events to connected clients
// ABOUTME: Best-effort delivery; a client that falls behind misses events

package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/2389/zap-gateway/internal/bus"
)

// handleEvents handles GET /api/events. It upgrades the connection to a
// websocket and streams events as JSON, one message per event. An optional
// ?session_id= query filters to a single session; otherwise the client
// receives events from every session.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session_id")
	if key == "" {
		key = bus.KeyAll
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscription is torn down automatically when ctx is canceled.
	events, subID := g.bus.Subscribe(ctx, key)
	g.logger.Debug("event subscriber connected", "key", key, "sub_id", subID, "remote", r.RemoteAddr)

	// Drain client frames so we notice the peer closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				g.logger.Debug("event subscriber write failed", "sub_id", subID, "error", err)
				return
			}
		}
	}
}

// checkOrigin accepts same-host and loopback origins, plus requests that
// carry no Origin header (non-browser clients).
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}
