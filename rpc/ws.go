package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"mrtcore/core"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsSubscribeBuffer  = 256
	eventStreamBacklog = 0 // replay everything retained past the cursor
)

// handleEventsWS streams committed events as JSON frames. The optional
// `after` query parameter replays the retained backlog past that sequence
// before switching to live delivery.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after cursor", http.StatusBadRequest)
			return
		}
		after = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, after uint64) error {
	// Subscribe before replaying the backlog so nothing committed in
	// between is lost; duplicates are dropped by the cursor check.
	sub := s.node.SubscribeEvents(wsSubscribeBuffer)
	defer sub.Close()

	cursor := after
	for _, stored := range s.node.EventsSince(cursor, eventStreamBacklog) {
		if err := writeStoredEvent(ctx, conn, stored); err != nil {
			return err
		}
		cursor = stored.Sequence
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case stored, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if stored.Sequence <= cursor {
				continue
			}
			cursor = stored.Sequence
			if err := writeStoredEvent(ctx, conn, stored); err != nil {
				return err
			}
		}
	}
}

func writeStoredEvent(ctx context.Context, conn *websocket.Conn, stored *core.StoredEvent) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
