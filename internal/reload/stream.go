package reload

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fswatch/internal/event"
)

var defaultStreamTypes = []string{"run_exited"}

// handleReload upgrades to a websocket and streams one JSON message per
// matching event. Clients pick event types with ?events=run_exited,change
// and may request ?replay=N recent matching events on connect; by
// default nothing is replayed, so a reconnecting browser does not
// reload off a stale run.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	eventTypes := parseEventTypes(r.URL.Query().Get("events"))

	replay := 0
	if rawReplay := r.URL.Query().Get("replay"); rawReplay != "" {
		parsed, err := strconv.Atoi(rawReplay)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid replay", http.StatusBadRequest)
			return
		}
		replay = parsed
	}

	output, cancel := s.bus.SubscribeTypes(eventTypes...)
	if output == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r)
	if err != nil {
		logWSError(s.logger, r, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	if replay > 0 {
		if err := s.writeReplay(conn, eventTypes, replay); err != nil {
			return
		}
	}

	loop := startWSWriteLoop(conn, output, buildEventPayload)
	defer loop.Stop()

	// Reads are drained only to notice the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeReplay(conn *websocket.Conn, eventTypes []string, count int) error {
	allowed := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		allowed[eventType] = struct{}{}
	}

	matching := []event.Event{}
	for _, value := range s.bus.DumpHistory() {
		if _, ok := allowed[value.Type()]; !ok {
			continue
		}
		matching = append(matching, value)
	}
	if len(matching) > count {
		matching = matching[len(matching)-count:]
	}

	for _, value := range matching {
		payload, ok := buildEventPayload(value)
		if !ok {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(payload); err != nil {
			return err
		}
	}
	return nil
}

func parseEventTypes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultStreamTypes
	}
	types := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			types = append(types, part)
		}
	}
	if len(types) == 0 {
		return defaultStreamTypes
	}
	return types
}
