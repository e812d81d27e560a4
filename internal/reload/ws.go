package reload

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fswatch/internal/event"
	"fswatch/internal/logging"
)

const wsReadBufferSize = 1024
const wsWriteBufferSize = 1024
const wsWriteTimeout = 10 * time.Second

// upgradeWebSocket accepts any origin. The server binds to an address
// the operator chose for local development; it carries no secrets.
func upgradeWebSocket(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

type wsWriteLoop struct {
	stopOnce sync.Once
	done     chan struct{}
}

func (loop *wsWriteLoop) Stop() {
	if loop == nil {
		return
	}
	loop.stopOnce.Do(func() {
		close(loop.done)
	})
}

// startWSWriteLoop pumps bus events onto the connection until the
// subscription closes, a write fails, or Stop is called.
func startWSWriteLoop(conn *websocket.Conn, output <-chan event.Event, buildPayload func(event.Event) (any, bool)) *wsWriteLoop {
	loop := &wsWriteLoop{
		done: make(chan struct{}),
	}

	go func() {
		for {
			select {
			case value, ok := <-output:
				if !ok {
					return
				}
				payload, ok := buildPayload(value)
				if !ok {
					continue
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(payload); err != nil {
					return
				}
			case <-loop.done:
				return
			}
		}
	}()

	return loop
}

func logWSError(logger *logging.Logger, r *http.Request, message string, err error) {
	if logger == nil || r == nil {
		return
	}
	fields := map[string]string{
		"path": r.URL.Path,
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logger.Warn(message, fields)
}
