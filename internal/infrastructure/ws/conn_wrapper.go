package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// connWrapper serializes writes; gorilla connections allow at most one
// concurrent writer.
type connWrapper struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newConnWrapper(conn *websocket.Conn) *connWrapper {
	return &connWrapper{conn: conn}
}

func (w *connWrapper) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *connWrapper) Close() error {
	return w.conn.Close()
}
