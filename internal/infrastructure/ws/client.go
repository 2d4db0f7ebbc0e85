package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Rooms are fixed at upgrade time from
// the caller's identity; the connection is delivery-only and inbound frames
// are discarded.
type Client struct {
	conn      *connWrapper
	Message   chan *WSMessage
	ID        string   `json:"id"`
	Rooms     []string `json:"rooms"`
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, id string, rooms []string) *Client {
	return &Client{
		conn:    newConnWrapper(conn),
		Message: make(chan *WSMessage, 64), // buffered to avoid dead-locks on slow clients
		ID:      id,
		Rooms:   rooms,
	}
}

// ReadMessage drains the connection until it closes, so that pings are
// answered and the close handshake is observed. Payloads are ignored.
func (c *Client) ReadMessage(core *Core) {
	defer func() {
		core.Unregister() <- c
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error (client %s): %v", c.ID, err)
			}
			break
		}
	}
}

func (c *Client) WriteMessage() {
	defer func() {
		_ = c.conn.Close()
	}()

	for msg := range c.Message {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error (client %s): %v", c.ID, err)
			break
		}
	}
}

func (c *Client) closeMessages() {
	c.closeOnce.Do(func() {
		close(c.Message)
	})
}
