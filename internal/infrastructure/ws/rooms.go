package ws

import (
	"sync"

	"github.com/chatwire/livechat/internal/infrastructure/metrics"
)

// RoomManager tracks which clients sit in which rooms. A client can occupy
// several rooms at once (its chat rooms plus a company or user room).
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[string]*Client),
	}
}

func (m *RoomManager) AddClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, room := range client.Rooms {
		clients, ok := m.rooms[room]
		if !ok {
			clients = make(map[string]*Client)
			m.rooms[room] = clients
		}
		clients[client.ID] = client
	}

	metrics.ConnectedClients.Inc()
}

func (m *RoomManager) RemoveClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	for _, room := range client.Rooms {
		clients, ok := m.rooms[room]
		if !ok {
			continue
		}
		if _, present := clients[client.ID]; present {
			delete(clients, client.ID)
			removed = true
		}
		if len(clients) == 0 {
			delete(m.rooms, room)
		}
	}

	if removed {
		metrics.ConnectedClients.Dec()
	}

	client.closeMessages()
}

// BroadcastToRoom delivers to every client in the room. A room nobody joined
// is a silent no-op, and a client whose buffer is full is skipped rather than
// stalling the fan-out.
func (m *RoomManager) BroadcastToRoom(msg *WSMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.rooms[msg.Room] {
		select {
		case client.Message <- msg:
		default:
		}
	}
}

func (m *RoomManager) BroadcastAll(msg *WSMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, clients := range m.rooms {
		for id, client := range clients {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			select {
			case client.Message <- msg:
			default:
			}
		}
	}
}

func (m *RoomManager) ClientCount(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms[room])
}

func (m *RoomManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := make(map[string]struct{})
	for _, clients := range m.rooms {
		for id, client := range clients {
			if _, done := closed[id]; done {
				continue
			}
			closed[id] = struct{}{}
			client.closeMessages()
		}
	}

	metrics.ConnectedClients.Sub(float64(len(closed)))
	m.rooms = make(map[string]map[string]*Client)
}
