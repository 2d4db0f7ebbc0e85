package ws

import (
	"context"
)

// Core owns client registration and event fan-out. All room mutations funnel
// through its run loop channels; emitters only ever touch the broadcast
// channel.
type Core struct {
	roomMgr    *RoomManager
	register   chan *Client
	unregister chan *Client
	broadcast  chan *WSMessage
}

func NewCore() *Core {
	return &Core{
		roomMgr:    NewRoomManager(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *WSMessage, 256),
	}
}

func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case cl := <-c.register:
			c.roomMgr.AddClient(cl)

		case cl := <-c.unregister:
			c.roomMgr.RemoveClient(cl)

		case msg := <-c.broadcast:
			if msg.Room == "" {
				c.roomMgr.BroadcastAll(msg)
			} else {
				c.roomMgr.BroadcastToRoom(msg)
			}

		case <-ctx.Done():
			c.roomMgr.DisconnectAll()
			return
		}
	}
}

func (c *Core) Register() chan<- *Client {
	return c.register
}

func (c *Core) Unregister() chan<- *Client {
	return c.unregister
}

func (c *Core) Broadcast() chan<- *WSMessage {
	return c.broadcast
}

// EmitToRoom queues an event for every client in the room.
func (c *Core) EmitToRoom(room, event string, data any) {
	c.broadcast <- NewEvent(room, event, data)
}

// EmitAll queues an event for every connected client.
func (c *Core) EmitAll(event string, data any) {
	c.broadcast <- &WSMessage{Event: event, Data: data}
}

// Rooms exposes the room registry for connection handlers and probes.
func (c *Core) Rooms() *RoomManager {
	return c.roomMgr
}
