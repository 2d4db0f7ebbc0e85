package ws

// WSMessage is the frame written to connected clients.
type WSMessage struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data"`
}

func NewEvent(room, event string, data any) *WSMessage {
	return &WSMessage{
		Event: event,
		Room:  room,
		Data:  data,
	}
}
