package livechat

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatwire/livechat/internal/infrastructure/json"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/validate"
	"github.com/chatwire/livechat/internal/infrastructure/ws"
)

var validateUserID = validate.Field("userId", validate.Required(), validate.MaxLength(64))

type Handler struct {
	core     *ws.Core
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(core *ws.Core, logger logging.Logger) *Handler {
	return &Handler{
		core:   core,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced upstream, same as the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection and parks it in the rooms derived from the
// caller's identity: its user room, optionally a company room, and a chat
// room per chat it watches.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userID := query.Get("userId")
	if err := validateUserID(userID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	rooms := []string{ws.UserRoom(userID)}

	if companyID := query.Get("companyId"); companyID != "" {
		rooms = append(rooms, ws.CompanyRoom(companyID))
	}

	if chats := query.Get("chats"); chats != "" {
		for _, chatID := range strings.Split(chats, ",") {
			if chatID = strings.TrimSpace(chatID); chatID != "" {
				rooms = append(rooms, ws.ChatRoom(chatID))
			}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn(logging.Socket, logging.Broadcast, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	client := ws.NewClient(conn, uuid.NewString(), rooms)
	h.core.Register() <- client

	go client.WriteMessage()
	go client.ReadMessage(h.core)

	h.logger.Info(logging.Socket, logging.Broadcast, "websocket client connected", map[logging.ExtraKey]any{
		"userId":     userID,
		"rooms":      len(rooms),
		logging.Room: rooms[0],
	})
}
