package ws

// Client-facing event names.
const (
	MessageNew      = "message:new"
	MessageInbound  = "message:inbound"
	MessageOutbound = "message:outbound"
	MessageStatus   = "message:status"
	ChatUpdated     = "chat:updated"
	Notification    = "notification"
)

// Room name helpers. A client joins the rooms it is entitled to at upgrade
// time and never switches afterwards.
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

func CompanyRoom(companyID string) string {
	return "company:" + companyID
}

func UserRoom(userID string) string {
	return "user:" + userID
}
