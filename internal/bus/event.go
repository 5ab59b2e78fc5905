package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the chat daemon.
const (
	KindStatusChanged = "connection.status_changed"

	KindNoticeShown   = "notice.shown"
	KindNoticeExpired = "notice.expired"

	KindThreadUpdated = "chat.thread_updated"
	KindListUpdated   = "chat.list_updated"
	KindPartnerTyping = "chat.partner_typing"

	KindSendAck    = "message.send_ack"
	KindSendFailed = "message.send_failed"

	KindLoggedIn  = "session.logged_in"
	KindLoggedOut = "session.logged_out"
)
