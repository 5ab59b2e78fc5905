package protocol

// Outbound event names (client → server).
const (
	EventGetChatList    = "getChatList"
	EventJoinChatRoom   = "joinChatRoom"
	EventLeaveChatRoom  = "leaveChatRoom"
	EventGetChatHistory = "getChatHistory"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventMarkAsRead     = "markAsRead"
)

// Outbound is a command sent to the chat server.
type Outbound interface {
	EventName() string
}

// GetChatList requests the conversation list of the user.
type GetChatList struct {
	UserID int `json:"userId"`
}

// JoinChatRoom subscribes the user to the room shared with a partner.
type JoinChatRoom struct {
	UserID    int `json:"userId"`
	PartnerID int `json:"partnerId"`
}

// LeaveChatRoom unsubscribes the user from the room shared with a partner.
type LeaveChatRoom struct {
	UserID    int `json:"userId"`
	PartnerID int `json:"partnerId"`
}

// GetChatHistory requests one page of the history with a partner.
type GetChatHistory struct {
	UserID    int `json:"userId"`
	PartnerID int `json:"partnerId"`
	Page      int `json:"page"`
	Limit     int `json:"limit"`
}

// SendMessage sends a chat message.
type SendMessage struct {
	SenderID int             `json:"senderId"`
	Message  OutgoingMessage `json:"message"`
}

// OutgoingMessage is the body of a SendMessage command.
type OutgoingMessage struct {
	ReceiverID int    `json:"receiverId"`
	Message    string `json:"message"`
}

// Typing signals a change of the local typing state.
type Typing struct {
	UserID    int  `json:"userId"`
	PartnerID int  `json:"partnerId"`
	IsTyping  bool `json:"isTyping"`
}

// MarkAsRead marks every message from SenderID to UserID as read.
type MarkAsRead struct {
	UserID   int `json:"userId"`
	SenderID int `json:"senderId"`
}

func (GetChatList) EventName() string    { return EventGetChatList }
func (JoinChatRoom) EventName() string   { return EventJoinChatRoom }
func (LeaveChatRoom) EventName() string  { return EventLeaveChatRoom }
func (GetChatHistory) EventName() string { return EventGetChatHistory }
func (SendMessage) EventName() string    { return EventSendMessage }
func (Typing) EventName() string         { return EventTyping }
func (MarkAsRead) EventName() string     { return EventMarkAsRead }
