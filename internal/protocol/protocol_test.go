package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeSendMessageShape(t *testing.T) {
	data, err := Encode(SendMessage{SenderID: 7, Message: OutgoingMessage{ReceiverID: 42, Message: "hi"}})
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["event"] != EventSendMessage {
		t.Errorf("event = %v, want sendMessage", got["event"])
	}
	payload := got["data"].(map[string]any)
	if payload["senderId"] != float64(7) {
		t.Errorf("senderId = %v, want 7", payload["senderId"])
	}
	msg := payload["message"].(map[string]any)
	if msg["receiverId"] != float64(42) || msg["message"] != "hi" {
		t.Errorf("message = %v, want {receiverId:42 message:hi}", msg)
	}
}

func TestEncodeOutboundNames(t *testing.T) {
	tests := []struct {
		out  Outbound
		want string
	}{
		{GetChatList{UserID: 1}, "getChatList"},
		{JoinChatRoom{UserID: 1, PartnerID: 2}, "joinChatRoom"},
		{LeaveChatRoom{UserID: 1, PartnerID: 2}, "leaveChatRoom"},
		{GetChatHistory{UserID: 1, PartnerID: 2, Page: 1, Limit: 50}, "getChatHistory"},
		{Typing{UserID: 1, PartnerID: 2, IsTyping: true}, "typing"},
		{MarkAsRead{UserID: 1, SenderID: 2}, "markAsRead"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			data, err := Encode(tt.out)
			if err != nil {
				t.Fatal(err)
			}
			f, err := ParseFrame(data)
			if err != nil {
				t.Fatal(err)
			}
			if f.Event != tt.want {
				t.Errorf("event = %q, want %q", f.Event, tt.want)
			}
		})
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "hello"},
		{"no event", `{"data":{}}`},
		{"empty event", `{"event":"","data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("err = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestDecodeNewMessage(t *testing.T) {
	f := Frame{Event: EventNewMessage, Data: json.RawMessage(`{"id":5,"senderId":42,"receiverId":7,"message":"hello","createdAt":"2026-01-02T03:04:05Z"}`)}
	in, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	nm, ok := in.(NewMessage)
	if !ok {
		t.Fatalf("type = %T, want NewMessage", in)
	}
	if nm.Message.ID != 5 || nm.Message.SenderID != 42 || nm.Message.Body != "hello" {
		t.Errorf("message = %+v", nm.Message)
	}
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		field string
	}{
		{"message without sender", Frame{Event: EventNewMessage, Data: json.RawMessage(`{"receiverId":7,"message":"x"}`)}, "senderId"},
		{"message without receiver", Frame{Event: EventNewMessage, Data: json.RawMessage(`{"senderId":7,"message":"x"}`)}, "receiverId"},
		{"typing without user", Frame{Event: EventUserTyping, Data: json.RawMessage(`{"isTyping":true}`)}, "userId"},
		{"list row without partner", Frame{Event: EventChatList, Data: json.RawMessage(`[{"partnerName":"x"}]`)}, "partnerId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode(Frame{Event: "bookingCreated"})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeChatListArrayAndObject(t *testing.T) {
	for _, raw := range []string{
		`[{"partnerId":42,"partnerName":"Ana","unreadCount":3}]`,
		`{"chats":[{"partnerId":42,"partnerName":"Ana","unreadCount":3}]}`,
	} {
		in, err := Decode(Frame{Event: EventChatList, Data: json.RawMessage(raw)})
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		list := in.(ChatList)
		if len(list.Conversations) != 1 || list.Conversations[0].UnreadCount != 3 {
			t.Errorf("Decode(%s) = %+v", raw, list)
		}
	}
}

func TestDecodeErrorEvents(t *testing.T) {
	in, err := Decode(Frame{Event: EventMessageError, Data: json.RawMessage(`{"error":"db down"}`)})
	if err != nil {
		t.Fatal(err)
	}
	perr := in.(ProtocolError)
	if perr.EventName() != EventMessageError || perr.Text() != "db down" {
		t.Errorf("got %+v", perr)
	}

	in, err = Decode(Frame{Event: EventChatHistoryError, Data: json.RawMessage(`"timeout"`)})
	if err != nil {
		t.Fatal(err)
	}
	if in.(ProtocolError).Text() != "timeout" {
		t.Errorf("text = %q, want timeout", in.(ProtocolError).Text())
	}

	in, err = Decode(Frame{Event: EventChatListError})
	if err != nil {
		t.Fatal(err)
	}
	if in.(ProtocolError).Text() != "Failed to load conversations" {
		t.Errorf("fallback text = %q", in.(ProtocolError).Text())
	}
}

func TestDecodeMessageReceivedFallsBackToMessageSender(t *testing.T) {
	in, err := Decode(Frame{Event: EventMessageReceived, Data: json.RawMessage(`{"message":{"senderId":9,"receiverId":1,"message":"x"}}`)})
	if err != nil {
		t.Fatal(err)
	}
	if in.(MessageReceived).SenderID != 9 {
		t.Errorf("senderId = %d, want 9", in.(MessageReceived).SenderID)
	}
}

func TestFallbackForAwaitedAnswers(t *testing.T) {
	tests := []struct {
		event string
		want  string
		ok    bool
	}{
		{EventChatHistory, EventChatHistoryError, true},
		{EventChatList, EventChatListError, true},
		{EventMessageSent, EventMessageError, true},
		{EventNewMessage, "", false},
		{EventUserTyping, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			in, ok := Fallback(Frame{Event: tt.event})
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if pe, isErr := in.(ProtocolError); !isErr || pe.Event != tt.want {
				t.Fatalf("fallback = %#v, want %s", in, tt.want)
			}
		})
	}
}
