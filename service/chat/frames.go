package chat

import (
	"encoding/json"
	"strings"
	"time"

	"SCProject/module/chat/model"
)

// InboundFrame is what a client sends over the chat connection.
type InboundFrame struct {
	ReceiverID  int64  `json:"receiver_id"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path"`
	MessageType string `json:"message_type"`
	DedupeID    string `json:"dedupe_id,omitempty"`
}

func marshalEvent(v any) ([]byte, error) {
	return json.Marshal(v)
}

func ParseInbound(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	f.Message = strings.TrimSpace(f.Message)
	f.FilePath = strings.TrimSpace(f.FilePath)
	return &f, nil
}

// Empty frames (no text, no attachment) are dropped without an error.
func (f *InboundFrame) Empty() bool {
	return f.Message == "" && f.FilePath == ""
}

// Kind normalizes the declared message type: unknown or missing types fall
// back to file when an attachment is present, text otherwise.
func (f *InboundFrame) Kind() string {
	if model.ValidKind(f.MessageType) {
		return f.MessageType
	}
	if f.FilePath != "" {
		return model.KindFile
	}
	return model.KindText
}

// Delivery is the server->client message shape, sent to both sender and
// receiver so the sender's other devices see their own sent message.
type Delivery struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	ReceiverID  int64  `json:"receiver_id"`
	Message     string `json:"message,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	MessageType string `json:"message_type"`
	Timestamp   string `json:"timestamp"`
	IsRead      bool   `json:"is_read"`
}

func DeliveryFromModel(m *model.ChatMessage) Delivery {
	return Delivery{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Message:     m.Body,
		FilePath:    m.AttachmentURL,
		MessageType: m.Kind,
		Timestamp:   m.CreatedAt.UTC().Format(time.RFC3339),
		IsRead:      m.Read,
	}
}

// ---- notification channel events ----

type UserStatusEvent struct {
	Type     string `json:"type"` // "user_status"
	UserID   int64  `json:"user_id"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen,omitempty"`
}

type NewMessageEvent struct {
	Type string   `json:"type"` // "new_message"
	Data Delivery `json:"data"`
}

type MessagesReadEvent struct {
	Type       string `json:"type"` // "messages_read"
	FromUserID int64  `json:"from_user_id"`
}

type FriendRequestsCountEvent struct {
	Type  string `json:"type"` // "friend_requests_count"
	Count int64  `json:"count"`
}

type MessageDeletedEvent struct {
	Type          string `json:"type"` // "message_deleted"
	MessageID     int64  `json:"message_id"`
	SenderID      int64  `json:"sender_id"`
	ReceiverID    int64  `json:"receiver_id"`
	DeletedForAll bool   `json:"deleted_for_all"`
}

// ErrorEvent carries protocol errors to the client without killing the
// connection; the caller is expected to correct and retry.
type ErrorEvent struct {
	Type string `json:"type"` // "error"
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ControlFrame covers the tiny inbound surface of the notification
// connection (ping keepalive).
type ControlFrame struct {
	Type string `json:"type"`
}

type PongEvent struct {
	Type string `json:"type"` // "pong"
}
