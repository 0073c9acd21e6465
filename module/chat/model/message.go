package model

import "time"

const MessageCollection = "messages"

// Message kinds; anything else on the wire is normalized to text/file.
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindVoice = "voice"
	KindFile  = "file"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindVideo, KindVoice, KindFile:
		return true
	}
	return false
}

// ChatMessage is one direct message between two users. Soft deletes are
// per-party flags; a hard delete removes the row (sender deleting their
// own message).
type ChatMessage struct {
	ID                 int64     `bson:"_id"`
	SenderID           int64     `bson:"sender_id"`
	ReceiverID         int64     `bson:"receiver_id"`
	Body               string    `bson:"body,omitempty"`
	AttachmentURL      string    `bson:"attachment_url,omitempty"`
	Kind               string    `bson:"kind"`
	CreatedAt          time.Time `bson:"created_at"`
	Read               bool      `bson:"read"`
	DeletedForSender   bool      `bson:"deleted_for_sender"`
	DeletedForReceiver bool      `bson:"deleted_for_receiver"`
	ClientDedupeID     string    `bson:"client_dedupe_id,omitempty"`
}

// Empty reports whether the message carries neither text nor attachment.
// Such messages are never persisted.
func (m *ChatMessage) Empty() bool {
	return m.Body == "" && m.AttachmentURL == ""
}

// DeletedFor reports whether userID has soft-deleted this message.
func (m *ChatMessage) DeletedFor(userID int64) bool {
	switch userID {
	case m.SenderID:
		return m.DeletedForSender
	case m.ReceiverID:
		return m.DeletedForReceiver
	}
	return false
}

// PartyOf reports whether userID is the sender or receiver.
func (m *ChatMessage) PartyOf(userID int64) bool {
	return userID == m.SenderID || userID == m.ReceiverID
}
