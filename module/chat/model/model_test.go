package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadStateLifecycle(t *testing.T) {
	assert.True(t, UploadInit.CanAdvanceTo(UploadReceiving))
	assert.True(t, UploadInit.CanAdvanceTo(UploadCompleted))
	assert.True(t, UploadReceiving.CanAdvanceTo(UploadReceiving))
	assert.True(t, UploadReceiving.CanAdvanceTo(UploadCompleted))

	assert.False(t, UploadCompleted.CanAdvanceTo(UploadReceiving))
	assert.False(t, UploadReceiving.CanAdvanceTo(UploadInit))

	assert.Equal(t, "init", UploadInit.String())
	assert.Equal(t, "receiving", UploadReceiving.String())
	assert.Equal(t, "completed", UploadCompleted.String())
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{KindText, KindImage, KindVideo, KindVoice, KindFile} {
		assert.True(t, ValidKind(k), k)
	}
	assert.False(t, ValidKind(""))
	assert.False(t, ValidKind("sticker"))
}

func TestChatMessageVisibility(t *testing.T) {
	m := &ChatMessage{SenderID: 1, ReceiverID: 2, DeletedForReceiver: true}

	assert.True(t, m.PartyOf(1))
	assert.True(t, m.PartyOf(2))
	assert.False(t, m.PartyOf(3))

	assert.False(t, m.DeletedFor(1))
	assert.True(t, m.DeletedFor(2))
	assert.False(t, m.DeletedFor(3))

	assert.True(t, (&ChatMessage{}).Empty())
	assert.False(t, (&ChatMessage{Body: "hi"}).Empty())
	assert.False(t, (&ChatMessage{AttachmentURL: "/media/chat/a.png"}).Empty())
}
