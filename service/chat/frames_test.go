package chat

import (
	"testing"
	"time"

	"SCProject/module/chat/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound(t *testing.T) {
	f, err := ParseInbound([]byte(`{"receiver_id":5,"message":"  hi there  ","message_type":"text"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.ReceiverID)
	assert.Equal(t, "hi there", f.Message)
	assert.False(t, f.Empty())

	_, err = ParseInbound([]byte(`{not json`))
	assert.Error(t, err)
}

func TestInboundFrameEmpty(t *testing.T) {
	f, err := ParseInbound([]byte(`{"receiver_id":5,"message":"   "}`))
	require.NoError(t, err)
	assert.True(t, f.Empty())

	f, err = ParseInbound([]byte(`{"receiver_id":5,"file_path":"/media/chat/a.png"}`))
	require.NoError(t, err)
	assert.False(t, f.Empty())
}

func TestInboundFrameKind(t *testing.T) {
	cases := []struct {
		name  string
		frame InboundFrame
		want  string
	}{
		{"declared text", InboundFrame{MessageType: "text", Message: "hi"}, model.KindText},
		{"declared image", InboundFrame{MessageType: "image", FilePath: "/media/chat/a.png"}, model.KindImage},
		{"unknown with attachment", InboundFrame{MessageType: "weird", FilePath: "/media/chat/a.bin"}, model.KindFile},
		{"unknown without attachment", InboundFrame{MessageType: "weird", Message: "hi"}, model.KindText},
		{"missing type", InboundFrame{Message: "hi"}, model.KindText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.frame.Kind())
		})
	}
}

func TestDeliveryFromModel(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &model.ChatMessage{
		ID:            101,
		SenderID:      1,
		ReceiverID:    2,
		Body:          "hello",
		AttachmentURL: "/media/chat/x.jpg",
		Kind:          model.KindImage,
		CreatedAt:     created,
		Read:          true,
	}

	d := DeliveryFromModel(m)
	assert.Equal(t, int64(101), d.ID)
	assert.Equal(t, "hello", d.Message)
	assert.Equal(t, "/media/chat/x.jpg", d.FilePath)
	assert.Equal(t, model.KindImage, d.MessageType)
	assert.Equal(t, "2026-05-01T12:00:00Z", d.Timestamp)
	assert.True(t, d.IsRead)
}
