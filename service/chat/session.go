package chat

import (
	"context"
	"net"
	"time"

	"SCProject/logger"
	"SCProject/module/chat/model"
	errs "SCProject/tools/errs"
	"SCProject/tools/ids"
	"SCProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const persistTimeout = 5 * time.Second

// HandleChatWS serves the chat topic. Channel lifecycle:
// Connecting -> Authenticated -> Active -> Closed. The credential comes
// from the :token path segment with the token query param as fallback.
func (s *Server) HandleChatWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	ch, ok := s.authenticate(c, ws)
	if !ok {
		return
	}

	s.chatReg.Register(ch.UserID, ch)
	_ = ch.Transition(StateActive)
	safe.Go(ch.WritePump)
	s.tracker.Connected(c.Request.Context(), ch.UserID)

	defer func() {
		// Teardown is deterministic and idempotent regardless of whether
		// the read loop died or the peer closed cleanly first.
		s.chatReg.Unregister(ch.UserID, ch)
		ch.CloseWithCode(CloseNormal, "")
		s.tracker.Disconnected(context.Background(), ch.UserID)
	}()

	s.chatReadLoop(ch)
}

func (s *Server) chatReadLoop(ch *Channel) {
	for {
		mt, data, err := ch.Read()
		if err != nil {
			logReadExit(ch, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseInbound(data)
		if perr != nil {
			logger.Infof("[chat] bad frame channel=%s err=%v", ch.ID, perr)
			s.sendErr(ch, errs.ErrBadRequest.WithDetail("malformed frame"))
			continue
		}
		if frame.Empty() {
			// neither text nor attachment: drop, no error
			continue
		}
		if frame.ReceiverID <= 0 {
			s.sendErr(ch, errs.ErrBadRequest.WithDetail("missing receiver_id"))
			continue
		}

		s.handleChatFrame(ch, frame)
	}
}

// handleChatFrame persists the message, then fans out: to the receiver's
// chat channels, back to the sender's chat channels (other devices), and
// as a new_message event on the receiver's notification channels. Frames
// from one channel are processed in arrival order.
func (s *Server) handleChatFrame(ch *Channel, frame *InboundFrame) {
	m := &model.ChatMessage{
		ID:             ids.Generate(),
		SenderID:       ch.UserID,
		ReceiverID:     frame.ReceiverID,
		Body:           frame.Message,
		AttachmentURL:  frame.FilePath,
		Kind:           frame.Kind(),
		CreatedAt:      time.Now().UTC(),
		ClientDedupeID: frame.DedupeID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.messages.Save(ctx, m); err != nil {
		// failed persistence must not trigger fan-out
		logger.Errorf("[chat] persist failed sender=%d receiver=%d err=%v", m.SenderID, m.ReceiverID, err)
		s.sendErr(ch, errs.ErrInternal)
		return
	}

	d := DeliveryFromModel(m)
	s.chatReg.Send(m.ReceiverID, d)
	s.chatReg.Send(m.SenderID, d)
	s.notifyReg.Send(m.ReceiverID, NewMessageEvent{Type: "new_message", Data: d})
	if s.push != nil {
		s.push.Enqueue(m.ReceiverID, NewMessageEvent{Type: "new_message", Data: d})
	}
}

func (s *Server) sendErr(ch *Channel, ce *errs.CodeError) {
	payload, err := marshalEvent(ErrorEvent{Type: "error", Code: ce.Code, Msg: ce.Msg})
	if err != nil {
		return
	}
	if err := ch.Enqueue(payload); err != nil {
		logger.Warnf("[chat] error event drop channel=%s err=%v", ch.ID, err)
	}
}

func logReadExit(ch *Channel, err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		logger.Infof("[ws] peer closed channel=%s user=%d", ch.ID, ch.UserID)
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			logger.Infof("[ws] read timeout channel=%s user=%d", ch.ID, ch.UserID)
			return
		}
		logger.Infof("[ws] read error channel=%s user=%d err=%v", ch.ID, ch.UserID, err)
	}
}
