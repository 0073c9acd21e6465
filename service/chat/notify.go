package chat

import (
	"context"
	"encoding/json"

	"SCProject/logger"
	"SCProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandleNotifyWS serves the notification topic: user_status, new_message,
// messages_read, friend_requests_count events flow server->client; the
// only inbound traffic is the ping keepalive.
func (s *Server) HandleNotifyWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	ch, ok := s.authenticate(c, ws)
	if !ok {
		return
	}

	s.notifyReg.Register(ch.UserID, ch)
	_ = ch.Transition(StateActive)
	safe.Go(ch.WritePump)
	s.tracker.Connected(c.Request.Context(), ch.UserID)

	defer func() {
		s.notifyReg.Unregister(ch.UserID, ch)
		ch.CloseWithCode(CloseNormal, "")
		s.tracker.Disconnected(context.Background(), ch.UserID)
	}()

	s.sendFriendRequestCount(c.Request.Context(), ch)
	s.notifyReadLoop(ch)
}

func (s *Server) sendFriendRequestCount(ctx context.Context, ch *Channel) {
	if s.friends == nil {
		return
	}
	n, err := s.friends.Count(ctx, ch.UserID)
	if err != nil {
		logger.Warnf("[notify] friend request count user=%d err=%v", ch.UserID, err)
		return
	}
	payload, err := marshalEvent(FriendRequestsCountEvent{Type: "friend_requests_count", Count: n})
	if err != nil {
		return
	}
	_ = ch.Enqueue(payload)
}

func (s *Server) notifyReadLoop(ch *Channel) {
	for {
		mt, data, err := ch.Read()
		if err != nil {
			logReadExit(ch, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var ctrl ControlFrame
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		if ctrl.Type == "ping" {
			payload, err := marshalEvent(PongEvent{Type: "pong"})
			if err != nil {
				continue
			}
			if err := ch.Enqueue(payload); err != nil {
				return
			}
		}
		// anything else on this topic is ignored
	}
}
