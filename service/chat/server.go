package chat

import (
	"net/http"

	"SCProject/logger"
	chatstore "SCProject/module/chat/service"
	"SCProject/service/auth"
	"SCProject/service/notify"
	"SCProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Config struct {
	Resolver auth.Resolver
	Messages chatstore.MessageStore
	Friends  chatstore.FriendRequestCounter
	Presence PresenceStore
	Push     *notify.Dispatcher // optional; nil disables push events
}

// Server owns the two logical topics of the realtime core: the chat
// connection registry and the notification registry, plus the presence
// tracker spanning both.
type Server struct {
	chatReg   *Registry
	notifyReg *Registry
	tracker   *Tracker

	resolver auth.Resolver
	messages chatstore.MessageStore
	friends  chatstore.FriendRequestCounter
	push     *notify.Dispatcher
}

func NewServer(cfg Config) *Server {
	safe.MustNotNil(cfg.Resolver, "resolver")
	safe.MustNotNil(cfg.Messages, "message store")
	safe.MustNotNil(cfg.Presence, "presence store")

	notifyReg := NewRegistry()
	return &Server{
		chatReg:   NewRegistry(),
		notifyReg: notifyReg,
		tracker:   NewTracker(cfg.Presence, notifyReg),
		resolver:  cfg.Resolver,
		messages:  cfg.Messages,
		friends:   cfg.Friends,
		push:      cfg.Push,
	}
}

func (s *Server) ChatRegistry() *Registry   { return s.chatReg }
func (s *Server) NotifyRegistry() *Registry { return s.notifyReg }
func (s *Server) Tracker() *Tracker         { return s.tracker }

// Shutdown drains every live channel on both registries.
func (s *Server) Shutdown() {
	s.chatReg.Close()
	s.notifyReg.Close()
}

// authenticate runs the Connecting -> Authenticated step of the channel
// state machine. On failure, the channel is closed with the auth-rejected
// code and never reaches Active.
func (s *Server) authenticate(c *gin.Context, ws *websocket.Conn) (*Channel, bool) {
	ch := NewChannel(ws)

	credential := auth.Pick(c.Param("token"), c.Query("token"))
	uid, err := s.resolver.Resolve(c.Request.Context(), credential)
	if err != nil {
		logger.Infof("[ws] auth rejected channel=%s err=%v", ch.ID, err)
		ch.CloseWithCode(CloseAuthRejected, "authentication rejected")
		return nil, false
	}

	ch.UserID = uid
	_ = ch.Transition(StateAuthenticated)
	return ch, true
}
