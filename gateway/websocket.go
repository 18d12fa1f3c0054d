package gateway

import (
	goerrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campus-chat/domain"
	"campus-chat/domain/event"
	"campus-chat/errors"
)

// inboundFrame is what a connected client sends over the socket.
type inboundFrame struct {
	Action   string     `json:"action"`
	GroupID  *uuid.UUID `json:"group_id,omitempty"`
	Receiver string     `json:"receiver,omitempty"`
	Content  string     `json:"content,omitempty"`
}

// outboundFrame wraps every server-to-client payload with a type tag.
type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool, len(h.allowedOrigins))
	for _, origin := range h.allowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// No configured origins means same-process tooling only.
			if len(h.allowedOrigins) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// HandleWebSocket upgrades the connection and runs the session until the
// client disconnects. Every session implicitly joins its user's private
// stream so notifications reach it without an explicit join.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	s := &session{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
		sink:     NewSessionSink(h.sinkBufferSize),
		handler:  h,
		replies:  make(chan outboundFrame, 16),
		done:     make(chan struct{}),
	}
	h.registry.Join(s.id, event.UserKey(username), s.sink)
	h.log.Info("Session opened", "session_id", s.id, "username", username)

	go s.writePump()
	s.readPump()

	h.registry.LeaveAll(s.id)
	close(s.done)
	_ = conn.Close()
	h.log.Info("Session closed", "session_id", s.id, "username", username)
}

type session struct {
	id       string
	username string
	conn     *websocket.Conn
	sink     *SessionSink
	handler  *Handler
	replies  chan outboundFrame
	done     chan struct{}
}

// writePump is the only goroutine writing to the connection.
func (s *session) writePump() {
	for {
		select {
		case e := <-s.sink.Events():
			if err := s.conn.WriteJSON(frameFor(e)); err != nil {
				return
			}
		case reply := <-s.replies:
			if err := s.conn.WriteJSON(reply); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) readPump() {
	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}
		s.dispatch(frame)
	}
}

func (s *session) dispatch(frame inboundFrame) {
	switch frame.Action {
	case "join":
		s.join(frame)
	case "leave":
		s.leave(frame)
	case "message":
		s.send(frame)
	default:
		s.reply(outboundFrame{Type: "error", Error: "unknown action " + frame.Action})
	}
}

// join subscribes the session to a conversation's live events. Joining a
// group requires membership; a rejected join changes nothing.
func (s *session) join(frame inboundFrame) {
	key, err := s.conversationKey(frame)
	if err != nil {
		s.reply(outboundFrame{Type: "error", Error: err.Error()})
		return
	}
	if frame.GroupID != nil {
		group, err := s.handler.membership.GetGroup(*frame.GroupID)
		if err != nil {
			s.reply(outboundFrame{Type: "error", Error: err.Error()})
			return
		}
		if !group.HasMember(s.username) {
			s.reply(outboundFrame{Type: "error", Error: "not a member of the group"})
			return
		}
	}
	s.handler.registry.Join(s.id, key, s.sink)
	s.reply(outboundFrame{Type: "joined", Payload: string(key)})
}

func (s *session) leave(frame inboundFrame) {
	key, err := s.conversationKey(frame)
	if err != nil {
		s.reply(outboundFrame{Type: "error", Error: err.Error()})
		return
	}
	s.handler.registry.Leave(s.id, key)
	s.reply(outboundFrame{Type: "left", Payload: string(key)})
}

// send persists a message through the same services the REST path uses,
// so moderation, membership checks and fan-out apply identically.
func (s *session) send(frame inboundFrame) {
	var err error
	for attempt := 0; attempt < s.handler.storageRetries; attempt++ {
		if frame.GroupID != nil {
			_, err = s.handler.chat.SendGroupMessage(*frame.GroupID, s.username, frame.Content)
		} else if frame.Receiver != "" {
			_, err = s.handler.chat.SendDirectMessage(s.username, frame.Receiver, frame.Content)
		} else {
			err = errors.Validation("message needs a group_id or a receiver")
		}
		if !goerrors.Is(err, errors.ErrStorage) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	switch {
	case goerrors.Is(err, errors.ErrStorage):
		// Retries exhausted, the message never reached the store.
		s.reply(outboundFrame{Type: "undelivered", Error: err.Error()})
	case err != nil:
		s.reply(outboundFrame{Type: "error", Error: err.Error()})
	}
}

func (s *session) conversationKey(frame inboundFrame) (domain.ConversationKey, error) {
	if frame.GroupID != nil {
		return domain.GroupKey(*frame.GroupID), nil
	}
	if frame.Receiver != "" {
		return domain.DirectKey(s.username, frame.Receiver), nil
	}
	return "", errors.Validation("frame needs a group_id or a receiver")
}

func (s *session) reply(frame outboundFrame) {
	select {
	case s.replies <- frame:
	case <-s.done:
	}
}

func frameFor(e event.DomainEvent) outboundFrame {
	switch typed := e.(type) {
	case event.GroupMessagePosted:
		return outboundFrame{Type: "group_message", Payload: typed.Message}
	case event.DirectMessagePosted:
		return outboundFrame{Type: "direct_message", Payload: typed.Message}
	case event.NotificationCreated:
		return outboundFrame{Type: "notification", Payload: typed.Notification}
	case event.MemberJoined:
		return outboundFrame{Type: "member_joined", Payload: typed}
	case event.MemberLeft:
		return outboundFrame{Type: "member_left", Payload: typed}
	default:
		return outboundFrame{Type: "event", Payload: typed}
	}
}
