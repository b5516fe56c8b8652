package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-battle-service/internal/battle"
	"quiz-battle-service/internal/invite"
	"quiz-battle-service/internal/lobby"
	"quiz-battle-service/internal/notify"
)

// PresenceWriter is the slice of the presence store the transport needs.
type PresenceWriter interface {
	SetOnline(ctx context.Context, userID, displayName string, online bool) error
	Heartbeat(ctx context.Context, userID string) error
}

// WSHandler upgrades connections and wires them into the battle use cases.
// Each connection is one authenticated player; the session record reaches the
// client as full snapshots pushed on every change.
type WSHandler struct {
	matcher  *lobby.Matcher
	inviter  *invite.Manager
	coord    *battle.Coordinator
	bridge   *notify.Bridge
	presence PresenceWriter
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(matcher *lobby.Matcher, inviter *invite.Manager, coord *battle.Coordinator, bridge *notify.Bridge, presence PresenceWriter, log *zap.Logger) *WSHandler {
	return &WSHandler{
		matcher:  matcher,
		inviter:  inviter,
		coord:    coord,
		bridge:   bridge,
		presence: presence,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
}

type invitePayload struct {
	ToUserID string `json:"toUserId"`
}

type invitationRefPayload struct {
	InvitationID string `json:"invitationId"`
}

type answerPayload struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	OptionID      string `json:"optionId"`
}

type answerResultPayload struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	Correct       bool   `json:"correct"`
	Won           bool   `json:"won"`
}

// ServeWS upgrades the request and runs the connection loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if userID == "" || displayName == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	if err := h.presence.SetOnline(ctx, userID, displayName, true); err != nil {
		h.log.Warn("set online", zap.String("user", userID), zap.Error(err))
	}
	defer func() {
		if err := h.presence.SetOnline(context.Background(), userID, displayName, false); err != nil {
			h.log.Warn("set offline", zap.String("user", userID), zap.Error(err))
		}
	}()

	c := &wsClient{
		handler: h,
		conn:    conn,
		userID:  userID,
		send:    make(chan outboundMessage, 16),
		closing: make(chan struct{}),
	}
	c.run(ctx)
}

// wsClient holds the per-connection state: the outbound pump and at most one
// active session subscription.
type wsClient struct {
	handler *WSHandler
	conn    *websocket.Conn
	userID  string
	send    chan outboundMessage
	closing chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	followers   sync.WaitGroup
}

func (c *wsClient) run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := c.conn.WriteJSON(msg); err != nil {
				c.handler.log.Debug("ws write", zap.Error(err))
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := c.conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := c.handler.presence.Heartbeat(ctx, c.userID); err != nil {
			c.handler.log.Debug("heartbeat", zap.String("user", c.userID), zap.Error(err))
		}
		c.dispatch(ctx, inbound)
	}

	c.dropSubscription()
	close(c.closing)
	c.followers.Wait()
	close(c.send)
	<-writerDone
}

func (c *wsClient) dispatch(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "create_lobby":
		s, err := c.handler.matcher.CreateOpenSession(ctx, c.userID)
		if err != nil {
			c.fail(err)
			return
		}
		c.followSession(ctx, s.ID)

	case "join":
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		if _, err := c.handler.matcher.Join(ctx, p.SessionID, c.userID); err != nil {
			c.fail(err)
			return
		}
		c.followSession(ctx, p.SessionID)

	case "list_online":
		players, err := c.handler.matcher.ListOnline(ctx)
		if err != nil {
			c.fail(err)
			return
		}
		c.push(outboundMessage{Type: "players", Payload: players})

	case "invite":
		var p invitePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		inv, err := c.handler.inviter.Send(ctx, c.userID, p.ToUserID)
		if err != nil {
			c.fail(err)
			return
		}
		c.push(outboundMessage{Type: "invitation", Payload: inv})

	case "accept_invite":
		var p invitationRefPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		s, err := c.handler.inviter.Accept(ctx, p.InvitationID)
		if err != nil {
			c.fail(err)
			return
		}
		c.followSession(ctx, s.ID)

	case "reject_invite":
		var p invitationRefPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		if err := c.handler.inviter.Reject(ctx, p.InvitationID); err != nil {
			c.fail(err)
			return
		}

	case "answer":
		var p answerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		correct, won, err := c.handler.coord.SubmitAnswer(ctx, p.SessionID, c.userID, p.QuestionIndex, p.OptionID)
		if err != nil {
			c.fail(err)
			return
		}
		c.push(outboundMessage{Type: "answer_result", Payload: answerResultPayload{
			SessionID:     p.SessionID,
			QuestionIndex: p.QuestionIndex,
			Correct:       correct,
			Won:           won,
		}})

	case "forfeit":
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.fail(err)
			return
		}
		if _, err := c.handler.coord.Forfeit(ctx, p.SessionID, c.userID); err != nil {
			c.fail(err)
			return
		}

	default:
		c.push(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
}

// followSession switches the connection's subscription to sessionID and pumps
// every snapshot to the client until the session terminates.
func (c *wsClient) followSession(ctx context.Context, sessionID string) {
	updates, cancel, err := c.handler.bridge.Subscribe(ctx, sessionID)
	if err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.unsubscribe = cancel
	c.mu.Unlock()

	c.followers.Add(1)
	go func() {
		defer c.followers.Done()
		for {
			select {
			case s, ok := <-updates:
				if !ok {
					return
				}
				c.push(outboundMessage{Type: "session", Payload: s})
			case <-c.closing:
				return
			}
		}
	}()
}

func (c *wsClient) dropSubscription() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *wsClient) push(msg outboundMessage) {
	select {
	case c.send <- msg:
	case <-c.closing:
	}
}

func (c *wsClient) fail(err error) {
	c.push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
}
