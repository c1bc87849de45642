// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/warden-project/warden/approval"
	"github.com/warden-project/warden/audit"
)

// channelFrame is the single frame shape used in both directions on
// the interactive channel.
//
// Client to server: type "chat" (Content), "resolve" (ID, Granted),
// "otp" (ID, Code).
// Server to client: type "event" (Record), "reply" (ID, Content),
// "error" (ID, Error).
type channelFrame struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Granted *bool         `json:"granted,omitempty"`
	Code    string        `json:"code,omitempty"`
	Content string        `json:"content,omitempty"`
	Record  *audit.Record `json:"record,omitempty"`
	Error   string        `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Pairing-token auth runs before the upgrade; origin checks add
	// nothing for non-browser clients and the dashboard sends the
	// token explicitly.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	channelWriteWait = 10 * time.Second
	channelPingEvery = 30 * time.Second
)

// handleChannel serves the interactive WebSocket channel: audit
// events stream out, chat turns and approval decisions come in. A
// chat turn that suspends on approval keeps the socket free, so the
// decision that unblocks it can arrive on the same connection.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Each connection is one interactive session. Interactive
	// sessions never receive standing grants.
	session := approval.Session{ID: uuid.NewString(), Interactive: true}
	defer s.config.Engine.RevokeSession(session.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan channelFrame, 32)
	go s.channelWriter(ctx, conn, outbound)

	events, unsubscribe := s.config.Broadcast.Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case record, ok := <-events:
				if !ok {
					return
				}
				select {
				case outbound <- channelFrame{Type: "event", Record: &record}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		var frame channelFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("channel read failed", "session", session.ID, "error", err)
			}
			return
		}
		switch frame.Type {
		case "chat":
			// Run each turn off the read loop so approval decisions
			// for this very turn can still be read.
			go s.channelChat(ctx, session, frame, outbound)
		case "resolve":
			if frame.Granted == nil {
				s.channelError(ctx, outbound, frame.ID, "granted is required")
				continue
			}
			if err := s.config.Engine.Resolve(frame.ID, *frame.Granted); err != nil {
				s.channelError(ctx, outbound, frame.ID, err.Error())
			}
		case "otp":
			if err := s.config.Engine.ResolveOTP(frame.ID, frame.Code); err != nil {
				s.channelError(ctx, outbound, frame.ID, "otp resolution rejected")
			}
		default:
			s.channelError(ctx, outbound, frame.ID, "unknown frame type")
		}
	}
}

// channelWriter is the single writer for a connection.
func (s *Server) channelWriter(ctx context.Context, conn *websocket.Conn, outbound <-chan channelFrame) {
	ping := time.NewTicker(channelPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// channelChat runs one chat turn and delivers the guarded reply.
func (s *Server) channelChat(ctx context.Context, session approval.Session, frame channelFrame, outbound chan<- channelFrame) {
	snapshot := s.config.Policy()

	reply, err := s.config.Responder.Respond(ctx, []ChatMessage{{Role: "user", Content: frame.Content}})
	if err != nil {
		s.channelError(ctx, outbound, frame.ID, "upstream failure")
		return
	}

	parts := []string{}
	if reply.Text != "" {
		parts = append(parts, reply.Text)
	}
	if len(reply.Calls) > 0 {
		for _, result := range s.config.Loop.Execute(ctx, session, snapshot, reply.Calls) {
			parts = append(parts, result.Output)
		}
	}
	guarded := s.guardOutbound("channel", strings.Join(parts, "\n"), snapshot)

	select {
	case outbound <- channelFrame{Type: "reply", ID: frame.ID, Content: guarded}:
	case <-ctx.Done():
	}
}

func (s *Server) channelError(ctx context.Context, outbound chan<- channelFrame, id, message string) {
	select {
	case outbound <- channelFrame{Type: "error", ID: id, Error: message}:
	case <-ctx.Done():
	}
}

