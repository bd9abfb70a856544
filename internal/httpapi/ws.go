package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
)

// handleDialogueWS runs the two-phase flow over one socket: for each
// dialogue_request the server pushes character_message as soon as the line
// is ready, then dialogue_options. Requests on one connection are served in
// order.
func (s *Server) handleDialogueWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.ClientDialogueRequest, 16)
	outbound := make(chan any, 32)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		for req := range inbound {
			s.serveDialogueRequest(ctx, req, outbound)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				// Keep draining so the runner never blocks on a dead socket.
				continue
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.ObserveWSMessage("inbound", "invalid")
			select {
			case outbound <- protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}:
			default:
			}
			continue
		}

		req, ok := parsed.(protocol.ClientDialogueRequest)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(req.Type))
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- req:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
}

func (s *Server) serveDialogueRequest(ctx context.Context, req protocol.ClientDialogueRequest, outbound chan<- any) {
	dr := req.DialogueRequest
	if req.Mode == protocol.ModeStart {
		dr.UserChoice = nil
		dr.ConversationHistory = nil
	}

	line := s.dialogue.CharacterMessage(ctx, dr)
	if !push(ctx, outbound, protocol.CharacterMessageEvent{
		Type:      protocol.TypeCharacterMessage,
		RequestID: req.RequestID,
		Message:   line.Message,
		Outcome:   string(line.Outcome),
	}) {
		return
	}
	if !line.Succeeded() {
		return
	}

	dr.CharacterMessage = line.Message
	opts := s.dialogue.Options(ctx, dr).Response()
	push(ctx, outbound, protocol.DialogueOptionsEvent{
		Type:      protocol.TypeDialogueOptions,
		RequestID: req.RequestID,
		Options:   opts.Options,
		Outcome:   opts.Outcome,
	})
}

func push(ctx context.Context, outbound chan<- any, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case outbound <- msg:
		return true
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.CharacterMessageEvent:
		return m.Type, true
	case protocol.DialogueOptionsEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
