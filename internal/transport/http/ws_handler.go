// Package http exposes the live quiz over websockets: one endpoint for
// participants, one for the host's session controls.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/live"
)

type WSHandler struct {
	service  *live.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *live.Service) *WSHandler {
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Option        int `json:"option"`
}

type answerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Score         int  `json:"score"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// resultPayload is the uniform ack shape: callers branch on success instead
// of parsing error strings.
type resultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func okResult() resultPayload {
	return resultPayload{Success: true}
}

func errResult(err error) resultPayload {
	return resultPayload{Success: false, Error: err.Error()}
}

// ServeWS handles a participant connection: join on connect, stream session
// snapshots, accept answer submissions.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	participantID := r.URL.Query().Get("participantId")
	name := r.URL.Query().Get("name")
	if sessionID == "" || participantID == "" || name == "" {
		http.Error(w, "missing sessionId, participantId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	if err := h.service.Join(ctx, sessionID, participantID, name); err != nil {
		_ = conn.WriteJSON(outboundMessage[resultPayload]{Type: "result", Payload: errResult(err)})
		return
	}

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[resultPayload]{Type: "result", Payload: errResult(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("session_id", sessionID).Msg("ws write error")
				return
			}
		}
	}()

	// Ack before pumping updates so the client always sees joined first.
	send <- outboundMessage[any]{Type: "joined", Payload: okResult()}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				var msg outboundMessage[any]
				if ev.Err != nil {
					msg = outboundMessage[any]{Type: "result", Payload: errResult(ev.Err)}
				} else {
					msg = outboundMessage[any]{Type: "session", Payload: ev.Session}
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "result", Payload: resultPayload{Success: false, Error: "invalid answer payload"}}
				continue
			}
			h.handleAnswer(r, send, sessionID, participantID, payload)
		default:
			send <- outboundMessage[any]{Type: "result", Payload: resultPayload{Success: false, Error: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleAnswer(r *http.Request, send chan<- outboundMessage[any], sessionID, participantID string, payload answerPayload) {
	ctx := r.Context()
	if err := h.service.SubmitAnswer(ctx, sessionID, participantID, payload.QuestionIndex, payload.Option); err != nil {
		send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
		return
	}

	session, err := h.service.Get(ctx, sessionID)
	if err != nil {
		send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
		return
	}

	correct := false
	score := 0
	if p, ok := session.Participants[participantID]; ok {
		score = p.Score
	}
	if payload.QuestionIndex >= 0 && payload.QuestionIndex < len(session.Questions) &&
		payload.Option == session.Questions[payload.QuestionIndex].CorrectOptionIndex {
		correct = true
		score++
		// This connection is the only writer of this participant's score.
		if err := h.service.UpdateScore(ctx, sessionID, participantID, score); err != nil {
			send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
			return
		}
	}
	send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
		QuestionIndex: payload.QuestionIndex,
		Correct:       correct,
		Score:         score,
	}}
}

