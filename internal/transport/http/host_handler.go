package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/live"
)

// HostHandler drives the host control surface: create a session from a
// question set, then start/pause/resume/stop/next/reset it while watching
// the same snapshot stream the participants see.
type HostHandler struct {
	service         *live.Service
	questions       live.QuestionRepository
	timePerQuestion int
	upgrader        websocket.Upgrader
}

// NewHostHandler wires the host endpoint. timePerQuestion is the configured
// default applied when a create request does not name its own limit.
func NewHostHandler(service *live.Service, questions live.QuestionRepository, timePerQuestion int) *HostHandler {
	return &HostHandler{
		service:         service,
		questions:       questions,
		timePerQuestion: timePerQuestion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type createPayload struct {
	QuestionSet     string `json:"questionSet"`
	TimePerQuestion int    `json:"timePerQuestion"`
}

type createdPayload struct {
	SessionID string `json:"sessionId"`
}

// ServeWS handles a host connection.
func (h *HostHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	hostID := r.URL.Query().Get("hostId")
	if hostID == "" {
		http.Error(w, "missing hostId", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("host ws write error")
				return
			}
		}
	}()

	var cancelSub func()
	var subDone chan struct{}
	defer func() {
		if cancelSub != nil {
			cancelSub()
			<-subDone
		}
	}()

	watch := func(id string) {
		if cancelSub != nil {
			cancelSub()
			<-subDone
			cancelSub = nil
		}
		updates, cancel, err := h.service.Subscribe(ctx, id)
		if err != nil {
			send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
			return
		}
		cancelSub = cancel
		subDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
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
		}(subDone)
	}

	if sessionID != "" {
		watch(sessionID)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "create":
			var payload createPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "result", Payload: resultPayload{Success: false, Error: "invalid create payload"}}
				continue
			}
			questions, err := h.questions.GetQuestionSet(ctx, payload.QuestionSet)
			if err != nil {
				send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
				continue
			}
			timePerQuestion := payload.TimePerQuestion
			if timePerQuestion <= 0 {
				timePerQuestion = h.timePerQuestion
			}
			session, err := h.service.Create(ctx, hostID, questions, timePerQuestion)
			if err != nil {
				send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
				continue
			}
			sessionID = session.ID
			send <- outboundMessage[any]{Type: "created", Payload: createdPayload{SessionID: sessionID}}
			watch(sessionID)
		case "start", "pause", "resume", "stop", "next", "reset":
			if sessionID == "" {
				send <- outboundMessage[any]{Type: "result", Payload: resultPayload{Success: false, Error: "no session selected"}}
				continue
			}
			if err := h.control(ctx, inbound.Type, sessionID); err != nil {
				send <- outboundMessage[any]{Type: "result", Payload: errResult(err)}
				continue
			}
			send <- outboundMessage[any]{Type: "result", Payload: okResult()}
		default:
			send <- outboundMessage[any]{Type: "result", Payload: resultPayload{Success: false, Error: "unsupported message type"}}
		}
	}

	close(closeSignals)
	if cancelSub != nil {
		cancelSub()
		<-subDone
		cancelSub = nil
	}
	close(send)
	<-writerDone
}

func (h *HostHandler) control(ctx context.Context, action, sessionID string) error {
	switch action {
	case "start":
		return h.service.Start(ctx, sessionID)
	case "pause":
		return h.service.Pause(ctx, sessionID)
	case "resume":
		return h.service.Resume(ctx, sessionID)
	case "stop":
		return h.service.Stop(ctx, sessionID)
	case "next":
		_, err := h.service.ForceNextQuestion(ctx, sessionID)
		return err
	case "reset":
		return h.service.Reset(ctx, sessionID)
	}
	return nil
}
