package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"timed-exercise-service/internal/app"
	"timed-exercise-service/internal/domain"
)

// WSHandler carries visibility signals over a websocket and pushes the attempt's
// terminal result back to the page, whichever trigger completed it.
type WSHandler struct {
	engine   *app.Engine
	sessions *CookieSessions
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(engine *app.Engine, sessions *CookieSessions, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine:   engine,
		sessions: sessions,
		// A nil CheckOrigin rejects cross-origin handshakes.
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type readyPayload struct {
	Token string `json:"token"`
}

// closeFrame tells the writer to send a normal close and stop.
const closeFrame = ""

// ServeWS upgrades the request and relays blur/focus frames to the engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	sessionID, ok := h.sessions.Lookup(r)
	if !ok {
		http.Error(w, GetMessage(ErrInvalidSession), http.StatusForbidden)
		return
	}

	updates, cancel, err := h.engine.Subscribe(r.Context(), sessionID, token)
	if err != nil {
		status, code := classify(err, ErrInvalidPayload, ErrCompletionUnavailable)
		http.Error(w, GetMessage(code), status)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("token", token).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if msg.Type == closeFrame {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt completed"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("token", token).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		select {
		case result, ok := <-updates:
			if ok {
				push(outboundMessage[any]{Type: "completed", Payload: result})
			}
			push(outboundMessage[any]{Type: closeFrame})
		case <-closeSignals:
		}
	}()

	push(outboundMessage[any]{Type: "ready", Payload: readyPayload{Token: token}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: GetMessage(ErrInvalidPayload)}})
				continue
			}
			break
		}
		kind := domain.ActivityKind(inbound.Type)
		if kind != domain.ActivityBlur && kind != domain.ActivityFocus {
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
			continue
		}
		if err := h.engine.ReportActivity(r.Context(), sessionID, token, kind); err != nil {
			_, code := classify(err, ErrInvalidPayload, ErrCompletionUnavailable)
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: GetMessage(code)}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
