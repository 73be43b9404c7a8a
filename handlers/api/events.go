package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/progress"
	"github.com/nijaru/autoclip/services/clips"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type EventSource interface {
	Subscribe(jobID string) *progress.Subscription
	Unsubscribe(sub *progress.Subscription)
}

type EventHandler struct {
	service  clips.Service
	events   EventSource
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewEventHandler(service clips.Service, events EventSource, allowedOrigins []string, logger *logrus.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleEvents handles GET /api/v1/jobs/{id}/events. Events emitted after
// the connection is established are written as JSON text frames and the
// socket is closed after the terminal event.
func (h *EventHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "EventHandler.HandleEvents"

	id := r.PathValue("id")
	sub := h.events.Subscribe(id)
	defer h.events.Unsubscribe(sub)

	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if job.IsTerminal() {
		respondError(w, r, errors.E(op, nil, "Job has already finished", http.StatusConflict))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		return
	}
	defer conn.Close()

	logger := h.logger.WithFields(logrus.Fields{
		"operation": op,
		"job_id":    id,
	})
	logger.Debug("Event stream opened")

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("Client closed event stream")
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.WithError(err).Warn("Failed to write event")
				return
			}
			if ev.Terminal() {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Kind))
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
		}
	}
}

// readPump drains control frames so pongs and client closes are seen.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
