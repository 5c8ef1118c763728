package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/models"
	"github.com/macronotify/capture-api/internal/relay"
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves the live event stream. Each new connection becomes
// the hub's subscriber, replacing whichever connection held the slot
// before; the platform guarantees one logical consumer at a time.
type StreamHandler struct {
	hub    *relay.Hub
	logger zerolog.Logger
}

func NewStreamHandler(hub *relay.Hub, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: logger.With().Str("handler", "stream").Logger(),
	}
}

// wsSubscriber adapts a websocket connection to relay.Subscriber. Deliver
// hands the record to a buffered channel; a dedicated writer goroutine
// owns all writes to the connection.
type wsSubscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (s *wsSubscriber) Deliver(notif models.Notification) error {
	payload, err := json.Marshal(notif)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	// Never block the capture path on a slow consumer.
	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errors.New("connection closed")
	default:
		return errors.New("send buffer full, record dropped")
	}
}

func (s *wsSubscriber) writer() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket")
		return
	}

	sub := &wsSubscriber{
		conn: ws,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	token := h.hub.Attach(sub)
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("live stream connected")

	go sub.writer()

	// Read loop only to detect the peer going away; the stream is
	// one-directional.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Detach(token)
	close(sub.done)
	_ = ws.Close()
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("live stream disconnected")
}
