package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/frontier/internal/events"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

// EventsSocketHandler streams bus events to websocket clients.
type EventsSocketHandler struct {
	bus       *events.Bus
	devMode   bool
	log       zerolog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventsSocketHandler creates the handler. In dev mode cross-origin
// connections are accepted.
func NewEventsSocketHandler(bus *events.Bus, devMode bool, log zerolog.Logger) *EventsSocketHandler {
	return &EventsSocketHandler{
		bus:     bus,
		devMode: devMode,
		log:     log.With().Str("component", "events_socket").Logger(),
		done:    make(chan struct{}),
	}
}

// Close disconnects every client.
func (h *EventsSocketHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP handles GET /api/events. ?types=RUN_COMPLETED,DATA_REFRESHED
// narrows the stream.
func (h *EventsSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var types []events.EventType
	if filter := r.URL.Query().Get("types"); filter != "" {
		for _, t := range strings.Split(filter, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.EventType(strings.ToUpper(t)))
			}
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// Clients only listen; CloseRead handles their control frames
	ctx := conn.CloseRead(r.Context())

	sub := h.bus.Subscribe(types...)
	defer h.bus.Unsubscribe(sub)

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("Client disconnected from event stream")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event, dropping client")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *EventsSocketHandler) write(ctx context.Context, conn *websocket.Conn, event events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}
