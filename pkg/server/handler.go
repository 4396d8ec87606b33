package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cowave/cowave/pkg/room"
)

const tracerName = "cowave"

// Handler is the HTTP entry point: health checks on plain requests,
// WebSocket upgrades routed to room actors.
type Handler struct {
	registry *Registry
	config   *Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// NewHandler creates the relay's HTTP handler. metrics may be nil.
func NewHandler(registry *Registry, config *Config, logger *slog.Logger, metrics *Metrics) *Handler {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	return &Handler{
		registry: registry,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if upgrade := r.Header.Get("Upgrade"); upgrade == "" {
		// Plain request: health check.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	} else if !strings.EqualFold(upgrade, "websocket") {
		h.reject(w, rejectNotWebSocket, http.StatusUpgradeRequired, "upgrade required")
		return
	}

	name := roomName(r)
	if name == "" {
		h.reject(w, rejectMissingRoom, http.StatusBadRequest, "missing room")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "ws.connect",
		trace.WithAttributes(attribute.String("room", name)))
	defer span.End()

	rm := h.registry.GetOrCreate(name)

	if err := rm.Admit(ctx, r.URL.Query().Get("passcode")); err != nil {
		if errors.Is(err, room.ErrUnauthorized) {
			span.SetStatus(codes.Error, "unauthorized")
			h.reject(w, rejectBadPasscode, http.StatusUnauthorized, "invalid passcode")
			return
		}
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("admission failed", "room", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written its response.
		span.SetStatus(codes.Error, "upgrade failed")
		h.logger.Error("websocket upgrade failed", "room", name, "error", err)
		return
	}

	token := uuid.NewString()
	span.SetAttributes(attribute.String("session", token))

	t := newTransport(conn, h.config, h.logger)
	go t.writePump()

	if err := rm.Join(t, token); err != nil {
		t.Close()
		return
	}

	if h.metrics != nil {
		h.metrics.ConnectionsTotal.Inc()
		h.metrics.ConnectionsActive.Inc()
	}
	h.readPump(rm, t, conn)
}

// readPump reads frames off the connection and forwards them to the
// actor. It owns the teardown: when the read side ends, the transport
// closes and the session leaves its room.
func (h *Handler) readPump(rm *room.Room, t *wsTransport, conn *websocket.Conn) {
	start := time.Now()
	defer func() {
		t.Close()
		rm.Leave(t)
		if h.metrics != nil {
			h.metrics.ConnectionsActive.Dec()
			h.metrics.ConnectionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	conn.SetReadLimit(h.config.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				h.logger.Error("read error", "room", rm.Name(), "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.config.PongWait))

		if mt != websocket.BinaryMessage {
			continue
		}
		if err := rm.HandleFrame(t, msg); err != nil {
			// Room closed underneath us.
			return
		}
	}
}

func (h *Handler) reject(w http.ResponseWriter, reason string, status int, body string) {
	if h.metrics != nil {
		h.metrics.UpgradeRejected.WithLabelValues(reason).Inc()
	}
	http.Error(w, body, status)
}

// roomName resolves the room for a request: the room query parameter,
// else a single path segment, else the segment following a "websocket"
// path prefix.
func roomName(r *http.Request) string {
	if name := r.URL.Query().Get("room"); name != "" {
		return name
	}

	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		return segments[0]
	case len(segments) == 2 && segments[0] == "websocket":
		return segments[1]
	}
	return ""
}
