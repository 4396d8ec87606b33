package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport errors reported to the room's broadcast path.
var (
	ErrTransportClosed = errors.New("server: transport closed")
	ErrSendBufferFull  = errors.New("server: send buffer full")
)

// wsTransport adapts a gorilla WebSocket connection to room.Transport.
// Send enqueues without blocking; a dedicated write pump owns all writes
// to the connection, including keepalive pings.
type wsTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	config *Config
	logger *slog.Logger
}

func newTransport(conn *websocket.Conn, config *Config, logger *slog.Logger) *wsTransport {
	return &wsTransport{
		conn:   conn,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		config: config,
		logger: logger,
	}
}

// Send enqueues a binary frame. It never blocks: a full queue means the
// client is not keeping up and the caller treats it as a disconnect.
func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return ErrTransportClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the underlying connection
// and in turn unblocks the read pump.
func (t *wsTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// writePump drains the send queue onto the connection and pings on an
// interval. It exits on the first write error or on Close.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(t.config.PingInterval)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case msg := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := t.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				t.logger.Debug("write failed", "error", err)
				t.Close()
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}

		case <-t.done:
			return
		}
	}
}
