package server

import (
	"net/http"
	"time"
)

// Config holds the HTTP/WebSocket server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":4040".
	Addr string

	// ReadLimit is the maximum inbound WebSocket message size in bytes.
	ReadLimit int64

	// SendBuffer is the per-session outbound queue depth. A full queue
	// counts as a failed send and drops the session.
	SendBuffer int

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings idle connections.
	PingInterval time.Duration

	// PongWait is how long a connection may stay silent before the read
	// side gives up. Must exceed PingInterval.
	PongWait time.Duration

	// ReadBufferSize / WriteBufferSize size the upgrader's buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin overrides the upgrader's origin check. Defaults to
	// accepting any origin; the passcode gate is the access control.
	CheckOrigin func(*http.Request) bool

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":4040",
		ReadLimit:       1 << 20, // 1MB
		SendBuffer:      64,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
		ShutdownTimeout: 10 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait == 0 {
		c.PongWait = d.PongWait
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
