package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live message-framed socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Subprotocol() string
	Close() error
}

// DialRequest carries everything a Dialer needs for one handshake.
type DialRequest struct {
	Endpoint     string
	Header       http.Header
	Subprotocols []string
}

// Dialer opens relay sockets.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Conn, error)
}

// WebSocketDialer dials relays with gorilla/websocket over TCP keep-alive
// connections.
type WebSocketDialer struct {
	dialer websocket.Dialer
}

// NewWebSocketDialer builds a dialer from the transport fields of cfg.
func NewWebSocketDialer(cfg Config) (*WebSocketDialer, error) {
	cfg = cfg.WithDefaults()
	tlsCfg, err := cfg.clientTLSConfig()
	if err != nil {
		return nil, err
	}
	netDialer := &net.Dialer{
		Timeout:   cfg.HandshakeTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			NetDialContext:   netDialer.DialContext,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  tlsCfg,
		},
	}, nil
}

func (d *WebSocketDialer) Dial(ctx context.Context, req DialRequest) (Conn, error) {
	dialer := d.dialer
	dialer.Subprotocols = req.Subprotocols
	conn, resp, err := dialer.DialContext(ctx, req.Endpoint, req.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// isPeerClose separates an orderly close from a transport failure.
func isPeerClose(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
