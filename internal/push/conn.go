// ABOUTME: WebSocket transport abstraction for the push channel
// ABOUTME: Dials with session-cookie auth; *websocket.Conn satisfies Conn

package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn abstracts the WebSocket connection so Manager can be tested without a
// real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a Conn to url with the given request headers.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 1 << 20

// WebsocketDial is the production DialFunc.
func WebsocketDial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}
