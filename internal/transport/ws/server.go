package ws

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
}

// Accept upgrades an HTTP request and wraps the socket.
func Accept(rw http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	c, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return Wrap(c, opts), nil
}
