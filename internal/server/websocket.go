package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/free-brain/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsBacklog is the number of inbound frames buffered per connection.
const wsBacklog = 128

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsTransport adapts a websocket connection to the transport interface.
// A reader goroutine pumps inbound frames into a channel, keeping the
// dispatch loop single threaded and non blocking.
type wsTransport struct {
	conn    *websocket.Conn
	in      chan string
	onClose func()
}

func newWsTransport(conn *websocket.Conn, onClose func()) *wsTransport {
	t := &wsTransport{
		conn:    conn,
		in:      make(chan string, wsBacklog),
		onClose: onClose,
	}
	go t.read()
	return t
}

func (t *wsTransport) read() {
	defer t.onClose()
	for {
		_, b, err := t.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("connection closed")
			return
		}
		t.in <- string(b)
	}
}

func (t *wsTransport) Receive() (string, bool) {
	select {
	case frame := <-t.in:
		return frame, true
	default:
		return "", false
	}
}

func (t *wsTransport) Send(frame string) error {
	return t.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Handler upgrades each request to a websocket connection and serves it with
// a dedicated engine, so that independent clients never share model state.
func Handler(cfg config.Config, store storage.Persistence) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("could not upgrade connection")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
		NewServer(NewEngine(cfg).WithStore(store)).Run(ctx, newWsTransport(conn, cancel))
	}
}

// Listen serves the prediction protocol on the given port.
func Listen(port int, cfg config.Config, store storage.Persistence) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", Handler(cfg, store))
	log.Info().Int("port", port).Msg("listening")
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
