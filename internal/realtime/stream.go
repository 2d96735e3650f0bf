// Package realtime pushes subscription snapshots to clients over WebSocket.
//
// Each socket carries one subscription. Every frame holds the full current
// result, so clients replace what they show instead of patching it. The
// subscription is released as soon as the socket goes away.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const FrameSnapshot = "snapshot"

// Frame is the JSON message sent to clients.
type Frame struct {
	Type  string `json:"type"`
	Items any    `json:"items"`
}

// SubscribeFunc starts a subscription that calls push with every snapshot
// and returns the func that releases it.
type SubscribeFunc[T any] func(ctx context.Context, push func([]T)) (release func(), err error)

type Streamer struct {
	upgrader   websocket.Upgrader
	log        zerolog.Logger
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

type Option func(*Streamer)

// WithKeepAlive sets how long a silent client is kept; pings go out at 9/10
// of that interval.
func WithKeepAlive(pongWait time.Duration) Option {
	return func(s *Streamer) {
		s.pongWait = pongWait
		s.pingPeriod = pongWait * 9 / 10
	}
}

// WithOrigins restricts the accepted Origin headers. Without it every
// origin is accepted.
func WithOrigins(origins ...string) Option {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(s *Streamer) {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
}

func NewStreamer(log zerolog.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log:        log,
		writeWait:  10 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stream subscribes, upgrades the connection and writes snapshots until the
// client goes away or the request context ends. An error is returned only
// when the subscription could not be started; the response is untouched in
// that case and the caller reports it.
func Stream[T any](s *Streamer, w http.ResponseWriter, r *http.Request, subscribe SubscribeFunc[T]) error {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// One pending snapshot at most; a newer one replaces it.
	pending := make(chan []T, 1)
	push := func(items []T) {
		if items == nil {
			items = []T{}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case pending <- items:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	}

	release, err := subscribe(ctx, push)
	if err != nil {
		return err
	}
	defer release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()
	s.log.Debug().Str("path", r.URL.Path).Msg("stream opened")

	go s.readPump(conn, cancel)
	writePump(ctx, s, conn, pending)
	s.log.Debug().Str("path", r.URL.Path).Msg("stream closed")
	return nil
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. Any read error means the client is gone.
func (s *Streamer) readPump(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug().Err(err).Msg("stream read failed")
			}
			return
		}
	}
}

// writePump owns every write on conn: snapshots, pings and the final close.
func writePump[T any](ctx context.Context, s *Streamer, conn *websocket.Conn, pending <-chan []T) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case items := <-pending:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteJSON(Frame{Type: FrameSnapshot, Items: items}); err != nil {
				s.log.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
