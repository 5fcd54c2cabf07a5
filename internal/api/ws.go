package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pavescan-data/surface.report/internal/httputil"
	"github.com/pavescan-data/surface.report/internal/survey/live"
)

// wsListener adapts one WebSocket connection to the hub's Listener
// interface. Close only signals the handler goroutine; the handler owns
// the connection teardown so the hub dispatcher never waits on a close
// handshake.
type wsListener struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

func newWSListener(conn *websocket.Conn) *wsListener {
	return &wsListener{conn: conn, done: make(chan struct{})}
}

func (l *wsListener) Send(ctx context.Context, ev live.Event) error {
	return wsjson.Write(ctx, l.conn, ev)
}

func (l *wsListener) Close() {
	l.once.Do(func() { close(l.done) })
}

// handleLive upgrades /ws/{video_id} and streams that job's events until a
// terminal event, a client disconnect, or shutdown. A connection may open
// before its job exists; it simply waits for the first event. Client
// frames are liveness signals only, and a connection idle past the
// heartbeat interval receives a heartbeat instead of being dropped.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "Video ID not found")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}

	l := newWSListener(conn)
	s.hub.Attach(id, l)
	defer s.hub.Detach(id, l)

	// Open with a snapshot of the current status so a late joiner sees
	// where the job stands before the next pushed event.
	if st, ok := s.statuses.Get(id); ok {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		err := l.Send(ctx, live.StatusEvent(st))
		cancel()
		if err != nil {
			conn.CloseNow()
			return
		}
	}

	// Reader goroutine: every client frame is a liveness signal, and a
	// pending Read lets the library answer control frames.
	frames := make(chan struct{}, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
			select {
			case frames <- struct{}{}:
			default:
			}
		}
	}()

	idle := time.NewTimer(s.heartbeat)
	defer idle.Stop()

	for {
		select {
		case <-l.done:
			// Terminal event delivered, replaced by a newer connection, or
			// hub shutdown.
			conn.Close(websocket.StatusNormalClosure, "stream closed")
			<-readDone
			return
		case <-readDone:
			conn.CloseNow()
			return
		case <-frames:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.heartbeat)
		case <-idle.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
			err := wsjson.Write(ctx, conn, live.HeartbeatEvent())
			cancel()
			if err != nil {
				conn.CloseNow()
				return
			}
			idle.Reset(s.heartbeat)
		}
	}
}
