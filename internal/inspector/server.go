// Package inspector serves a websocket debug feed. Connections only enqueue
// requests; the game loop answers them through DebugSystem, so no inspector
// goroutine ever touches entities or systems.
package inspector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/quarrygate/engine/internal/config"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = eris.New("inspector queue full")
	ErrTimeout   = eris.New("inspector request timed out")
	ErrClosed    = eris.New("inspector closed")
)

const maxMessageSize = 1 << 20

// Request is one inspector command.
//
//	{ "id": 1, "kind": "entity", "entity": "tower" }
type Request struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Entity    string          `json:"entity,omitempty"`
	Component string          `json:"component,omitempty"`
	Scene     string          `json:"scene,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	reply chan Response
}

// Response answers the request with the same id.
type Response struct {
	ID    uint64 `json:"id"`
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Reply delivers resp to the waiting connection. Only the first reply counts.
func (r *Request) Reply(resp Response) {
	resp.ID, resp.Kind = r.ID, r.Kind
	select {
	case r.reply <- resp:
	default:
	}
}

// Server accepts websocket connections on /ws and hands their requests to
// the game loop through a bounded queue.
type Server struct {
	log      *zap.Logger
	addr     string
	timeout  time.Duration
	queue    chan *Request
	nextID   atomic.Uint64
	closeCh  chan struct{}
	closed   atomic.Bool
	upgrader websocket.Upgrader
	http     *http.Server
}

func NewServer(cfg config.InspectorConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	s := &Server{
		log:     log.Named("inspector"),
		addr:    cfg.BindAddress,
		timeout: cfg.RequestTimeout,
		queue:   make(chan *Request, size),
		closeCh: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Requests is drained by DebugSystem on the game loop.
func (s *Server) Requests() <-chan *Request { return s.queue }

func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return eris.Wrapf(err, "inspector listen %s", s.addr)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("inspector listening", zap.String("addr", ln.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "inspector serve")
	}
}

// Shutdown stops accepting connections and fails pending submissions.
func (s *Server) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.closeCh)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.http.Shutdown(ctx)
}

// Submit enqueues req and waits for the game loop to answer it. A full
// queue is refused immediately rather than stalling the connection.
func (s *Server) Submit(ctx context.Context, req *Request) (Response, error) {
	if s.closed.Load() {
		return Response{}, ErrClosed
	}
	req.ID = s.nextID.Add(1)
	req.reply = make(chan Response, 1)
	select {
	case s.queue <- req:
	default:
		return Response{}, eris.Wrapf(ErrQueueFull, "%q", req.Kind)
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-timeout:
		return Response{}, eris.Wrapf(ErrTimeout, "%q", req.Kind)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-s.closeCh:
		return Response{}, ErrClosed
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Info("inspector connected")
	defer func() {
		conn.Close()
		log.Info("inspector disconnected")
	}()
	conn.SetReadLimit(maxMessageSize)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var resp Response
		req := &Request{}
		if err := json.Unmarshal(msg, req); err != nil {
			resp = Response{Error: "malformed request: " + err.Error()}
		} else if resp, err = s.Submit(r.Context(), req); err != nil {
			resp = Response{ID: req.ID, Kind: req.Kind, Error: err.Error()}
		}

		out, err := json.Marshal(resp)
		if err != nil {
			log.Error("encode response", zap.Error(err))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			log.Debug("write error", zap.Error(err))
			return
		}
	}
}
