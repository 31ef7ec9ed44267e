package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/ir"
)

const sendBuffer = 64

// WireVersionHeader carries ir.WireVersion on every hub response.
const WireVersionHeader = "X-Docmodel-Wire-Version"

// Server is a websocket hub. Each connection may commit changes; the
// server orders them with a Sequencer, acknowledges the sender, and
// broadcasts the change to every other connection.
type Server struct {
	seq      *Sequencer
	upgrader websocket.Upgrader
	registry *prometheus.Registry

	mu      sync.Mutex
	clients map[*stream]bool
}

type stream struct {
	conn *websocket.Conn
	send chan Message
}

// push queues msg without blocking. A client that cannot keep up loses
// messages and must resync from /log.
func (st *stream) push(msg Message) {
	select {
	case st.send <- msg:
	default:
		MessagesDropped.WithLabelValues("overflow").Inc()
	}
}

// NewServer returns a hub server. Metrics are served from registry when it
// is non-nil.
func NewServer(registry *prometheus.Registry) *Server {
	return &Server{
		seq:      NewSequencer(),
		registry: registry,
		clients:  make(map[*stream]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Sequencer returns the server's ordering state.
func (s *Server) Sequencer() *Sequencer { return s.seq }

// Handler routes /ws to the hub, /log to the ordered change log, and
// /metrics to the registry.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set(WireVersionHeader, ir.WireVersion)
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/ws", s.handleConn)
	r.HandleFunc("/log", s.handleLog).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// handleLog serves the records ordered after ?since=N as JSON.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "bad since", http.StatusBadRequest)
			return
		}
		since = n
	}
	w.Header().Set("Content-Type", "application/json")
	recs := s.seq.Since(since)
	if recs == nil {
		recs = []change.Record{}
	}
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		slog.Warn("write log response failed", "error", err)
	}
}

func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	st := &stream{conn: conn, send: make(chan Message, sendBuffer)}

	s.mu.Lock()
	s.clients[st] = true
	s.mu.Unlock()
	ClientsConnected.Inc()
	slog.Info("hub client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range st.send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("hub write failed", "error", err)
				return
			}
		}
	}()

	s.readLoop(st)

	s.mu.Lock()
	delete(s.clients, st)
	s.mu.Unlock()
	close(st.send)
	<-done
	conn.Close()
	ClientsConnected.Dec()
	slog.Info("hub client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readLoop(st *stream) {
	for {
		var msg Message
		if err := st.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("hub read ended", "error", err)
			}
			return
		}
		if msg.Type != MsgCommit || msg.Change == nil {
			MessagesDropped.WithLabelValues("type").Inc()
			st.push(Message{Type: MsgError, ID: msg.ID, Error: "expected commit with change"})
			continue
		}
		s.commit(st, *msg.Change)
	}
}

// commit orders rec, acknowledges the sender and broadcasts it. The lock is
// held across the fan-out so every client sees changes in version order.
func (s *Server) commit(from *stream, rec change.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, fresh, err := s.seq.Accept(rec)
	if err != nil {
		MessagesDropped.WithLabelValues("invalid").Inc()
		from.push(Message{Type: MsgError, ID: rec.ID, Error: err.Error()})
		return
	}
	from.push(Message{Type: MsgAck, ID: rec.ID, Version: version})
	if !fresh {
		return
	}
	slog.Debug("hub ordered change", "id", rec.ID, "version", version)
	for st := range s.clients {
		if st != from {
			r := rec
			st.push(Message{Type: MsgChange, Change: &r, Version: version})
		}
	}
}
