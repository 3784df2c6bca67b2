package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"statecraft.ai/internal/observerproto"
	"statecraft.ai/internal/sim/world"
)

const (
	defaultBacklog = 64
	sessionBuffer  = 128
)

// Server fans completed rounds out to websocket observers. It implements
// world.RoundLogger and never touches the World after construction, so its
// handlers are safe to serve while rounds run.
type Server struct {
	runID string
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex
	state    observerproto.BootstrapResponse
	backlog  []world.RoundLogEntry
	maxKeep  int
	sessions map[string]chan []byte
	closed   bool
}

func NewServer(runID string, w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		runID:   runID,
		log:     logger,
		maxKeep: defaultBacklog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]chan []byte{},
	}
	s.state = initialState(runID, w)
	return s
}

func initialState(runID string, w *world.World) observerproto.BootstrapResponse {
	order := w.Aliases()
	agents := make([]observerproto.AgentInfo, 0, len(order))
	var defs map[string]struct{ typ, identity string }
	if cats := w.Catalogs(); cats != nil {
		defs = make(map[string]struct{ typ, identity string }, len(cats.Roster.Agents))
		for _, d := range cats.Roster.Agents {
			defs[d.Alias] = struct{ typ, identity string }{d.Type, d.Identity}
		}
	}
	for _, st := range w.Agents() {
		d := defs[st.Alias]
		agents = append(agents, observerproto.AgentInfo{
			Alias:         st.Alias,
			Name:          st.Name,
			Type:          d.typ,
			Identity:      d.identity,
			MilitaryPower: st.MilitaryPower,
			EconomicPower: st.EconomicPower,
		})
	}
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           runID,
		Round:           w.Round(),
		Agents:          agents,
		Order:           order,
		Relations:       w.Relations().ToMatrix(order),
	}
}

// Dropped reports how many round messages were discarded for slow observers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Sessions reports the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// WriteRound records the entry for bootstrap and pushes it to every session.
// Slow sessions lose the message instead of stalling the round loop.
func (s *Server) WriteRound(entry world.RoundLogEntry) error {
	b, err := json.Marshal(observerproto.RoundMsg{
		Type:            observerproto.TypeRound,
		ProtocolVersion: observerproto.Version,
		Entry:           entry,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.state.Round = entry.Round
	s.state.Order = append([]string(nil), entry.Order...)
	s.state.Relations = entry.Relations
	s.state.Digest = entry.Digest
	for i := range s.state.Agents {
		for _, st := range entry.Agents {
			if st.Alias == s.state.Agents[i].Alias {
				s.state.Agents[i].MilitaryPower = st.MilitaryPower
				s.state.Agents[i].EconomicPower = st.EconomicPower
			}
		}
	}
	s.backlog = append(s.backlog, entry)
	if len(s.backlog) > s.maxKeep {
		s.backlog = append([]world.RoundLogEntry(nil), s.backlog[len(s.backlog)-s.maxKeep:]...)
	}
	for sid, ch := range s.sessions {
		select {
		case ch <- b:
		default:
			s.dropped.Add(1)
			s.log.Printf("observer %s: dropped round %d", sid, entry.Round)
		}
	}
	return nil
}

// Close disconnects all observers. Later rounds are ignored.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sid, ch := range s.sessions {
		close(ch)
		delete(s.sessions, sid)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		s.mu.Lock()
		resp := s.state
		resp.Agents = append([]observerproto.AgentInfo(nil), s.state.Agents...)
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out, ok := s.join(sid, sub.FromRound)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "run finished"), time.Now().Add(time.Second))
			return
		}
		defer s.leave(sid)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(time.Second))
						_ = conn.Close()
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: observers stay quiet between rounds, so no read deadline.
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// join registers a session and queues buffered rounds at or after fromRound.
func (s *Server) join(sid string, fromRound int) (<-chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan []byte, sessionBuffer)
	if fromRound > 0 {
		for _, e := range s.backlog {
			if e.Round < fromRound {
				continue
			}
			b, err := json.Marshal(observerproto.RoundMsg{
				Type:            observerproto.TypeRound,
				ProtocolVersion: observerproto.Version,
				Entry:           e,
			})
			if err != nil {
				continue
			}
			select {
			case ch <- b:
			default:
			}
		}
	}
	s.sessions[sid] = ch
	return ch, true
}

func (s *Server) leave(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
