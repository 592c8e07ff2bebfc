package webserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/COhsrt/creepMiner/internal/logs"
)

type logFrame struct {
	Type  string   `json:"type"`
	Lines []string `json:"lines"`
	seq   uint64   // 0 for the replay frame
}

type configFrame struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// Hub tracks the open operator websocket sessions. A joining session first
// receives the configuration snapshot, then the buffered log of the active
// block; afterwards every event is fanned out to all open sessions. A write
// failure closes only the failing session.
type Hub struct {
	upgrader  websocket.Upgrader
	logStore  *logs.Store
	configFn  func() map[string]interface{}
	writeWait time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

type session struct {
	id        string
	conn      *websocket.Conn
	mu        sync.Mutex // serializes frame writes
	replaySeq uint64     // newest log sequence covered by the replay frame
}

func NewHub(logStore *logs.Store, configFn func() map[string]interface{}) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only feed, any origin may watch
			},
		},
		logStore:  logStore,
		configFn:  configFn,
		writeWait: 10 * time.Second,
		sessions:  make(map[string]*session),
	}
}

// HandleUpgrade upgrades the request and registers the session. The initial
// config and log frames are sent under the session's write lock, so a
// concurrent broadcast that already sees the session cannot overtake them.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
	}

	sess.mu.Lock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sess.mu.Unlock()
		conn.Close()
		return
	}
	h.sessions[sess.id] = sess
	h.mu.Unlock()

	ok := sess.writeLocked(h.writeWait, configFrame{
		Type:   "config",
		Config: h.configFn(),
	})
	if ok {
		lines, seq := h.logStore.LinesWithSeq()
		sess.replaySeq = seq
		ok = sess.writeLocked(h.writeWait, logFrame{
			Type:  "log",
			Lines: lines,
		})
	}
	sess.mu.Unlock()

	if !ok {
		h.remove(sess)
		return
	}

	go h.readLoop(sess)
}

// readLoop drains the connection until the peer goes away.
func (h *Hub) readLoop(sess *session) {
	for {
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			h.remove(sess)
			return
		}
	}
}

// writeLocked sends one JSON text frame. Caller holds sess.mu.
func (sess *session) writeLocked(writeWait time.Duration, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to encode websocket frame: %v", err)
		return false
	}

	sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sess.conn.WriteMessage(websocket.TextMessage, data) == nil
}

func (sess *session) write(writeWait time.Duration, v interface{}) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.writeLocked(writeWait, v)
}

// writeLog sends a live log frame, dropping lines the session already saw in
// its replay. A line added to the store between a join's buffer snapshot and
// its broadcast would otherwise arrive twice.
func (sess *session) writeLog(writeWait time.Duration, frame logFrame) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if frame.seq != 0 && frame.seq <= sess.replaySeq {
		return true
	}
	return sess.writeLocked(writeWait, frame)
}

// broadcast fans a frame out to a snapshot of the open sessions. Sessions
// added while the round runs receive the next round; a failing session is
// closed without aborting the round for the others.
func (h *Hub) broadcast(v interface{}) {
	h.mu.Lock()
	snapshot := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		snapshot = append(snapshot, sess)
	}
	h.mu.Unlock()

	for _, sess := range snapshot {
		if !sess.write(h.writeWait, v) {
			h.remove(sess)
		}
	}
}

// BroadcastLog pushes a freshly produced log line to every open session. The
// sequence number is the line's position in the store; sessions whose replay
// already covered it skip the frame.
func (h *Hub) BroadcastLog(line string, seq uint64) {
	frame := logFrame{Type: "log", Lines: []string{line}, seq: seq}

	h.mu.Lock()
	snapshot := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		snapshot = append(snapshot, sess)
	}
	h.mu.Unlock()

	for _, sess := range snapshot {
		if !sess.writeLog(h.writeWait, frame) {
			h.remove(sess)
		}
	}
}

// BroadcastConfig pushes the current configuration snapshot to every open
// session.
func (h *Hub) BroadcastConfig() {
	h.broadcast(configFrame{Type: "config", Config: h.configFn()})
}

func (h *Hub) remove(sess *session) {
	h.mu.Lock()
	_, present := h.sessions[sess.id]
	delete(h.sessions, sess.id)
	h.mu.Unlock()

	if present {
		sess.conn.Close()
	}
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close drops every session and refuses further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	snapshot := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		snapshot = append(snapshot, sess)
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, sess := range snapshot {
		sess.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		sess.conn.Close()
	}
}
