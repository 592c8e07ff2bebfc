package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COhsrt/creepMiner/internal/logs"
)

type frame struct {
	Type   string                 `json:"type"`
	Lines  []string               `json:"lines"`
	Config map[string]interface{} `json:"config"`
}

func newTestHub(t *testing.T, store *logs.Store) (*Hub, string) {
	t.Helper()

	hub := NewHub(store, func() map[string]interface{} {
		return map[string]interface{}{"listen": ":8080"}
	})
	t.Cleanup(hub.Close)

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleUpgrade))
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialHub(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// TestHubInitialSnapshotOrder tests that a joining session receives the
// config, then the full buffered log, before any live broadcast
func TestHubInitialSnapshotOrder(t *testing.T) {
	store := logs.NewStore(100)
	for i := 0; i < 5; i++ {
		store.Add(fmt.Sprintf("buffered line %d", i))
	}

	hub, wsURL := newTestHub(t, store)
	conn := dialHub(t, wsURL)

	first := readFrame(t, conn)
	require.Equal(t, "config", first.Type)
	assert.Equal(t, ":8080", first.Config["listen"])

	second := readFrame(t, conn)
	require.Equal(t, "log", second.Type)
	require.Len(t, second.Lines, 5)
	for i, line := range second.Lines {
		assert.Equal(t, fmt.Sprintf("buffered line %d", i), line)
	}

	entry := store.Add("live line")
	hub.BroadcastLog(entry.Content, entry.Seq)
	third := readFrame(t, conn)
	assert.Equal(t, "log", third.Type)
	assert.Equal(t, []string{"live line"}, third.Lines)
}

// TestHubReplayNotDuplicated tests that a line already covered by a session's
// replay frame is not delivered again by a later broadcast
func TestHubReplayNotDuplicated(t *testing.T) {
	store := logs.NewStore(100)
	var last logs.Entry
	for i := 0; i < 3; i++ {
		last = store.Add(fmt.Sprintf("buffered line %d", i))
	}

	hub, wsURL := newTestHub(t, store)
	conn := dialHub(t, wsURL)

	readFrame(t, conn) // config
	replay := readFrame(t, conn)
	require.Len(t, replay.Lines, 3)

	// The last buffered line was published concurrently with the join and
	// its broadcast arrives only now. The session already has it.
	hub.BroadcastLog(last.Content, last.Seq)

	fresh := store.Add("fresh line")
	hub.BroadcastLog(fresh.Content, fresh.Seq)

	f := readFrame(t, conn)
	assert.Equal(t, []string{"fresh line"}, f.Lines)
}

// TestHubBroadcastReachesAllSessions tests fan-out across open sessions
func TestHubBroadcastReachesAllSessions(t *testing.T) {
	hub, wsURL := newTestHub(t, logs.NewStore(10))

	connA := dialHub(t, wsURL)
	connB := dialHub(t, wsURL)

	// Drain initial snapshots
	for _, conn := range []*websocket.Conn{connA, connB} {
		readFrame(t, conn)
		readFrame(t, conn)
	}
	require.Equal(t, 2, hub.SessionCount())

	hub.BroadcastLog("deadline found", 0)

	for _, conn := range []*websocket.Conn{connA, connB} {
		f := readFrame(t, conn)
		assert.Equal(t, "log", f.Type)
		assert.Equal(t, []string{"deadline found"}, f.Lines)
	}
}

// TestHubFailureIsolation tests that one failing session does not abort the
// broadcast to the others
func TestHubFailureIsolation(t *testing.T) {
	hub, wsURL := newTestHub(t, logs.NewStore(10))

	connA := dialHub(t, wsURL)
	connB := dialHub(t, wsURL)
	for _, conn := range []*websocket.Conn{connA, connB} {
		readFrame(t, conn)
		readFrame(t, conn)
	}

	// Kill A underneath the hub; the read loop will reap it.
	connA.Close()
	require.Eventually(t, func() bool {
		return hub.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastLog("still flowing", 0)
	f := readFrame(t, connB)
	assert.Equal(t, []string{"still flowing"}, f.Lines)
}

// TestHubBroadcastConfig tests the config change frame
func TestHubBroadcastConfig(t *testing.T) {
	hub, wsURL := newTestHub(t, logs.NewStore(10))

	conn := dialHub(t, wsURL)
	readFrame(t, conn)
	readFrame(t, conn)

	hub.BroadcastConfig()
	f := readFrame(t, conn)
	assert.Equal(t, "config", f.Type)
	assert.Equal(t, ":8080", f.Config["listen"])
}

// TestHubClose tests that closing the hub drops sessions and refuses new
// upgrades
func TestHubClose(t *testing.T) {
	hub, wsURL := newTestHub(t, logs.NewStore(10))

	conn := dialHub(t, wsURL)
	readFrame(t, conn)
	readFrame(t, conn)

	hub.Close()
	assert.Equal(t, 0, hub.SessionCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection must be closed")

	// A dial after close may complete the handshake but the session is
	// dropped immediately and never registered.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		defer late.Close()
		late.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, readErr := late.ReadMessage()
		assert.Error(t, readErr)
	}
	assert.Equal(t, 0, hub.SessionCount())
}

// TestHubConcurrentJoinAndBroadcast tests add/remove racing with fan-out
func TestHubConcurrentJoinAndBroadcast(t *testing.T) {
	hub, wsURL := newTestHub(t, logs.NewStore(10))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			hub.BroadcastLog(fmt.Sprintf("round %d", i), 0)
		}
	}()

	conns := make([]*websocket.Conn, 0, 5)
	for i := 0; i < 5; i++ {
		conns = append(conns, dialHub(t, wsURL))
	}

	<-done

	// Every session's first two frames must still be config then log,
	// regardless of broadcasts racing the join.
	for _, conn := range conns {
		first := readFrame(t, conn)
		assert.Equal(t, "config", first.Type)
		second := readFrame(t, conn)
		assert.Equal(t, "log", second.Type)
	}
}
