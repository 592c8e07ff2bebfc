package webserver

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/COhsrt/creepMiner/internal/config"
	"github.com/COhsrt/creepMiner/internal/logs"
	"github.com/COhsrt/creepMiner/internal/mining"
	"github.com/COhsrt/creepMiner/pkg/events"
)

// Server is the operator console: static assets, the JSON control surface
// and the websocket feed. It issues change requests to the miner and never
// mutates mining state itself.
type Server struct {
	cfg      *config.Config
	miner    *mining.Miner
	logStore *logs.Store
	bus      *events.EventBus
	hub      *Hub
	router   *mux.Router
	pool     *Upstream
	version  string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
	onShutdown func()
}

func NewServer(cfg *config.Config, miner *mining.Miner, logStore *logs.Store, bus *events.EventBus, version string) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		miner:    miner,
		logStore: logStore,
		bus:      bus,
		router:   mux.NewRouter(),
		version:  version,
	}

	if cfg.PoolURL() != "" {
		pool, err := NewUpstream(cfg.PoolURL(), cfg.PoolTimeout())
		if err != nil {
			return nil, fmt.Errorf("invalid pool url: %w", err)
		}
		s.pool = pool
	}

	s.hub = NewHub(logStore, cfg.Snapshot)
	s.routes()

	// Log lines take the ordered path so sessions see them in the order they
	// were produced; config frames are full snapshots, order is irrelevant.
	bus.SubscribeOrdered(events.LogLine, func(event events.Event) {
		line, ok := event.Data["line"].(string)
		if !ok {
			return
		}
		seq, _ := event.Data["seq"].(uint64)
		s.hub.BroadcastLog(line, seq)
	})
	bus.Subscribe(events.ConfigChanged, func(event events.Event) {
		s.hub.BroadcastConfig()
	})

	return s, nil
}

// routes builds the static dispatch table. The route set is fixed here;
// nothing registers at runtime.
func (s *Server) routes() {
	r := s.router
	// Anything outside the table is a plain 404, wrong methods included.
	r.NotFoundHandler = NewLambdaHandler(notFound)
	r.MethodNotAllowedHandler = NewLambdaHandler(notFound)

	r.Handle("/", NewLambdaHandler(func(w http.ResponseWriter, r *http.Request) {
		redirect(w, r, "/index.html")
	})).Methods("GET")
	r.Handle("/index.html", NewLambdaHandler(s.loadAsset)).Methods("GET")
	r.Handle("/assets/{rest:.*}", NewLambdaHandler(s.loadAsset)).Methods("GET")

	r.Handle("/burst", NewLambdaHandler(s.handleBurst)).Methods("GET", "POST")

	r.Handle("/plotdir/add", NewLambdaHandler(s.changePlotDirs(false))).Methods("POST")
	r.Handle("/plotdir/remove", NewLambdaHandler(s.changePlotDirs(true))).Methods("POST")
	r.Handle("/settings", NewLambdaHandler(s.changeSettings)).Methods("POST")
	r.Handle("/rescan", NewLambdaHandler(s.rescanPlotfiles)).Methods("POST")
	r.Handle("/shutdown", NewLambdaHandler(s.handleShutdown)).Methods("POST")

	r.Handle("/ws", NewLambdaHandler(s.addWebsocket)).Methods("GET")
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// OnShutdown registers fn to run once after a shutdown request has been
// accepted.
func (s *Server) OnShutdown(fn func()) {
	s.mu.Lock()
	s.onShutdown = fn
	s.mu.Unlock()
}

// Start binds the listen address and serves until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Listen())
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.router}
	s.running = true

	go func() {
		log.Printf("Web server listening on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Web server error: %v", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	return nil
}

// Stop closes the websocket sessions and the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.hub.Close()
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) requestShutdown() {
	s.mu.Lock()
	fn := s.onShutdown
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
