// Package debughttp serves the optional operator endpoint: liveness, a JSON
// status snapshot and net/http/pprof.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

// Config controls the server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

// Pinger reports store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Sources struct {
	Store     Pinger
	Scheduler interface{ Snapshot() scheduler.Snapshot }
	Runtime   *rtsup.Registry
}

type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	src Sources
	sup *rtsup.Supervisor
	srv *http.Server
}

func New(cfg Config, src Sources, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, src: src, log: log.With(logx.Component("debughttp"))}
}

// Supervisor returns the server's supervisor (nil if not started).
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Server) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start is idempotent and does not block. The listener runs under a restart
// loop; a failing debug endpoint never takes the bot down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return nil
	}
	addr := listenAddr(s.cfg)
	if !s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("debug http refused to start: non-loopback addr requires token or allow_insecure")
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := listenAddr(cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(cfg.Token),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // /debug/pprof/profile streams for 30s by default
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("debug http started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler builds the mux. token may be empty.
func (s *Server) Handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("/healthz", wrap(s.healthz))
	mux.HandleFunc("/status", wrap(s.status))
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.src.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.src.Store.Ping(ctx); err != nil {
			http.Error(w, "storage: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

type statusBody struct {
	Scheduler   *scheduler.Snapshot       `json:"scheduler,omitempty"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	var body statusBody
	if s.src.Scheduler != nil {
		snap := s.src.Scheduler.Snapshot()
		body.Scheduler = &snap
	}
	body.Supervisors = s.src.Runtime.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("status encode failed", logx.Err(err))
	}
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func listenAddr(cfg Config) string {
	if a := strings.TrimSpace(cfg.Addr); a != "" {
		return a
	}
	return "127.0.0.1:6060"
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
