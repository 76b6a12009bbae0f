package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/soyeahso/triage/internal/version"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrClientSlow   = errors.New("client send queue full")
)

const shutdownGrace = 10 * time.Second

// pushedEvents maps service hook events to the WebSocket events they are
// forwarded as.
var pushedEvents = map[string]string{
	hooks.EventEscalated:         EventEscalated,
	hooks.EventEscalationPending: EventEscalationPending,
	hooks.EventEmailProcessed:    EventEmailProcessed,
}

// Server exposes a triage.Service over REST and a WebSocket RPC protocol.
type Server struct {
	cfg      config.GatewayConfig
	svc      *triage.Service
	log      *logging.Logger
	hooks    *hooks.Manager
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	limiter  *ipRateLimiter
	upgrader websocket.Upgrader
	version  string
	eventSeq atomic.Int64

	startedAt time.Time
	addr      atomic.Value // string, set once listening
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks makes the server emit gateway lifecycle events on hm and push
// escalation events from hm to WebSocket clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// New builds a gateway in front of svc. Nothing listens until Start.
func New(cfg config.GatewayConfig, svc *triage.Service, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		log:       log.Sub("gateway"),
		clients:   NewClientRegistry(log.Sub("clients")),
		handlers:  make(map[string]RequestHandler),
		limiter:   newIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		version:   version.Version,
		startedAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// Non-browser clients send no Origin.
			origin := r.Header.Get("Origin")
			return origin == "" || isOriginAllowed(origin, cfg.ControlUI.AllowedOrigins)
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	if s.hooks != nil {
		for hookEvent, wsEvent := range pushedEvents {
			s.hooks.On(hookEvent, "gateway-broadcast", s.forward(wsEvent))
		}
	}
	return s
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods lists the registered RPC methods in name order.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// forward pushes a hook payload to the clients that may see its tenant.
func (s *Server) forward(event string) hooks.Handler {
	return func(_ context.Context, p hooks.Payload) error {
		tenantID, _ := p.Data["tenant"].(string)
		s.clients.Broadcast(event, p.Data, s.eventSeq.Add(1), tenantID)
		return nil
	}
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// listen opens the TCP listener, wrapped in TLS when configured.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if !s.cfg.TLS.Enabled {
		if s.cfg.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled; session transcripts travel in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves until ctx is cancelled, then closes every WebSocket client
// and drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen(resolveBindAddr(s.cfg))
	if err != nil {
		return err
	}
	s.addr.Store(ln.Addr().String())

	// Writes may take as long as the slowest handler allows.
	writeTimeout := 30 * time.Second
	if d := s.cfg.RequestTimeout(); d > 0 {
		writeTimeout = d + 5*time.Second
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.startedAt = time.Now()
	go s.limiter.run(ctx)

	s.log.Info().
		Str("addr", s.Addr()).
		Str("bind", s.cfg.Bind).
		Strs("methods", s.Methods()).
		Float64("rps", s.cfg.RateLimit.RPS).
		Msg("gateway listening")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": s.Addr()})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		s.emit(context.Background(), hooks.EventGatewayStop, nil)
		s.clients.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
		}
	}()

	if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}
