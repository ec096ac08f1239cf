package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/business"
	"github.com/BrasasLabs/Anfitrion/internal/flow"
	"github.com/BrasasLabs/Anfitrion/internal/messaging"
	"github.com/BrasasLabs/Anfitrion/internal/nlu"
	"github.com/BrasasLabs/Anfitrion/internal/store"
	"github.com/BrasasLabs/Anfitrion/internal/twiliowhatsapp"
	"github.com/BrasasLabs/Anfitrion/internal/whatsapp"
)

// Default server configuration
const (
	// DefaultAddr is the default API server address
	DefaultAddr = ":8080"
	// DefaultBusinessFile is the default path of the business profile
	DefaultBusinessFile = "business.json"
	// shutdownTimeout bounds graceful HTTP shutdown
	shutdownTimeout = 5 * time.Second
)

// Messaging provider names accepted by WithProvider.
const (
	ProviderWhatsmeow = "whatsmeow"
	ProviderTwilio    = "twilio"
)

// Opts holds configuration options for the API server and bootstrap.
type Opts struct {
	Addr         string
	BusinessFile string
	Provider     string
}

// Option defines a configuration option for the server.
type Option func(*Opts)

// WithAddr sets the API server listening address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithBusinessFile sets the path of the business profile JSON file.
func WithBusinessFile(path string) Option {
	return func(o *Opts) {
		o.BusinessFile = path
	}
}

// WithProvider selects the messaging provider ("whatsmeow" or "twilio").
func WithProvider(provider string) Option {
	return func(o *Opts) {
		o.Provider = provider
	}
}

// Server wires the messaging transport, the conversation engine, and the
// HTTP liveness endpoints together.
type Server struct {
	addr       string
	profile    *business.Profile
	sessions   store.SessionStore
	engine     *flow.Engine
	msgService messaging.Service
}

// NewServer assembles a server from already-built collaborators.
func NewServer(addr string, profile *business.Profile, sessions store.SessionStore, engine *flow.Engine, msgService messaging.Service) *Server {
	return &Server{
		addr:       addr,
		profile:    profile,
		sessions:   sessions,
		engine:     engine,
		msgService: msgService,
	}
}

// Run bootstraps the whole service: business profile, messaging transport,
// classifier, session store, conversation engine, event dispatch, and the
// HTTP server. It blocks until the process is signalled to stop.
func Run(waOpts []whatsapp.Option, nluOpts []nlu.Option, flowCfg flow.Config, opts ...Option) error {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.BusinessFile == "" {
		cfg.BusinessFile = DefaultBusinessFile
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderWhatsmeow
	}

	// The business profile is required before any message is accepted.
	profile, err := business.Load(cfg.BusinessFile)
	if err != nil {
		return fmt.Errorf("failed to load business profile: %w", err)
	}

	msgService, err := buildMessagingService(cfg.Provider, waOpts)
	if err != nil {
		return err
	}

	classifier, err := nlu.NewClient(nluOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize intent classifier: %w", err)
	}

	sessions := store.NewInMemorySessionStore()
	engine := flow.NewEngine(flowCfg, profile, sessions, classifier, msgService)
	server := NewServer(cfg.Addr, profile, sessions, engine, msgService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := msgService.Stop(); err != nil {
			slog.Error("Failed to stop messaging service", "error", err)
		}
	}()

	go server.dispatchEvents(ctx)

	return server.serveHTTP(ctx)
}

// buildMessagingService creates the configured messaging provider.
func buildMessagingService(provider string, waOpts []whatsapp.Option) (messaging.Service, error) {
	switch provider {
	case ProviderTwilio:
		slog.Info("Using Twilio WhatsApp provider")
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case ProviderWhatsmeow:
		slog.Info("Using whatsmeow WhatsApp provider")
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", provider)
	}
}

// dispatchEvents is the single event loop: inbound customer messages and
// staff notices are handled run-to-completion, one at a time, so processing
// for one customer never interleaves with another event for the same
// customer. The suppression check happens inside the engine at the top of
// every invocation, so a staff notice queued behind a customer message still
// takes effect before the next message is answered.
func (s *Server) dispatchEvents(ctx context.Context) {
	slog.Debug("Server.dispatchEvents starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Server.dispatchEvents stopping due to context cancellation")
			return
		case resp, ok := <-s.msgService.Responses():
			if !ok {
				return
			}
			from, err := s.msgService.ValidateAndCanonicalizeRecipient(resp.From)
			if err != nil {
				slog.Warn("Server.dispatchEvents: dropping message with invalid sender", "error", err, "from", resp.From)
				continue
			}
			slog.Info("Server.dispatchEvents processing customer message", "from", from, "body_length", len(resp.Body))
			if err := s.engine.HandleInbound(ctx, from, resp.Body); err != nil {
				slog.Error("Server.dispatchEvents: inbound handling failed", "error", err, "from", from)
			}
		case notice, ok := <-s.msgService.StaffNotices():
			if !ok {
				return
			}
			to, err := s.msgService.ValidateAndCanonicalizeRecipient(notice.To)
			if err != nil {
				slog.Warn("Server.dispatchEvents: dropping staff notice with invalid recipient", "error", err, "to", notice.To)
				continue
			}
			slog.Info("Server.dispatchEvents processing staff notice", "to", to)
			if err := s.engine.HandleStaffReply(ctx, to); err != nil {
				slog.Error("Server.dispatchEvents: staff notice handling failed", "error", err, "to", to)
			}
		}
	}
}

// serveHTTP runs the liveness HTTP server until the context is cancelled.
func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Anfitrion API running", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil
	}
}

// routes builds the HTTP mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	return mux
}
