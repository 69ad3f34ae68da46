package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	maidcommand "github.com/slack-lackey/maid-server/command"
	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/inbound"
	"github.com/slack-lackey/maid-server/providers/slack"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// InboundDispatcher verifies and routes one signed request.
type InboundDispatcher interface {
	Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// Drainer waits for work started after an acknowledgement and abandons it
// once ctx is done.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

type TenantInstaller interface {
	InstallTenant(ctx context.Context, msg maidcommand.InstallTenantMessage) (maidcommand.InstallTenantResult, error)
}

type OAuthFlow interface {
	AuthorizeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (slack.Installation, error)
}

type Dependencies struct {
	Dispatcher InboundDispatcher
	Installer  TenantInstaller
	OAuth      OAuthFlow
	Logger     core.Logger
}

type Server struct {
	Router *chi.Mux

	cfg        core.ServerConfig
	appName    string
	service    string
	deps       Dependencies
	logger     core.Logger
	httpServer *http.Server
}

func New(cfg core.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:     cfg.Server,
		appName: strings.TrimSpace(cfg.Slack.AppName),
		service: strings.TrimSpace(cfg.ServiceName),
		deps:    deps,
		logger:  core.ResolveLogger("server", nil, deps.Logger),
	}
	if s.appName == "" {
		s.appName = "Maid"
	}
	if s.service == "" {
		s.service = "maid-server"
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	if s.cfg.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(s.cfg.RequestTimeout))
	}
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, s.service)
	})

	r.Get("/", s.handleLanding)
	r.Get("/healthz", s.handleHealth)
	r.Get("/auth/slack", s.handleAuthorize)
	r.Get("/auth/callback", s.handleCallback)
	r.Get("/auth/slack/callback", s.handleCallback)
	r.Post("/events", s.handleInbound(inbound.SurfaceEvents))
	r.Post("/slack/events", s.handleInbound(inbound.SurfaceEvents))
	r.Post("/actions", s.handleInbound(inbound.SurfaceActions))
	r.Post("/slack/actions", s.handleInbound(inbound.SurfaceActions))

	s.Router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.Router
}

// ListenAndServe serves until ctx is done, then shuts the listener down and
// waits for acknowledged work to drain.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server: server is nil")
	}
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		core.LogInfo(ctx, s.logger, "server listening", map[string]any{"addr": s.cfg.Addr})
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	core.LogInfo(shutdownCtx, s.logger, "server shutting down", nil)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.drain(shutdownCtx)
	return nil
}

func (s *Server) drain(ctx context.Context) {
	drainer, ok := s.deps.Dispatcher.(Drainer)
	if !ok {
		return
	}
	if err := drainer.Shutdown(ctx); err != nil {
		core.LogWarn(context.WithoutCancel(ctx), s.logger, "shutdown cancelled unfinished background work", core.ErrorFields(nil, err))
	}
}
