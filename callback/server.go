// Package callback runs the local HTTP server that receives the identity
// provider redirect after an OAuth sign-in.
package callback

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/django/v3"
	"github.com/prometheus/client_golang/prometheus"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/metrics"
)

//go:embed views/*.html
var viewsFS embed.FS

// DefaultAddr is where the server listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:5173"

// CallbackHandler finishes a provider redirect.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, params teamauth.CallbackParams) teamauth.Outcome
}

// HandlerFunc adapts a function to CallbackHandler.
type HandlerFunc func(ctx context.Context, params teamauth.CallbackParams) teamauth.Outcome

// HandleCallback implements CallbackHandler.
func (f HandlerFunc) HandleCallback(ctx context.Context, params teamauth.CallbackParams) teamauth.Outcome {
	return f(ctx, params)
}

// Server serves the callback page and hands each outcome to Results.
type Server struct {
	app      *fiber.App
	handler  CallbackHandler
	addr     string
	path     string
	gatherer prometheus.Gatherer
	logger   teamauth.Logger

	mu       sync.Mutex
	verifier string
	results  chan teamauth.Outcome
}

// Option configures the Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithPath sets the callback route (default /auth/callback).
func WithPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.path = path
		}
	}
}

// WithMetrics exposes gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithLogger sets the logger.
func WithLogger(l teamauth.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the server. It does not listen until Start is called.
func New(handler CallbackHandler, opts ...Option) (*Server, error) {
	s := &Server{
		handler: handler,
		addr:    DefaultAddr,
		path:    "/auth/callback",
		logger:  teamauth.NopLogger{},
		results: make(chan teamauth.Outcome, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Views:                 django.NewFileSystem(http.FS(views), ".html"),
	})
	s.app.Get(s.path, s.handleCallback)
	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.gatherer)))
	}

	return s, nil
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// URL is the absolute callback URL to register as the provider redirect.
func (s *Server) URL() string {
	return "http://" + s.addr + s.path
}

// Expect stores the PKCE verifier of the pending OAuth request.
func (s *Server) Expect(req *teamauth.OAuthRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req == nil {
		s.verifier = ""
		return
	}
	s.verifier = req.CodeVerifier
}

// Results delivers one outcome per handled callback.
func (s *Server) Results() <-chan teamauth.Outcome {
	return s.results
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("callback server listening", "url", s.URL())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleCallback(c *fiber.Ctx) error {
	s.mu.Lock()
	verifier := s.verifier
	s.mu.Unlock()

	params := teamauth.CallbackParams{
		Code:             c.Query("code"),
		CodeVerifier:     verifier,
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}

	out := s.handler.HandleCallback(c.UserContext(), params)
	s.logger.Debug("callback handled", "state", out.State, "succeeded", out.Succeeded())

	select {
	case s.results <- out:
	default:
		s.logger.Warn("callback result dropped", "state", out.State)
	}

	status := fiber.StatusOK
	if !out.Succeeded() {
		status = fiber.StatusUnauthorized
	}
	return c.Status(status).Render("callback", pageData(out))
}

func pageData(out teamauth.Outcome) fiber.Map {
	title := "Sign-in failed"
	message := out.Message
	switch {
	case out.State == teamauth.FlowOnboarding:
		title = "Almost there"
		if message == "" {
			message = "finish your profile to start using TeamUp"
		}
	case out.Succeeded():
		title = "Signed in"
		if message == "" {
			message = "you are signed in"
		}
	}

	return fiber.Map{
		"title":         title,
		"success":       out.Succeeded(),
		"message":       message,
		"redirect_url":  out.RedirectURL,
		"delay_seconds": int(math.Ceil(out.RedirectAfter.Seconds())),
	}
}
