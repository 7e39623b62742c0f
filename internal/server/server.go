// Package server exposes the protocol endpoints and the authentication API
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authentication/samlproxy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/metrics"
	"github.com/identio/identio-server-sub001/internal/oauth"
	"github.com/identio/identio-server-sub001/internal/orchestration"
	samlsvc "github.com/identio/identio-server-sub001/internal/saml"
)

const (
	sessionCookieName = "identioSession"
	transactionHeader = "X-Transaction-ID"
)

// Server serves the SAML and OAuth endpoints and the authentication API.
type Server struct {
	cfg           *config.Config
	orchestration *orchestration.Service
	saml          *samlsvc.Service
	oauth         *oauth.Service
	collector     *metrics.Collector

	httpServer *http.Server
}

// New builds the HTTP server and its routes.
func New(cfg *config.Config, orch *orchestration.Service, samlService *samlsvc.Service,
	oauthService *oauth.Service, collector *metrics.Collector) *Server {

	s := &Server{
		cfg:           cfg,
		orchestration: orch,
		saml:          samlService,
		oauth:         oauthService,
		collector:     collector,
	}

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, samlsvc.SSOPath, s.handleSamlRedirectSSO)
	router.HandlerFunc(http.MethodPost, samlsvc.SSOPath, s.handleSamlPostSSO)
	router.HandlerFunc(http.MethodGet, "/saml/metadata", s.handleSamlMetadata)
	router.HandlerFunc(http.MethodPost, samlproxy.ACSPath, s.handleSamlProxyACS)

	router.HandlerFunc(http.MethodGet, "/oauth/authorize", s.handleOAuthAuthorize)
	router.HandlerFunc(http.MethodPost, "/oauth/token", s.handleOAuthToken)

	router.HandlerFunc(http.MethodGet, "/api/auth/methods", s.handleAuthMethods)
	router.HandlerFunc(http.MethodPost, "/api/auth/submit/password", s.handleSubmitPassword)
	router.HandlerFunc(http.MethodPost, "/api/auth/submit/transparent", s.handleSubmitTransparent)
	router.HandlerFunc(http.MethodPost, "/api/auth/saml/init", s.handleInitSamlRequest)
	router.HandlerFunc(http.MethodPost, "/api/auth/consent", s.handleConsent)

	router.Handler(http.MethodGet, "/metrics", collector.Handler())
	router.HandlerFunc(http.MethodGet, "/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Global.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info("Shutting down gracefully", zap.String("signal", sig.String()))
		return s.Shutdown(30 * time.Second)
	}
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// sessionID extracts the user session cookie, if any.
func (s *Server) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setSession refreshes the session cookie on the response.
func (s *Server) setSession(w http.ResponseWriter, sessionID string) {
	if sessionID == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     s.basePath(),
		HttpOnly: true,
		Secure:   s.cfg.Global.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) basePath() string {
	if s.cfg.Global.BasePath == "" {
		return "/"
	}
	return s.cfg.Global.BasePath
}

// loginURL is where the UI picks up an in-flight transaction.
func (s *Server) loginURL(transactionID string) string {
	base := strings.TrimSuffix(s.basePath(), "/")
	return base + "/login?transaction=" + transactionID
}
