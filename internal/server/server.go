// Package server exposes the loan form over HTTP: a server-rendered page,
// form actions, a small JSON API and the /predict endpoint.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"loan-decision/internal/common/config"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/form"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

// ReadyFunc reports whether the server's dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

type Options struct {
	Config     config.ServerConfig
	SessionTTL time.Duration
	Controller *form.Controller
	Ready      ReadyFunc
	Logger     logger.Logger
}

type Server struct {
	cfg        config.ServerConfig
	sessionTTL time.Duration
	controller *form.Controller
	ready      ReadyFunc
	logger     logger.Logger
	engine     *gin.Engine
}

func New(opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Config.SessionCookie == "" {
		opts.Config.SessionCookie = "loan_session"
	}
	if len(opts.Config.AllowedOrigins) == 0 {
		opts.Config.AllowedOrigins = []string{"http://localhost:3000"}
	}

	s := &Server{
		cfg:        opts.Config,
		sessionTTL: opts.SessionTTL,
		controller: opts.Controller,
		ready:      opts.Ready,
		logger:     opts.Logger.WithFields(map[string]interface{}{"component": "server"}),
	}

	g := gin.New()
	g.Use(gin.Recovery(), s.requestLogger())
	g.SetHTMLTemplate(tmpl)
	s.attachRoutes(g)
	s.engine = g
	return s, nil
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) attachRoutes(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.health)
	r.GET("/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api", s.apiStatus)
	r.GET("/api/fields", s.apiFields)
	r.GET("/api/demo", s.apiDemo)
	r.POST("/predict", s.predict)

	page := r.Group("/", s.sessionMiddleware())
	{
		page.GET("/", s.renderForm)
		page.POST("/form/field", s.updateField)
		page.POST("/form/submit", s.submit)
		page.POST("/form/reset", s.reset)
		page.POST("/form/demo", s.fillDemo)
		page.GET("/api/state", s.apiState)
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", map[string]interface{}{
			"address": s.cfg.Address,
			"source":  s.controller.SourceName(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.cfg.ShutdownTimeout))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields)
			return
		}
		s.logger.Debug("request handled", fields)
	}
}
