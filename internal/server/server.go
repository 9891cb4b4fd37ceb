package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/config"
)

type Server struct {
	srv *http.Server
}

type options struct {
	metrics prometheus.Gatherer
}

type Option func(o *options)

// WithMetrics serves the metrics of g on GET /metrics, outside of authentication.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.metrics = g
	}
}

// NewServer builds the HTTP server. registerHandlerFn receives the /api/v1 group.
func NewServer(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup), opts ...Option) (*Server, error) {
	if cfg.Server.ServerMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := NewEngine(cfg, registerHandlerFn, opts...)
	if err != nil {
		return nil, err
	}

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewEngine returns the gin engine with middlewares and the /api/v1 routes.
func NewEngine(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup), opts ...Option) (*gin.Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := zap.L().Named("http")

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(logger, time.RFC3339, true),
		ginzap.RecoveryWithZap(logger, true),
	)

	if o.metrics != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.metrics, promhttp.HandlerOpts{})))
	}

	router := engine.Group("/api/v1")
	if cfg.Auth.Enabled {
		auth, err := NewAuthenticator(cfg.Auth.Secret)
		if err != nil {
			return nil, err
		}
		router.Use(auth.Middleware())
	}
	registerHandlerFn(router)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return engine, nil
}

// Start blocks until the server stops. It returns nil after Stop.
func (s *Server) Start(ctx context.Context) error {
	zap.S().Named("http").Infow("starting server", "addr", s.srv.Addr)
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	zap.S().Named("http").Info("stopping server")
	return s.srv.Shutdown(ctx)
}
