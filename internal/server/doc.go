// Package server provides the HTTP server for browser-runner.
//
// The server uses the Gin web framework and exposes the run API under /api/v1.
//
// # Architecture Overview
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                         HTTP Server                           │
//	├───────────────────────────────────────────────────────────────┤
//	│                       Middleware Stack                        │
//	│  ┌─────────────────────────────────────────────────────────┐  │
//	│  │  Logger (ginzap.Ginzap, "http" logger)                  │  │
//	│  │  Recovery (ginzap.RecoveryWithZap)                      │  │
//	│  │  Bearer JWT (only /api/v1, when auth is enabled)        │  │
//	│  └─────────────────────────────────────────────────────────┘  │
//	├───────────────────────────────────────────────────────────────┤
//	│  GET /metrics (promhttp, only with WithMetrics, no auth)      │
//	├───────────────────────────────────────────────────────────────┤
//	│                       Router (/api/v1)                        │
//	│  ┌─────────────────────────────────────────────────────────┐  │
//	│  │  Handlers (registered via callback)                     │  │
//	│  └─────────────────────────────────────────────────────────┘  │
//	└───────────────────────────────────────────────────────────────┘
//
// # Server Modes
//
//   - dev: Gin debug mode
//   - prod: Gin release mode
//
// # Authentication
//
// When Auth.Enabled is set, every /api/v1 request needs an
// "Authorization: Bearer <token>" header holding an HS256 JWT signed with
// Auth.Secret. Expired or not-yet-valid tokens are rejected with 401.
//
// # Usage Example
//
//	srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
//	    handlers.RegisterHandlers(router, handlers.New(runner))
//	}, server.WithMetrics(collector.Registry()))
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    if err := srv.Start(ctx); err != nil {
//	        zap.S().Errorw("server error", "error", err)
//	    }
//	}()
//
//	<-ctx.Done()
//	srv.Stop(context.Background())
package server
