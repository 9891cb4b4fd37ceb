package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tupyy/browser-runner/internal/services"
)

type Handler struct {
	runner *services.Runner
}

func New(runner *services.Runner) *Handler {
	return &Handler{
		runner: runner,
	}
}

// RegisterHandlers registers the run endpoints on router.
func RegisterHandlers(router gin.IRouter, h *Handler) {
	router.GET("/status", h.GetStatus)
	router.GET("/browsers", h.GetBrowsers)
	router.POST("/runs", h.StartRun)
	router.DELETE("/runs", h.StopRun)
}
