package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/tupyy/browser-runner/api/v1"
	"github.com/tupyy/browser-runner/internal/tests"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
)

// GetStatus returns the status of the current or last run
// (GET /status)
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, v1.NewRunStatusFromModel(h.runner.Status()))
}

// GetBrowsers returns the configured browsers
// (GET /browsers)
func (h *Handler) GetBrowsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Browsers())
}

// StartRun starts a run
// (POST /runs)
func (h *Handler) StartRun(c *gin.Context) {
	var req v1.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, v1.Error{Error: err.Error()})
		return
	}

	batch := req.ToModels()
	if err := tests.Validate(batch); err != nil {
		c.JSON(http.StatusBadRequest, v1.Error{Error: err.Error()})
		return
	}

	runID, err := h.runner.Start(batch, req.Browsers...)
	switch {
	case err == nil:
	case srvErrors.IsConflictError(err):
		c.JSON(http.StatusConflict, v1.Error{Error: err.Error()})
		return
	case srvErrors.IsUnknownBrowserError(err):
		c.JSON(http.StatusBadRequest, v1.Error{Error: err.Error()})
		return
	default:
		zap.S().Named("run_handler").Errorw("failed to start run", "error", err)
		c.JSON(http.StatusInternalServerError, v1.Error{Error: "failed to start run"})
		return
	}

	c.JSON(http.StatusAccepted, v1.StartRunResponse{RunId: runID})
}

// StopRun stops the current run. Tests already running finish normally.
// (DELETE /runs)
func (h *Handler) StopRun(c *gin.Context) {
	h.runner.Stop()
	c.JSON(http.StatusAccepted, v1.NewRunStatusFromModel(h.runner.Status()))
}
