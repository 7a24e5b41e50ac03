package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/dexguard/internal/config"
	"github.com/mbd888/dexguard/internal/detect"
	"github.com/mbd888/dexguard/internal/logging"
	"github.com/mbd888/dexguard/internal/risk"
)

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Dexguard",
		"description": "Real-time fraud risk assessment for DEX transactions",
		"version":     "0.1.0",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// assessHandler scores a single transaction.
// POST /v1/assess
func (s *Server) assessHandler(c *gin.Context) {
	var req risk.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	assessment, err := s.engine.AssessRisk(c.Request.Context(), &req)
	if err != nil {
		// The engine fails only on malformed required input.
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_transaction",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// assessmentsHandler lists past assessments for a transaction hash.
// GET /v1/assessments/:hash
func (s *Server) assessmentsHandler(c *gin.Context) {
	hash := c.Param("hash")
	limit := intQuery(c, "limit", 50)

	assessments, err := s.assessed.ListByHash(c.Request.Context(), hash, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list assessments", "tx_hash", hash, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Failed to list assessments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"txHash":      hash,
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// alertsHandler lists recent alerts, newest first.
// GET /v1/alerts
func (s *Server) alertsHandler(c *gin.Context) {
	limit := intQuery(c, "limit", 50)

	list, err := s.alertStore.List(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Failed to list alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": list,
		"count":  len(list),
	})
}

// reloadHandler re-reads the risk parameters file and swaps detectors,
// weights, and dispatch settings without a restart. In-flight assessments
// keep the snapshot they started with.
// POST /v1/admin/reload
func (s *Server) reloadHandler(c *gin.Context) {
	params, err := config.LoadRiskParams(s.cfg.RiskParamsFile)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_params",
			"message": err.Error(),
		})
		return
	}

	if err := s.engine.Reload(detect.All(params.Detectors), params.Weights); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_params",
			"message": err.Error(),
		})
		return
	}
	if err := s.dispatcher.Reload(params.Alerts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_params",
			"message": err.Error(),
		})
		return
	}

	logging.L(c.Request.Context()).Info("risk parameters reloaded",
		"file", s.cfg.RiskParamsFile)
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
