package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maktheus/AgentBenchMark/internal/service"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStartRun(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	run, err := s.svc.SubmitRun(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Server) handleListBenchmarks(c *gin.Context) {
	infos, err := s.svc.ListBenchmarks(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"benchmarks": infos})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := parseLimitParam(c.Query("limit"), 50)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	runs, err := s.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.svc.GetRunStatus(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleCancelRun(c *gin.Context) {
	run, err := s.svc.CancelRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetResults(c *gin.Context) {
	results, err := s.svc.GetRunResults(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	report, err := s.svc.GetAnalysis(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleGetDeductions(c *gin.Context) {
	ded, err := s.svc.GetDeductions(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ded)
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrNotReady):
		respondError(c, http.StatusNotFound, err)
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}
