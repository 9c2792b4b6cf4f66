package api

import (
	"errors"
	"os"
	"strings"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	api := s.router.Group("/api")

	apiKey := ""
	if s.config != nil {
		apiKey = strings.TrimSpace(s.config.Server.APIKey)
	}
	if apiKey != "" {
		api.Use(apiKeyAuthMiddleware(apiKey))
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("AGENTBENCH_DISABLE_AUTH")), "true") {
		// Explicitly allow unauthenticated access.
	} else {
		return errors.New("api: missing auth configuration: set AGENTBENCH_API_KEY or set AGENTBENCH_DISABLE_AUTH=true")
	}

	api.GET("/health", s.handleHealth)

	api.POST("/benchmark/run", s.handleStartRun)
	api.GET("/benchmark/list", s.handleListBenchmarks)
	api.GET("/benchmark/runs", s.handleListRuns)
	api.GET("/benchmark/:run_id", s.handleGetRun)
	api.DELETE("/benchmark/:run_id", s.handleCancelRun)

	api.GET("/benchmark/results/:run_id", s.handleGetResults)
	api.GET("/benchmark/results/:run_id/analysis", s.handleGetAnalysis)
	api.GET("/benchmark/results/:run_id/deductions", s.handleGetDeductions)

	return nil
}
