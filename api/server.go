package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/maktheus/AgentBenchMark/internal/config"
	"github.com/maktheus/AgentBenchMark/internal/service"
)

type Server struct {
	router *gin.Engine
	svc    *service.Service
	config *config.Config
}

func NewServer(cfg *config.Config, svc *service.Service) (*Server, error) {
	r := gin.New()
	s := &Server{
		router: r,
		svc:    svc,
		config: cfg,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8000"
	}
	return s.router.Run(addr)
}
