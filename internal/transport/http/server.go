package http

import (
	"context"
	"net/http"
	"time"

	"sikabot/internal/service"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, flows *service.FlowService, engine *service.Engine) *Server {
	mux := http.NewServeMux()
	h := NewHandler(flows, engine)
	h.Register(mux)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
