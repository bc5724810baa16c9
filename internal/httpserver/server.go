package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"doc-courier/internal/config"
	"doc-courier/internal/handlers"
	"doc-courier/internal/middleware"
)

type Server struct {
	Serv *http.Server
	log  *slog.Logger
}

func NewRouter(cfg config.Config, h *handlers.Server, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logging(log))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.RegisterAccount)
		r.Post("/login", h.LoginAccount)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret, log))
			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.GetMyOrders)

			r.Get("/balance", h.GetBalance)
			r.Post("/balance/topup", h.TopUpBalance)
			r.Get("/transactions", h.GetMyTransactions)
			r.Post("/link", h.LinkChat)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, log))
		r.Use(middleware.AdminOnly)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		r.Post("/orders/{id}/refund", h.RefundOrder)
		r.Get("/transactions", h.ListTransactions)
		r.Post("/{kind}/{id}/approve", h.ApproveEntity)
		r.Post("/{kind}/{id}/reject", h.RejectEntity)
	})

	return r
}

func New(cfg config.Config, h *handlers.Server, log *slog.Logger) *Server {
	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      NewRouter(cfg, h, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{Serv: serv, log: log}
}

func (s *Server) Start() {
	go func() {
		s.log.Info("starting server", "address", s.Serv.Addr)
		if err := s.Serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.Serv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", "error", err)
		return err
	}
	s.log.Info("server stopped")
	return nil
}
