// Command accessly runs the registration and ticketing API server.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/auth"
	"github.com/accessly-app/accessly/internal/cache"
	"github.com/accessly-app/accessly/internal/clock"
	"github.com/accessly-app/accessly/internal/config"
	"github.com/accessly-app/accessly/internal/database"
	"github.com/accessly-app/accessly/internal/handler"
	"github.com/accessly-app/accessly/internal/repository"
	"github.com/accessly-app/accessly/internal/service"
	"github.com/accessly-app/accessly/internal/ticket"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	log, err := newLogger(cfg)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("connected to postgres", zap.String("db", cfg.Database.DBName))

	eventCache, err := cache.New(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	if eventCache != nil {
		defer func() { _ = eventCache.Close() }()
		log.Info("event cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	clk := clock.NewSystem()
	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool)

	eventSvc := service.NewEventService(eventRepo, eventCache, clk, log)
	regSvc := service.NewRegistrationService(regRepo, eventCache, clk, log)
	statsSvc := service.NewStatsService(eventRepo, regRepo)
	verifier := ticket.NewVerifier(regRepo, eventRepo, clk, cfg.Ticket.RejectAfterEnd)

	h := handler.New(eventSvc, regSvc, statsSvc, verifier, clk)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.AccessLog(log))
	r.Use(handler.CORS)

	authenticated := auth.Middleware(cfg.JWT.Secret)

	r.Get("/health", handler.HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/{id}/register", h.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated, auth.RequireAdmin)
			r.Post("/", h.CreateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/registrations", h.ListMyRegistrations)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/{id}/ticket", h.TicketImage)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/{id}/checkin", h.CheckIn)
		})
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Use(authenticated, auth.RequireAdmin)
		r.Post("/verify", h.VerifyTicket)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticated, auth.RequireAdmin)
		r.Get("/stats", h.Stats)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
