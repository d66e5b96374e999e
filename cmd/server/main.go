package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/viego-wallet/viego-backend/internal/app"
	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/database"
	"github.com/viego-wallet/viego-backend/internal/handlers"
	"github.com/viego-wallet/viego-backend/internal/logging"
	"github.com/viego-wallet/viego-backend/internal/middleware"
	"github.com/viego-wallet/viego-backend/internal/routes"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	logger := logging.New(cfg.Logging)

	log.Printf("MongoDB URI: %s", database.MaskURI(cfg.MongoURI))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal("Failed to start: ", err)
	}
	defer a.Close()
	a.StartBackground(ctx)

	h := &handlers.Handlers{
		Profiles:   a.Profiles,
		Cards:      a.Cards,
		Payments:   a.Payments,
		Dispatcher: a.Dispatcher,
		Spending:   a.Spending,
		Hub:        a.Hub,
		Checks:     a.Checks,
		Logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	limits := middleware.DefaultLimiters()
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.Host, limits.Global) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP rate limiting)")
	} else {
		r.Use(middleware.SecurityHeaders)
	}

	routes.SetupRoutes(r, h, limits)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	log.Printf("🚀 Viego backend running on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server: ", err)
	}
}
