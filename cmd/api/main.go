package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgrid.org/internal/config"
	"authgrid.org/internal/httpapi"
	"authgrid.org/internal/obs"
	"authgrid.org/internal/rbac"
	"authgrid.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("missing DSN: set AUTHGRID_PG_DSN")
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	issuer, err := rbac.NewTokenIssuer(cfg.JWTSettings(), nil)
	if err != nil {
		log.Fatal("missing JWT secret: set AUTHGRID_JWT_SECRET")
	}

	svc, err := rbac.NewService(store, rbac.WithTokenIssuer(issuer))
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	api := httpapi.New(svc, httpapi.Options{
		Version:      version,
		RateLimitRPS: cfg.RateLimitPerSecond,
		RateBurst:    cfg.RateLimitBurst,
		MaxBodyBytes: cfg.MaxBodyBytes,
		ReadyProbe: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		},
		EnableMetrics: true,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgrid-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
