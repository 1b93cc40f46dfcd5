package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"easyvet.app/internal/auth"
	"easyvet.app/internal/config"
	"easyvet.app/internal/httpapi"
	"easyvet.app/internal/mail"
	"easyvet.app/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("EASYVET_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if db == nil {
		log.Fatal("missing EASYVET_PG_DSN")
	}

	issuer, err := auth.NewIssuer(auth.TokenConfig{
		ATSecret:           cfg.ATSecret,
		ATExpiry:           cfg.ATExpiry,
		RTSecret:           cfg.RTSecret,
		RTExpiry:           cfg.RTExpiry,
		SharedSecret:       cfg.SharedTokenSecret,
		VerificationExpiry: cfg.VerificationExpiry,
		FrontendBaseURL:    cfg.FrontendBaseURL,
	})
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	notifier, err := mail.NewSender(cfg.SMTP)
	if err != nil {
		log.Fatalf("mail sender: %v", err)
	}

	svc := auth.NewService(auth.NewPGStore(db), issuer, auth.NewHasher(), notifier,
		auth.WithLogger(obs.Logger()))

	api := httpapi.New(httpapi.Options{
		Service:       svc,
		Issuer:        issuer,
		ReadyProbe:    httpapi.ReadyProbe{DB: db},
		Version:       version,
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting easyvet-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	log.Println("Stopped")
}
