package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/almanara/newsletter/internal/api"
	"github.com/almanara/newsletter/internal/config"
	"github.com/almanara/newsletter/internal/mailer"
	"github.com/almanara/newsletter/internal/repository/postgres"
	campaignsvc "github.com/almanara/newsletter/internal/service/campaign"
	subscribersvc "github.com/almanara/newsletter/internal/service/subscriber"
	"github.com/almanara/newsletter/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("[Server] Database connection failed: %v", err)
	}
	defer db.Close()
	log.Printf("[Server] Connected to PostgreSQL")

	m, err := mailer.New(mailer.Config{
		Provider:  cfg.Mailer.Provider,
		FromName:  cfg.Mailer.FromName,
		FromEmail: cfg.Mailer.FromEmail,
		SES: mailer.SESConfig{
			Region:    cfg.Mailer.SES.Region,
			AccessKey: cfg.Mailer.SES.AccessKey,
			SecretKey: cfg.Mailer.SES.SecretKey,
		},
		SMTP: mailer.SMTPConfig{
			Host:     cfg.Mailer.SMTP.Host,
			Port:     cfg.Mailer.SMTP.Port,
			Username: cfg.Mailer.SMTP.Username,
			Password: cfg.Mailer.SMTP.Password,
		},
	})
	if err != nil {
		log.Fatalf("[Server] Mailer init failed: %v", err)
	}
	log.Printf("[Server] Mailer provider: %s", cfg.Mailer.Provider)

	subscriberRepo := postgres.NewSubscriberRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)

	dispatchOpts := campaignsvc.DispatchOptions{
		Workers:     cfg.Dispatch.Workers,
		SendTimeout: cfg.Dispatch.SendTimeout(),
		MaxAttempts: cfg.Dispatch.MaxAttempts,
	}

	// The Redis throttle is optional; without it campaigns dispatch at full
	// speed.
	var throttle *worker.SendThrottle
	if cfg.Redis.Enabled {
		throttle, err = worker.NewSendThrottleFromURL(cfg.Redis.URL, cfg.Redis.SendsPerMinute)
		if err != nil {
			log.Fatalf("[Server] Redis throttle init failed: %v", err)
		}
		defer throttle.Close()
		dispatchOpts.Throttle = throttle
	}

	subscribers := subscribersvc.NewService(subscriberRepo, m, cfg.Site.BaseURL)
	campaigns := campaignsvc.NewService(campaignRepo, subscriberRepo, m, cfg.Site.BaseURL, dispatchOpts)

	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewScheduler(campaigns, cfg.Scheduler.PollInterval())
		if err := scheduler.Start(); err != nil {
			log.Fatalf("[Server] Scheduler start failed: %v", err)
		}
	}

	handlers := api.NewHandlers(subscribers, campaigns)
	router := api.SetupRoutes(handlers, cfg.RateLimit)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous campaign sends can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[Server] Shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Printf("[Server] Stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
