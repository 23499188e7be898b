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

	_ "github.com/lib/pq"

	"github.com/siftchat/dm-app/internal/config"
	"github.com/siftchat/dm-app/internal/directory"
	"github.com/siftchat/dm-app/internal/httpapi"
	"github.com/siftchat/dm-app/internal/imagestore"
	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/messaging"
	"github.com/siftchat/dm-app/internal/moderation"
	"github.com/siftchat/dm-app/internal/modlog"
	"github.com/siftchat/dm-app/internal/pipeline"
	"github.com/siftchat/dm-app/internal/push"
	"github.com/siftchat/dm-app/internal/session"
)

func main() {
	log.Println("Starting dm-app API server...")

	cfg := config.Load()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	// --- Redis session registry ---
	sessions, err := session.NewStore(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "dm-apiserver"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Image storage ---
	images, err := imagestore.NewStore(imagestore.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		UseSSL:    cfg.S3.UseSSL,
		PublicURL: cfg.S3.PublicURL,
	})
	if err != nil {
		log.Fatalf("failed to create image store: %v", err)
	}

	// --- Pipeline and API ---
	moderator := moderation.NewClient(cfg.Moderation.URL, cfg.Moderation.Timeout)
	messages := message.NewStore(db)
	ledger := modlog.NewStore(db)
	notifier := push.NewAdapter(sessions, natsClient)
	pipe := pipeline.New(moderator, messages, ledger, images, notifier)

	api := httpapi.New(pipe, messages, ledger, directory.NewStore(db))

	server := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	log.Printf("dm-app API server running")
	log.Printf("  listen_addr:    %s", cfg.HTTP.ListenAddr)
	log.Printf("  postgres:       connected")
	log.Printf("  redis_addr:     %s", cfg.RedisAddr)
	log.Printf("  nats_url:       %s", cfg.NATSURL)
	log.Printf("  moderation_url: %s", cfg.Moderation.URL)
	log.Printf("  s3_endpoint:    %s", cfg.S3.Endpoint)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	natsClient.Close()
	sessions.Close()
	db.Close()
}
