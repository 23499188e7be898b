package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/siftchat/dm-app/internal/config"
	"github.com/siftchat/dm-app/internal/gateway"
	"github.com/siftchat/dm-app/internal/messaging"
	"github.com/siftchat/dm-app/internal/session"
)

func main() {
	log.Println("Starting dm-app gateway...")

	cfg := config.Load()

	sessions, err := session.NewStore(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "dm-" + cfg.Gateway.Name
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	server := gateway.NewServer(gateway.Config{
		ListenAddr:     cfg.Gateway.ListenAddr,
		Name:           cfg.Gateway.Name,
		MaxConnections: cfg.Gateway.MaxConnections,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
	}, sessions, natsClient)

	log.Printf("dm-app gateway running")
	log.Printf("  listen_addr:     %s", cfg.Gateway.ListenAddr)
	log.Printf("  gateway_name:    %s", cfg.Gateway.Name)
	log.Printf("  max_connections: %d", cfg.Gateway.MaxConnections)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  nats_url:        %s", cfg.NATSURL)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("gateway error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	if err := server.Shutdown(); err != nil {
		log.Printf("gateway shutdown error: %v", err)
	}
	natsClient.Close()
	sessions.Close()
}
