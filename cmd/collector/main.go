package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mrlm-net/eventbeacon/internal/collector"
	"github.com/mrlm-net/eventbeacon/internal/config"
)

func main() {
	var cfg config.Collector
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal(err)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	store, err := collector.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	collector.NewHandler(store).Register(app)

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			log.Printf("fiber stopped: %v", err)
		}
	}()

	log.Printf("collector listening on %s (db %s)", cfg.Addr, cfg.DBPath)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("fiber shutdown error: %v", err)
	}

	log.Println("collector exiting")
}
