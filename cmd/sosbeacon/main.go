package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sosbeacon/internal/config"
)

func main() {
	var configPath string
	var replayPath string
	flag.StringVar(&configPath, "config", "./sosbeacon.yaml", "Path to YAML config")
	flag.StringVar(&replayPath, "replay", "", "Play an NMEA capture instead of reading the GPS device")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if replayPath != "" {
		cfg.GPS.Source = "replay"
		cfg.GPS.ReplayPath = replayPath
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config invalid: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.close()

	log.Printf("sosbeacon starting")
	if err := rt.run(ctx); err != nil {
		log.Printf("sosbeacon stopped: %v", err)
		return
	}
	log.Printf("sosbeacon stopping")
}
