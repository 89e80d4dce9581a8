package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"serxng/client"
	"serxng/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <query...>", os.Args[0])
	}
	query := strings.Join(os.Args[1:], " ")

	// =========
	// Config
	// =========
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// Client
	// =========
	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	// =========
	// Instances
	// =========
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if seedFile := os.Getenv("SERXNG_SEED_FILE"); seedFile != "" {
		if err := c.Seed(seedFile); err != nil {
			log.Fatalf("Failed to seed instances: %v", err)
		}
	} else {
		if err := c.UpdateInstances(ctx); err != nil {
			log.Fatalf("Failed to update instances: %v", err)
		}
	}
	logger.Info("instances ready", zap.Int("count", len(c.Instances())))

	// =========
	// Search
	// =========
	resp, err := c.SearchFull(ctx, query, nil)
	if err != nil {
		logger.Fatal("search failed", zap.Error(err))
	}
	logger.Info("search completed",
		zap.String("instance", resp.InstanceURL),
		zap.Int("results", len(resp.Results)),
		zap.Duration("elapsed", resp.Elapsed))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		logger.Fatal("failed to encode results", zap.Error(err))
	}
}
