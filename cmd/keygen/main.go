package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ksred/revchain/internal/api"
	"github.com/ksred/revchain/internal/config"
)

func main() {
	var (
		configPath string
		subject    string
		ttl        time.Duration
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&subject, "subject", "admin", "Subject recorded in the token")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default: jwt.ttl from config)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if ttl == 0 {
		ttl = cfg.JWT.TTL
	}

	token, expiresAt, err := api.GenerateToken(cfg.JWT.Secret, cfg.JWT.Issuer, subject, ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("Generated admin token for %q (expires %s):\n", subject, expiresAt.UTC().Format(time.RFC3339))
	fmt.Println(token)
	fmt.Println("\nSend it with every /api/v1 request as:")
	fmt.Printf("Authorization: Bearer %s\n", token)
}
