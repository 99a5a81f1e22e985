package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"provider-sync/config"
	"provider-sync/internal/auth"
)

// devtoken prints a bearer token for the management API using JWT_SECRET
func main() {
	userID := flag.String("user", "", "user id to put in the token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	cfg := config.Load()
	if cfg.Server.IsProduction() {
		log.Fatal("refusing to mint tokens in production")
	}

	token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(*userID, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
