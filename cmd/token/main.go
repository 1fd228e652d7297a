package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/autoescrow/internal/auth"
	"github.com/MrJamesThe3rd/autoescrow/internal/config"
)

// token prints a signed bearer token for local use against the API.
func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id (generated when empty)")
	admin := flag.Bool("admin", false, "issue an admin token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	id := uuid.New()
	if *user != "" {
		id, err = uuid.Parse(*user)
		if err != nil {
			slog.Error("invalid user id", "user", *user, "error", err)
			os.Exit(1)
		}
	}

	role := auth.RoleUser
	if *admin {
		role = auth.RoleAdmin
	}

	token, err := auth.GenerateToken(id, role, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "user %s (%s), valid for %s\n", id, role, cfg.Auth.TokenTTL)
	fmt.Println(token)
}
