// Command devtoken mints an access token for local development against the
// configured JWT secret. It refuses to run in prod.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/retail-backend/pkg/auth"
	"github.com/angelmondragon/retail-backend/pkg/config"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "devtoken", Format: "console"})
	ctx := context.Background()

	_ = godotenv.Load()

	role := flag.String("role", string(enums.RoleAdmin), "role claim: admin|client")
	user := flag.String("user", "", "user id (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	if cfg.App.IsProd() {
		logg.Error(ctx, "refusing to mint tokens", fmt.Errorf("%s is prod", config.EnvAppEnv))
		os.Exit(1)
	}

	parsedRole, err := enums.ParseRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role", err)
		os.Exit(1)
	}
	userID := uuid.New()
	if *user != "" {
		if userID, err = uuid.Parse(*user); err != nil {
			logg.Error(ctx, "invalid user id", err)
			os.Exit(1)
		}
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: parsedRole})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
