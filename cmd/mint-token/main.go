package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/vowvendors-backend/pkg/auth"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

// mint-token prints a signed access token for the external scheduler or an
// operator. The token authorizes the job trigger and admin routes.
func main() {
	logg := logger.New(logger.Options{ServiceName: "mint-token"})
	_ = godotenv.Load()

	role := flag.String("role", string(enums.RoleScheduler), "token role: scheduler|admin")
	subject := flag.String("subject", "", "subject uuid (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	parsedRole, err := enums.ParseRole(*role)
	if err != nil || parsedRole == enums.RoleVendor {
		fmt.Fprintln(os.Stderr, "role must be scheduler or admin")
		os.Exit(1)
	}

	userID := uuid.New()
	if *subject != "" {
		userID, err = uuid.Parse(*subject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -subject: %v\n", err)
			os.Exit(1)
		}
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   parsedRole,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
