package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Baaaki/songshare/internal/config"
	"github.com/Baaaki/songshare/internal/database"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"
)

func main() {
	app := &cli.Command{
		Name:  "seed",
		Usage: "Prepare a songshare database",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create or update the schema",
				Action: migrate,
			},
			{
				Name:  "user",
				Usage: "Create a user if it does not exist",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Username to create",
						Sources:  cli.EnvVars("SEED_USERNAME"),
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Password for the user",
						Sources:  cli.EnvVars("SEED_PASSWORD"),
						Required: true,
					},
				},
				Action: createUser,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func openDB(verbose bool) (*gorm.DB, error) {
	cfg := config.Load()
	if verbose {
		if err := logger.Init(true); err != nil {
			return nil, err
		}
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(true)
	if err != nil {
		return err
	}
	defer database.Close(db)

	fmt.Fprintln(cmd.Root().Writer, "Schema is up to date")
	return nil
}

func createUser(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(false)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// Token settings are irrelevant here; only Register is used.
	authService := service.NewAuthService(repository.NewUserRepository(db), "", time.Hour)

	username := cmd.String("username")
	user, err := authService.Register(ctx, username, cmd.String("password"))
	if errors.Is(err, service.ErrUsernameExists) {
		fmt.Fprintf(cmd.Root().Writer, "User %q already exists\n", username)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "Created user %q (id %d)\n", user.Username, user.ID)
	return nil
}
