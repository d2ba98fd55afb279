package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/dynaschema/internal/app"
)

func main() {
	cmd := &cli.Command{
		Name:  "dynaschema",
		Usage: "Runtime schema definitions and data conformance validation over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Sources: cli.EnvVars("DYNASCHEMA_CONFIG"),
				Usage:   "Optional YAML config file; explicit flags override its values",
			},
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("DYNASCHEMA_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./dynaschema.sqlite",
				Sources: cli.EnvVars("DYNASCHEMA_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("DYNASCHEMA_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to register at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-owner",
				Value:   "default",
				Sources: cli.EnvVars("DYNASCHEMA_BOOTSTRAP_OWNER"),
				Usage:   "Owner of the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("DYNASCHEMA_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name of the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("DYNASCHEMA_WEBHOOK_URL"),
				Usage:   "Outbox event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("DYNASCHEMA_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.DurationFlag{
				Name:    "dispatch-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("DYNASCHEMA_DISPATCH_INTERVAL"),
				Usage:   "How often the outbox is polled for pending events",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "Print an owner's audit trail as JSON lines, oldest first",
				ArgsUsage: "<owner-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					owner := c.Args().First()
					if owner == "" {
						return errors.New("replay: owner id is required")
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					count, err := app.Replay(ctx, cfg, owner, os.Stdout)
					if err != nil {
						return fmt.Errorf("replay: %w", err)
					}
					log.Printf("replayed %d events for owner %s", count, owner)
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply pending migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							v, err := app.MigrateUp(ctx, cfg)
							if err != nil {
								return fmt.Errorf("migrate up: %w", err)
							}
							log.Printf("database at version %d", v)
							return nil
						},
					},
					{
						Name:  "down",
						Usage: "Roll back every migration, dropping all stored data",
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							if err := app.MigrateDown(ctx, cfg); err != nil {
								return fmt.Errorf("migrate down: %w", err)
							}
							log.Printf("migrations rolled back")
							return nil
						},
					},
					{
						Name:  "version",
						Usage: "Print the applied migration version",
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							v, err := app.MigrationVersion(ctx, cfg)
							if err != nil {
								return fmt.Errorf("migrate version: %w", err)
							}
							fmt.Println(v)
							return nil
						},
					},
				},
			},
			{
				Name:  "apikey",
				Usage: "Manage API keys",
				Commands: []*cli.Command{
					{
						Name:      "issue",
						Usage:     "Create a key for an owner and print its token",
						ArgsUsage: "<owner-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Value: "cli", Usage: "Key name recorded as the audit actor"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							owner := c.Args().First()
							if owner == "" {
								return errors.New("apikey issue: owner id is required")
							}
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							token, err := app.IssueAPIKey(ctx, cfg, owner, c.String("name"))
							if err != nil {
								return fmt.Errorf("apikey issue: %w", err)
							}
							fmt.Println(token)
							return nil
						},
					},
					{
						Name:      "revoke",
						Usage:     "Deactivate a key",
						ArgsUsage: "<token>",
						Action: func(ctx context.Context, c *cli.Command) error {
							token := c.Args().First()
							if token == "" {
								return errors.New("apikey revoke: token is required")
							}
							cfg, err := loadConfig(c)
							if err != nil {
								return err
							}
							if err := app.RevokeAPIKey(ctx, cfg, token); err != nil {
								return fmt.Errorf("apikey revoke: %w", err)
							}
							log.Printf("api key revoked")
							return nil
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig merges the optional config file with the flags.
func loadConfig(c *cli.Command) (app.Config, error) {
	var file app.Config
	if path := c.String("config"); path != "" {
		var err error
		if file, err = app.LoadConfigFile(path); err != nil {
			return app.Config{}, err
		}
	}

	flags := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapOwner:   c.String("bootstrap-owner"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
		DispatchInterval: c.Duration("dispatch-interval"),
	}
	return app.MergeConfig(file, flags, c.IsSet), nil
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	server, closer, err := app.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Printf("close resources: %v", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		log.Printf("received signal %s", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
