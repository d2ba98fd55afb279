package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/dynaschema/internal/adapters/events"
	"github.com/atvirokodosprendimai/dynaschema/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/dynaschema/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/dynaschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/ports"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/usecase"
	"github.com/atvirokodosprendimai/dynaschema/migrations"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 100
)

type Config struct {
	Addr             string        `yaml:"addr"`
	DBPath           string        `yaml:"db_path"`
	BootstrapAPIKey  string        `yaml:"bootstrap_api_key"`
	BootstrapOwner   string        `yaml:"bootstrap_owner"`
	BootstrapKeyName string        `yaml:"bootstrap_key_name"`
	WebhookURL       string        `yaml:"webhook_url"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
}

// LoadConfigFile reads a YAML config file. Its values are defaults that the
// caller overrides with explicitly set flags.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// MergeConfig overlays flag values on a config file. A flag wins when isSet
// reports it was given explicitly or when the file leaves the value empty.
// isSet receives the command-line flag name, e.g. "db-path".
func MergeConfig(file, flags Config, isSet func(name string) bool) Config {
	cfg := file
	str := func(dst *string, flag, value string) {
		if isSet(flag) || *dst == "" {
			*dst = value
		}
	}
	str(&cfg.Addr, "addr", flags.Addr)
	str(&cfg.DBPath, "db-path", flags.DBPath)
	str(&cfg.BootstrapAPIKey, "bootstrap-api-key", flags.BootstrapAPIKey)
	str(&cfg.BootstrapOwner, "bootstrap-owner", flags.BootstrapOwner)
	str(&cfg.BootstrapKeyName, "bootstrap-key-name", flags.BootstrapKeyName)
	str(&cfg.WebhookURL, "webhook-url", flags.WebhookURL)
	str(&cfg.WebhookSecret, "webhook-secret", flags.WebhookSecret)
	if isSet("dispatch-interval") || cfg.DispatchInterval == 0 {
		cfg.DispatchInterval = flags.DispatchInterval
	}
	return cfg
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openDB opens the database at path and brings its schema up to date.
func openDB(ctx context.Context, path string) (*gormsqlite.DB, error) {
	db, writeSQLDB, err := openWriter(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(ctx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openWriter(path string) (*gormsqlite.DB, *sql.DB, error) {
	db, err := gormsqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}
	return db, writeSQLDB, nil
}

// MigrateUp applies pending migrations and returns the resulting version.
func MigrateUp(ctx context.Context, cfg Config) (int64, error) {
	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		return 0, fmt.Errorf("resolve writer sql db: %w", err)
	}
	return migrations.Version(ctx, writeSQLDB)
}

// MigrateDown rolls back every applied migration. Stored data is lost.
func MigrateDown(ctx context.Context, cfg Config) error {
	db, writeSQLDB, err := openWriter(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return migrations.Down(ctx, writeSQLDB)
}

// MigrationVersion reports the applied migration version without changing it.
func MigrationVersion(ctx context.Context, cfg Config) (int64, error) {
	db, writeSQLDB, err := openWriter(cfg.DBPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return migrations.Version(ctx, writeSQLDB)
}

func newPublisher(cfg Config) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		log.Printf("outbox events are delivered to webhook %s", cfg.WebhookURL)
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	return events.NewLogPublisher(nil)
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	schemaStore := sqliteadapter.NewSchemaStore(db)
	dataStore := sqliteadapter.NewDataStore(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	auditTrailRepo := sqliteadapter.NewAuditTrailRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	schemaService := usecase.NewSchemaService(schemaStore)
	dataService := usecase.NewDataService(schemaService, dataStore)
	authService := usecase.NewAuthService(apiKeyRepo)
	auditService := usecase.NewAuditService(auditTrailRepo)

	if cfg.BootstrapAPIKey != "" {
		owner := cfg.BootstrapOwner
		if owner == "" {
			owner = "default"
		}
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		err := authService.Register(bootstrapCtx, cfg.BootstrapAPIKey, owner, name)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	interval := cfg.DispatchInterval
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg), interval, defaultDispatchBatch)
	dispatcher.Start(context.Background())

	handler := httpapi.NewHandler(schemaService, dataService, auditService, authService)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

// Replay writes the owner's audit trail to w as JSON lines, oldest first.
func Replay(ctx context.Context, cfg Config, ownerID string, w io.Writer) (int, error) {
	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	audit := usecase.NewAuditService(sqliteadapter.NewAuditTrailRepository(db))
	enc := json.NewEncoder(w)
	count := 0
	err = usecase.ReplayOwnerEvents(ctx, audit, usecase.NewEventCodec(), ownerID, 500, func(e usecase.ReplayEvent) error {
		count++
		return enc.Encode(e)
	})
	return count, err
}

// IssueAPIKey creates a new key for ownerID and returns its token. The token
// is not stored and cannot be shown again.
func IssueAPIKey(ctx context.Context, cfg Config, ownerID, name string) (string, error) {
	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	return usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db)).Issue(ctx, ownerID, name)
}

func RevokeAPIKey(ctx context.Context, cfg Config, token string) error {
	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db)).Revoke(ctx, token)
}
