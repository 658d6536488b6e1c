// Package cmd holds the finance-api subcommands.
package cmd

import (
	"context"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/LovationAdmin/finance-api/config"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/services"
	"github.com/LovationAdmin/finance-api/store"
	"github.com/LovationAdmin/finance-api/utils"
)

// Commands is the list of all subcommands, in help order.
var Commands = []subcommands.Command{
	&serveCmd{},
	&migrateCmd{},
	&importItemCmd{},
	&tokenCmd{},
}

// env is what every command starts from.
type env struct {
	cfg config.Config
	log zerolog.Logger
}

func bootstrap() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	utils.SetProduction(cfg.IsProduction())
	log := logger.New(logger.Options{Level: cfg.LogLevel, Production: cfg.IsProduction()})
	return &env{cfg: cfg, log: log}, nil
}

// openStore connects the configured store. Postgres schemas are migrated
// before use.
func (e *env) openStore(ctx context.Context) (store.Store, error) {
	if e.cfg.StoreDriver == config.DriverMemory {
		e.log.Warn().Msg("using the in-memory store, data is lost on exit")
		return store.NewMemory(), nil
	}

	db, err := config.InitDB(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := config.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	e.log.Info().Msg("database connected")
	return store.NewPostgres(db), nil
}

// aggregator returns nil when Pluggy credentials are not configured.
func (e *env) aggregator() (services.Aggregator, error) {
	if e.cfg.PluggyClientID == "" && e.cfg.PluggyClientSecret == "" {
		return nil, nil
	}
	client, err := services.NewPluggyClient(services.PluggyConfig{
		BaseURL:      e.cfg.PluggyBaseURL,
		ClientID:     e.cfg.PluggyClientID,
		ClientSecret: e.cfg.PluggyClientSecret,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
