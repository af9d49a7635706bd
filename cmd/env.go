package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/syndy/cardscan/internal/session"
	"github.com/syndy/cardscan/internal/store"
	"github.com/syndy/cardscan/pkg/scanium"
)

// initClient builds the scanning service client from config. Mock mode is an
// alternate Client implementation, not a global switch.
func initClient() scanium.Client {
	if cfg.Scanium.Mock {
		return scanium.NewMockClient()
	}

	opts := []scanium.Option{}
	if cfg.Scanium.BaseURL != "" {
		opts = append(opts, scanium.WithBaseURL(cfg.Scanium.BaseURL))
	}
	if cfg.Scanium.RPS > 0 {
		opts = append(opts, scanium.WithRateLimit(cfg.Scanium.RPS))
	}
	return scanium.NewClient(cfg.Scanium.Key, opts...)
}

// initStore opens the configured snapshot backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "cardscan.db"
		}
		s, err = store.NewSQLite(path)
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "", "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func sessionConfig() session.Config {
	return session.Config{
		PollInterval: time.Duration(cfg.Poll.IntervalSecs) * time.Second,
		PollBudget:   cfg.Poll.MaxAttempts,
	}
}
