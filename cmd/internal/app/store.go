package app

import (
	"context"
	"fmt"
	"log/slog"

	"devtree/cmd/identity"
)

// openedStore is an identity store plus the lifecycle hooks the app owns.
type openedStore struct {
	store identity.Store
	// pinger backs /readyz; nil for the memory store.
	pinger identity.Pinger
	close  func(context.Context) error
}

func nopClose(context.Context) error { return nil }

// openStore connects the configured backend. With cfg.AutoMigrate the schema
// (or the Mongo unique indexes) is brought up to date before returning.
func openStore(ctx context.Context, cfg Config, log *slog.Logger) (openedStore, error) {
	switch cfg.Store {
	case StoreMemory:
		log.Info("store.memory")
		return openedStore{store: identity.NewMemoryStore(), close: nopClose}, nil

	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return openedStore{}, err
		}
		if cfg.AutoMigrate {
			if err := identity.MigratePostgres(ctx, pool, cfg.DBSchema, log); err != nil {
				pool.Close()
				return openedStore{}, err
			}
		}
		st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return openedStore{}, err
		}
		log.Info("store.postgres", "schema", st.Schema())
		// Ownership: the app owns the pool; the store never closes it.
		return openedStore{
			store:  st,
			pinger: st,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case StoreSQLite:
		// OpenSQLite always applies the embedded migrations.
		st, err := identity.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return openedStore{}, err
		}
		log.Info("store.sqlite", "path", cfg.SQLitePath)
		return openedStore{
			store:  st,
			pinger: st,
			close:  func(context.Context) error { return st.Close() },
		}, nil

	case StoreMongo:
		// OpenMongo always ensures the unique indexes.
		st, err := identity.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return openedStore{}, err
		}
		log.Info("store.mongo", "database", cfg.MongoDatabase)
		return openedStore{store: st, pinger: st, close: st.Close}, nil

	default:
		return openedStore{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Migrate brings the configured backend's schema up to date and disconnects.
func Migrate(ctx context.Context, cfg Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	cfg.AutoMigrate = true
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	return st.close(ctx)
}
