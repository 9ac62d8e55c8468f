package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"devtree/cmd/internal/app"
)

// storeFlags are the overrides shared by commands that open a store.
type storeFlags struct {
	store       string
	databaseURL string
	sqlitePath  string
}

func (f *storeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.store, "store", "", "identity store: memory, postgres, sqlite or mongo (env DEVTREE_STORE)")
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "postgres DSN (env DEVTREE_DATABASE_URL)")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite-path", "", "sqlite database file (env DEVTREE_SQLITE_PATH)")
}

func (f *storeFlags) apply(cmd *cobra.Command, cfg *app.Config) {
	if cmd.Flags().Changed("store") {
		cfg.Store = app.StoreKind(f.store)
	}
	if cmd.Flags().Changed("database-url") {
		cfg.DatabaseURL = f.databaseURL
	}
	if cmd.Flags().Changed("sqlite-path") {
		cfg.SQLitePath = f.sqlitePath
	}
}

func newServeCmd() *cobra.Command {
	var (
		sf       storeFlags
		addr     string
		allowAPI bool
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and live search server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ParseConfig()
			if err != nil {
				return err
			}
			sf.apply(cmd, &cfg)
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if cmd.Flags().Changed("api") {
				cfg.CORSAllowAPI = allowAPI
			}
			return app.Serve(cfg)
		},
	}
	sf.bind(c)
	c.Flags().StringVar(&addr, "addr", "", "listen address (env DEVTREE_HTTP_ADDR)")
	c.Flags().BoolVar(&allowAPI, "api", false, "accept requests without an Origin header (env DEVTREE_CORS_ALLOW_API)")
	return c
}

func newMigrateCmd() *cobra.Command {
	var sf storeFlags
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations for the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ParseConfig()
			if err != nil {
				return err
			}
			sf.apply(cmd, &cfg)
			if err := app.Migrate(cmd.Context(), cfg, stderrLogger(cmd.ErrOrStderr())); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied:", cfg.Store)
			return nil
		},
	}
	sf.bind(c)
	return c
}
