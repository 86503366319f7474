// Command relaychat-initdb applies the MySQL schema migrations for the
// sqlstore backend, replacing the teacher's tinode-db initialization tool.
// It never touches the memory backend, which has no schema to migrate.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/logging"
	"github.com/relaychat/server/internal/store/sqlstore"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "relaychat-initdb",
		Short: "Apply RelayChat's MySQL schema migrations",
		RunE:  run,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "mysql" {
		return fmt.Errorf("relaychat-initdb: database.driver is %q, expected mysql", cfg.Database.Driver)
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	st := sqlstore.New(cfg.Database.DSN, log)
	ctx := context.Background()
	if err := st.Open(ctx); err != nil {
		return fmt.Errorf("relaychat-initdb: %w", err)
	}
	defer st.Close()

	return st.Migrate(ctx)
}
