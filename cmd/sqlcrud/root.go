// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"database/sql"
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/sqlcrud"
	"github.com/canonical/sqlcrud/dialect"
	"github.com/canonical/sqlcrud/internal/config"
)

type rootOptions struct {
	configPath string
	format     string
}

var validFormats = []string{"yaml", "text"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "sqlcrud",
		Short:        "Run nested queries over Go models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "yaml", "output format (yaml|text)")

	cmd.AddCommand(newDemoCommand(opts))
	cmd.AddCommand(newDialectsCommand())
	return cmd
}

// open loads the config and opens the database it describes.
func (o *rootOptions) open() (*sqlcrud.DB, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	d, err := dialect.Get(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot open %s database", cfg.Driver)
	}
	opts := []sqlcrud.Option{
		sqlcrud.WithLogger(logger),
		sqlcrud.WithDialect(d),
		sqlcrud.WithParallelPrefetch(cfg.ParallelPrefetch),
	}
	switch cfg.TableNaming {
	case config.NamingSnake:
		opts = append(opts, sqlcrud.WithTableNaming(sqlcrud.SnakeCase))
	case config.NamingSnakePlural:
		opts = append(opts, sqlcrud.WithTableNaming(sqlcrud.SnakeCasePlural))
	}
	logger.Debug("database opened",
		zap.String("dialect", d.Name()),
		zap.String("driver", cfg.Driver))
	return sqlcrud.NewDB(sqldb, opts...), logger, nil
}

func newDialectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the supported SQL dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range []string{dialect.SQLite, dialect.Postgres, dialect.MySQL} {
				d, err := dialect.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name(), d.Placeholder(1))
			}
			return nil
		},
	}
}
