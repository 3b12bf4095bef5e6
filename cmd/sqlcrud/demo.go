// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlcrud/demo"
)

func newDemoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Create the demo tables and query them",
		Long: `Create the demo tables of people, towns and languages, replacing any
existing ones, and list the people taller than Jim with the languages they
speak, and the towns they live in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, logger, err := opts.open()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer db.PlainDB().Close()

			report, err := demo.Run(cmd.Context(), db)
			if err != nil {
				logger.Error("demo failed", zap.Error(err))
				return err
			}
			out := cmd.OutOrStdout()
			if opts.format == "text" {
				report.Print(out)
				return nil
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
