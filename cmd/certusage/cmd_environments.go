package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yairfalse/certusage/internal/identity"
)

func newEnvironmentsCmd(opts *scanOptions, d deps) *cobra.Command {
	return &cobra.Command{
		Use:     "environments",
		Aliases: []string{"envs"},
		Short:   "List recognized environment profiles",
		Example: `  certusage environments
  certusage environments --config certusage.toml`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}

			var rows [][]string
			for _, p := range identity.NewResolver(cfg.Profiles()).Profiles() {
				rows = append(rows, []string{p.Name, p.Account, p.Region})
			}

			table := tablewriter.NewTable(d.stdout)
			table.Header("NAME", "ACCOUNT", "REGION")
			if err := table.Bulk(rows); err != nil {
				return fmt.Errorf("append rows: %w", err)
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("render table: %w", err)
			}
			return nil
		},
	}
}

func newVersionCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(d.stdout, "certusage %s\n", version)
		},
	}
}
