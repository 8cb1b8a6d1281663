package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yairfalse/certusage/internal/history"
	"github.com/yairfalse/certusage/internal/identity"
)

func newHistoryCmd(opts *scanOptions, d deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [certificate-arn]",
		Short: "Show recorded scans",
		Long: `Show scans recorded with --history.

Without an argument, lists every certificate with its run count. With a
certificate ARN, lists that certificate's runs, newest first.`,
		Example: `  certusage history --history certusage.db
  certusage history arn:aws:acm:eu-west-1:589470546847:certificate/abc-123 --history certusage.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			if cfg.History.Path == "" {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%w: no history database, set --history or [history] path", identity.ErrConfig)}
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			defer func() { _ = store.Close() }()

			table := tablewriter.NewTable(d.stdout)
			var rows [][]string

			if len(args) == 0 {
				table.Header("CERTIFICATE", "RUNS", "LAST SCAN", "REFERENCES")
				for _, st := range store.Certificates() {
					rows = append(rows, []string{
						st.Certificate,
						strconv.Itoa(st.Runs),
						st.LastScan.Format(time.RFC3339),
						strconv.Itoa(st.LastReports),
					})
				}
			} else {
				id, err := identity.Parse(args[0])
				if err != nil {
					return &exitCodeError{code: exitError, err: err}
				}
				runs, err := store.Runs(cmd.Context(), id.ARN(), limit)
				if err != nil {
					return &exitCodeError{code: exitError, err: err}
				}

				table.Header("RUN", "STARTED", "DURATION", "REFERENCES", "FAILED")
				for _, run := range runs {
					failed := make([]string, 0, len(run.Failed))
					for _, k := range run.Failed {
						failed = append(failed, string(k))
					}
					rows = append(rows, []string{
						strconv.FormatUint(run.Sequence, 10),
						run.StartedAt.Format(time.RFC3339),
						run.Duration.Round(time.Millisecond).String(),
						strconv.Itoa(len(run.Reports)),
						strings.Join(failed, ","),
					})
				}
			}

			if err := table.Bulk(rows); err != nil {
				return fmt.Errorf("append rows: %w", err)
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("render table: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to show, 0 for all")
	return cmd
}
