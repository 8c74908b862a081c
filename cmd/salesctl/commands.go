package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"salespulse/internal/files"
	"salespulse/internal/services"
)

func newAnalyzeCmd(c *cli) *cobra.Command {
	var topN int

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run every analysis on a sales file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, name, err := readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeCache, err := c.service()
			if err != nil {
				return err
			}
			defer closeCache()

			result, err := svc.Analyze(cmd.Context(), raw, name, c.options(topN))
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&topN, "top-n", 0, "number of top products (default from config)")
	return cmd
}

func newValidateCmd(c *cli) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a sales file and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, name, err := readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeCache, err := c.service()
			if err != nil {
				return err
			}
			defer closeCache()

			report, err := svc.Validate(cmd.Context(), raw, name)
			if err != nil {
				return err
			}
			if err := c.print(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if strict && !report.IsValid {
				return errInvalidDataset
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the dataset is invalid")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print the statistics report of a sales file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, name, err := readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeCache, err := c.service()
			if err != nil {
				return err
			}
			defer closeCache()

			report, err := svc.Statistics(cmd.Context(), raw, name, c.options(0))
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), report)
		},
	}
}

func newCohortCmd(c *cli) *cobra.Command {
	var customerColumn string

	cmd := &cobra.Command{
		Use:   "cohort <file>",
		Short: "Group customers by the month of their first purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, name, err := readInput(args[0])
			if err != nil {
				return err
			}
			svc, closeCache, err := c.service()
			if err != nil {
				return err
			}
			defer closeCache()

			table, err := svc.Cohorts(cmd.Context(), raw, name, customerColumn)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&customerColumn, "customer-column", "customer_id", "column identifying the customer")
	return cmd
}

// batchResult is one line of the batch summary
type batchResult struct {
	File         string  `json:"file"`
	Fingerprint  string  `json:"fingerprint,omitempty"`
	Rows         int     `json:"rows,omitempty"`
	RevenueTotal float64 `json:"revenue_total,omitempty"`
	FromCache    bool    `json:"from_cache"`
	Warnings     int     `json:"warnings,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func newBatchCmd(c *cli) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch <files|dirs|globs...>",
		Short: "Analyze many sales files and print one summary line per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			datasets, err := files.NewDiscovery("").Expand(args)
			if err != nil {
				return err
			}
			svc, closeCache, err := c.service()
			if err != nil {
				return err
			}
			defer closeCache()

			if workers < 1 {
				workers = 1
			}
			results := make([]batchResult, len(datasets))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for i, ds := range datasets {
				g.Go(func() error {
					results[i] = analyzeOne(ctx, svc, ds.Path, c.options(0))
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}
			if err := c.print(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "files analyzed concurrently")
	return cmd
}

func analyzeOne(ctx context.Context, svc *services.AnalysisService, path string, opts services.AnalyzeOptions) batchResult {
	res := batchResult{File: path}

	raw, name, err := readInput(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	result, err := svc.Analyze(ctx, raw, name, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Fingerprint = result.Fingerprint
	res.FromCache = result.FromCache
	res.Warnings = len(result.Warnings)
	if result.Validation != nil {
		res.Rows = result.Validation.Metrics.RowCount
	}
	if result.KPIs != nil {
		res.RevenueTotal = result.KPIs.RevenueTotal
	}
	return res
}
