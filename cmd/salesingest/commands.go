// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mdhender/salesingest/config"
	"github.com/mdhender/salesingest/metrics"
	"github.com/mdhender/salesingest/pipelines/stages"
	"github.com/mdhender/salesingest/stores/duckdb"
	"github.com/mdhender/salesingest/stores/postgres"
	store "github.com/mdhender/salesingest/stores/sqlite"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func ingestOptions(cfg *config.Config) stages.Options {
	return stages.Options{
		StagingDir: cfg.StagingDir,
		Table:      cfg.Sink.Table,
		Transform:  cfg.Transform,
		Claims:     cfg.Ledger.ClaimsEnabled(),
		ClaimTTL:   cfg.Ledger.ClaimTTL,
	}
}

func cmdRun(a *app) *cobra.Command {
	dryRun := false
	failOnError := false
	var reportFile string
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().BoolVar(&dryRun, "dry-run", dryRun, "list the files that would be processed without changing anything")
		cmd.Flags().BoolVar(&failOnError, "fail-on-error", failOnError, "exit with an error when any file fails")
		cmd.Flags().StringVarP(&reportFile, "report", "r", reportFile, "write the run report as JSON to file")
		return nil
	}
	var cmd = &cobra.Command{
		Use:          "run",
		Short:        "ingest new files from the staging directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			c, err := openComponents(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					a.logger.Warn().Err(err).Msg("close")
				}
			}()

			opts := ingestOptions(a.cfg)
			opts.DryRun = dryRun
			svc := stages.NewIngestService(c.ledger, c.loader, c.sink, opts)
			svc.SetFetcher(c.fetcher)
			svc.SetLogger(a.logger)
			var m *metrics.Metrics
			if a.cfg.Metrics.Textfile != "" {
				m = metrics.New()
				svc.SetMetrics(m)
			}

			report, runErr := svc.Run(ctx)

			if reportFile != "" {
				if err := report.WriteJSON(afero.NewOsFs(), reportFile); err != nil {
					a.logger.Error().Err(err).Msg("report")
				}
			}
			if m != nil {
				if err := m.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
					a.logger.Error().Err(err).Msg("metrics")
				}
			}
			if runErr != nil {
				return runErr
			}

			for _, f := range report.Files {
				if dryRun && f.Status == stages.StatusWouldProcess {
					fmt.Printf("%s\t%s\n", f.Format, f.FileName)
				}
			}
			if failOnError && report.HasFailures() {
				return fmt.Errorf("%d of %d files: %w", report.Counts.Failed, report.Counts.Candidates, errFilesFailed)
			}
			return nil
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

func cmdScan(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "scan",
		Short:        "list the staged files and whether each is already recorded",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			c, err := openLedger(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			svc := stages.NewIngestService(c.ledger, nil, nil, ingestOptions(a.cfg))
			svc.SetLogger(a.logger)
			candidates, processed, err := svc.Scan(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tFORMAT\tSTATUS")
			for _, f := range candidates {
				status := "new"
				if processed[f.Name] {
					status = "recorded"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Format, status)
			}
			return w.Flush()
		},
	}
	return cmd
}

func cmdInitDB(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "init-db",
		Short:        "create the ledger database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			switch a.cfg.Ledger.Kind {
			case "sqlite":
				if err := store.InitDatabase(a.cfg.Ledger.DSN); err != nil {
					return err
				}
			case "duckdb":
				s, err := duckdb.Open(a.cfg.Ledger.DSN)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Initialize(ctx); err != nil {
					return err
				}
			case "postgres":
				s, err := postgres.New(ctx, a.cfg.Ledger.DSN)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Initialize(ctx); err != nil {
					return err
				}
			default:
				return fmt.Errorf("ledger kind %q has no database to create", a.cfg.Ledger.Kind)
			}
			a.logger.Info().Str("kind", a.cfg.Ledger.Kind).Str("dsn", loggableDSN(a.cfg.Ledger.Kind, a.cfg.Ledger.DSN)).Msg("ledger created")
			return nil
		},
	}
	return cmd
}

func cmdLedger(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "ledger",
		Short: "inspect and maintain the ledger",
	}
	cmd.AddCommand(cmdLedgerList(a))
	cmd.AddCommand(cmdLedgerClaims(a))
	cmd.AddCommand(cmdLedgerCompact(a))
	return cmd
}

func cmdLedgerList(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "list",
		Short:        "list the recorded files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			c, err := openLedger(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.ledger.Initialize(ctx); err != nil {
				return err
			}
			records, err := c.ledger.Records(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tPROCESSED AT")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\n", r.FileName, r.ProcessedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	return cmd
}

func cmdLedgerClaims(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "claims",
		Short:        "list the files claimed by runs in progress",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			c, err := openLedger(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			lister, ok := c.ledger.(claimLister)
			if !ok {
				return fmt.Errorf("ledger kind %q does not keep claims", a.cfg.Ledger.Kind)
			}
			if err := c.ledger.Initialize(ctx); err != nil {
				return err
			}
			claims, err := lister.Claims(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tCLAIMED BY\tCLAIMED AT")
			for _, fc := range claims {
				fmt.Fprintf(w, "%s\t%s\t%s\n", fc.FileName, fc.ClaimedBy, fc.ClaimedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	return cmd
}

func cmdLedgerCompact(a *app) *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "compact",
		Short:        "compact a SQLite ledger file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.Kind != "sqlite" {
				return fmt.Errorf("compact: ledger kind %q is not sqlite", a.cfg.Ledger.Kind)
			}
			if err := store.CompactDatabase(a.cfg.Ledger.DSN); err != nil {
				return err
			}
			a.logger.Info().Str("dsn", loggableDSN(a.cfg.Ledger.Kind, a.cfg.Ledger.DSN)).Msg("ledger compacted")
			return nil
		},
	}
	return cmd
}
