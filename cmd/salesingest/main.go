// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdhender/salesingest"
	"github.com/mdhender/salesingest/config"
	"github.com/mdhender/salesingest/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries the state prepared by the root command for its children.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	a := &app{}

	addFlags := func(cmd *cobra.Command) error {
		cmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "load configuration from file")
		cmd.PersistentFlags().Bool("debug", false, "log debugging information")
		cmd.PersistentFlags().String("log-format", "", "log format (console or json)")
		cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
		cmd.PersistentFlags().Bool("quiet", false, "log less information")
		cmd.PersistentFlags().Bool("show-version", false, "show version")
		cmd.PersistentFlags().String("staging-dir", "", "override the staging directory")
		cmd.PersistentFlags().Bool("verbose", false, "log more information")
		return nil
	}
	var cmdRoot = &cobra.Command{
		Use:   "salesingest",
		Short: "sales file ingestion utility",
		Long:  `Move new sales files from the staging directory into the warehouse, at most once each.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("show-version"); showVersion {
				fmt.Printf("salesingest: version %q\n", salesingest.Version().Core())
			}
			if cmd.Name() == "version" {
				return nil
			}

			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configFile, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if stagingDir, _ := cmd.Flags().GetString("staging-dir"); stagingDir != "" {
				cfg.StagingDir = stagingDir
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")
			debug, _ := cmd.Flags().GetBool("debug")
			opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
			if level := logging.LevelFromFlags(quiet, verbose, debug); level != "" {
				opts.Level = level
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				opts.Level = level
			}
			if format, _ := cmd.Flags().GetString("log-format"); format != "" {
				opts.Format = format
			}
			logger, err := logging.New("salesingest", opts)
			if err != nil {
				return err
			}

			a.cfg, a.logger = cfg, logger
			return nil
		},
	}
	cmdRoot.AddCommand(cmdRun(a))
	cmdRoot.AddCommand(cmdScan(a))
	cmdRoot.AddCommand(cmdInitDB(a))
	cmdRoot.AddCommand(cmdLedger(a))
	cmdRoot.AddCommand(cmdVersion())
	if err := addFlags(cmdRoot); err != nil {
		log.Fatal(err)
	}

	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// A run that is interrupted stops between files.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var errFilesFailed = errors.New("one or more files failed")

func cmdVersion() *cobra.Command {
	showBuildInfo := false
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().BoolVar(&showBuildInfo, "build-info", showBuildInfo, "show build information")
		return nil
	}
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "display the application's version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showBuildInfo {
				fmt.Println(salesingest.Version().String())
				return nil
			}
			fmt.Println(salesingest.Version().Core())
			return nil
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}
