package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evdnx/gorb"
	"github.com/evdnx/gorb/config"
	"github.com/evdnx/gorb/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gorb",
		Short:         "Opening-range-breakout options trader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		path  string
		paper bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("paper") {
				cfg.Execution.Paper = paper
			}
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			app, err := gorb.New(cfg, log, version)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error("journal_close_failed", logger.Err(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file (YAML or JSON)")
	cmd.Flags().BoolVar(&paper, "paper", true, "paper trading")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check config files",
	}

	var (
		out  string
		mode string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults of a risk mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Preset(mode)
			if err != nil {
				return err
			}
			if err := cfg.SaveToFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, mode)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&out, "output", "o", "gorb.yaml", "output path (.yaml or .json)")
	initCmd.Flags().StringVar(&mode, "mode", config.ModeCurrency, "risk mode: currency or volatility")

	var in string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(in)
			if err != nil {
				return err
			}
			policy, _ := cfg.RiskPolicy()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s %s-%s, %s policy, %.0f units\n",
				cfg.Instrument.Underlying, cfg.Range.Start, cfg.Range.End, policy.Name(), cfg.Quantity())
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&in, "file", "f", "gorb.yaml", "config file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
