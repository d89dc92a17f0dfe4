package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-sync/internal/config"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/pipeline"
)

type rootFlags struct {
	Bank       string
	ConfigPath string
	DryRun     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "bank-sync",
		Short: "Sync recent bank transactions into a budgeting ledger",
		Long: `bank-sync signs in to one bank, collects the last ten days of
transactions for every account and imports them into YNAB or Notion.
Re-running is safe: already imported transactions are skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path (YAML)")
	cmd.Flags().StringVarP(&flags.Bank, "bank", "b", "", fmt.Sprintf("source to sync (%s)", supportedSources()))
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "build import records and log them without creating transactions")
	_ = cmd.MarkFlagRequired("bank")

	cmd.AddCommand(newRunsCmd(flags))
	return cmd
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runSync(ctx context.Context, flags *rootFlags) error {
	if !isSupported(flags.Bank) {
		return fmt.Errorf("%w: %q (expected one of %s)", domain.ErrUnsupportedSource, flags.Bank, supportedSources())
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(flags.Bank); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	log := logger.NewWithLevel(cfg.Debug)
	ctx = logger.WithContext(ctx, log)

	app, err := newApp(ctx, cfg, flags.DryRun)
	if err != nil {
		return err
	}
	defer app.Close()

	adapter, err := newAdapter(flags.Bank, cfg)
	if err != nil {
		return err
	}

	pterm.Info.Printf("Syncing %s into %s\n", flags.Bank, cfg.Ledger.Backend)

	state, err := pipeline.Sync(ctx, app.recorder, app.runner, app.importer, adapter)
	if state.Result != nil && state.Result.TracePath != "" {
		pterm.Warning.Printf("Trace saved to %s\n", state.Result.TracePath)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNoAccountsFetched) {
			return fmt.Errorf("no accounts fetched from %s: %w", flags.Bank, err)
		}
		return err
	}

	printSummary(state)
	return nil
}

func printSummary(state *pipeline.PipelineState) {
	summary := state.Summary

	pterm.DefaultSection.Println("Sync summary")
	data := pterm.TableData{
		{"Accounts", "Transactions", "Records", "Created", "Duplicates", "Skipped accounts"},
		{
			fmt.Sprint(len(state.Result.Accounts)),
			fmt.Sprint(state.TransactionCount()),
			fmt.Sprint(summary.Records),
			fmt.Sprint(summary.Created),
			fmt.Sprint(len(summary.Duplicates)),
			fmt.Sprint(len(summary.SkippedAccounts)),
		},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	for _, id := range summary.SkippedAccounts {
		pterm.Warning.Printf("No ledger account note contains %s\n", id)
	}
	if summary.DryRun {
		pterm.Info.Println("Dry run: nothing was written to the ledger")
		return
	}
	pterm.Success.Printf("Imported %d transactions\n", summary.Created)
}
