package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/runlog"
)

func newRunsCmd(root *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, recorder, err := openRecorder(cmd, root)
			if err != nil {
				return err
			}
			defer recorder.Close()

			runs, err := recorder.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.AddCommand(newRunsInitCmd(root))
	return cmd
}

func newRunsInitCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the sync_runs table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, recorder, err := openRecorder(cmd, root)
			if err != nil {
				return err
			}
			defer recorder.Close()

			if err := recorder.EnsureTable(ctx); err != nil {
				return err
			}
			pterm.Success.Println("sync_runs table is ready")
			return nil
		},
	}
}

func openRecorder(cmd *cobra.Command, root *rootFlags) (context.Context, *runlog.BigQueryRecorder, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunLog.Project == "" {
		return nil, nil, fmt.Errorf("runlog.project is not configured")
	}

	ctx := logger.WithContext(cmd.Context(), logger.NewWithLevel(cfg.Debug))
	recorder, err := runlog.NewBigQueryRecorder(ctx, cfg.RunLog.Project, cfg.RunLog.Dataset)
	if err != nil {
		return nil, nil, err
	}
	return ctx, recorder, nil
}

func printRuns(runs []*runlog.SyncRunRow) {
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return
	}

	data := pterm.TableData{{"Started", "Source", "Status", "Accounts", "Imported", "Error"}}
	for _, r := range runs {
		data = append(data, []string{
			r.StartedTS.Local().Format(time.DateTime),
			r.Source,
			r.Status.StringVal,
			nullInt(r.AccountsFetched.Valid, r.AccountsFetched.Int64),
			nullInt(r.TransactionsImported.Valid, r.TransactionsImported.Int64),
			r.ErrorMessage.StringVal,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func nullInt(valid bool, v int64) string {
	if !valid {
		return "-"
	}
	return fmt.Sprint(v)
}
