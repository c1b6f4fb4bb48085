package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/repository"
	"PairPilot/internal/services/learning"
	"PairPilot/pkg/config"
	"PairPilot/pkg/util"
)

func weightsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "Print the learned fusion weights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			t := cfg.Thompson
			opt, err := learning.NewThompsonOptimizer(learning.Params{
				MinTrades:        t.MinTrades,
				SuccessThreshold: t.SuccessThreshold,
				FailureThreshold: t.FailureThreshold,
				LearningRate:     t.LearningRate,
			}, util.NewJSONFile(t.StatePath))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), models.WeightsResponse{
				State:    opt.State(),
				Expected: opt.GetExpectedWeights(),
			})
		},
	}
}

func historyCmd(configPath *string) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent selection batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			tracker, err := repository.NewOutcomeTracker(util.NewJSONFile(cfg.Tracker.HistoryPath), nil)
			if err != nil {
				return err
			}
			records := tracker.ListSelections(limit)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return printHistory(cmd.OutOrStdout(), tracker, records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of batches to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw records as JSON")
	return cmd
}

func printHistory(w io.Writer, tracker *repository.OutcomeTracker, records []models.SelectionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SELECTION\tTIME\tPAIRS\tDONE\tPENDING\tWIN RATE\tPNL")
	for _, r := range records {
		perf, err := tracker.GetSelectionPerformance(r.SelectionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.0f%%\t%.2f\n",
			r.SelectionID,
			r.Timestamp.Format(time.RFC3339),
			strings.Join(r.SelectedPairs, ","),
			perf.CompletedTrades,
			perf.PendingTrades,
			perf.WinRate*100,
			perf.TotalPnL)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
