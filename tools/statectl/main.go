package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	accountifaces "gasledger/internal/account/interfaces"
	history "gasledger/internal/history/domain"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "statectl",
		Short: "Inspect and export persisted reconciliation state",
		Long: `statectl works directly on the JSON state files written by the
file-backed history store. It never talks to the upstream API.`,
	}

	rootCmd.AddCommand(createInspectCmd())
	rootCmd.AddCommand(createReportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createInspectCmd() *cobra.Command {
	var showDays bool

	cmd := &cobra.Command{
		Use:   "inspect <state.json>",
		Short: "Print a human-readable view of a state file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState(args[0])
			if err != nil {
				return err
			}

			color.Cyan("Entry:            %s", state.EntryID)
			if !state.Initialized {
				color.Yellow("Status:           uninitialized (no snapshot yet)")
				return nil
			}
			fmt.Printf("Last balance:     %.2f\n", state.LastBalance)
			fmt.Printf("Last poll:        %s\n", state.LastPollAt.Format(time.RFC3339))
			fmt.Printf("Month start:      %s\n", state.MonthStartDate)
			fmt.Printf("Month baseline:   %.2f\n", state.MonthBaselineBalance)
			fmt.Printf("Month usage:      %.3f\n", state.MonthUsageTotal())
			fmt.Printf("Month recharges:  %.2f\n", state.MonthRechargeTotal())
			if state.CycleDescription != "" {
				fmt.Printf("Ladder cycle:     %s\n", state.CycleDescription)
			}
			fmt.Printf("Known orders:     %d\n", len(state.KnownRechargeIDs))

			stats := state.RollingStats("", "")
			fmt.Printf("Days tracked:     %d (avg %.3f, max %.3f, min %.3f)\n",
				stats.TotalDays, stats.Average, stats.Max, stats.Min)

			if showDays {
				fmt.Println()
				for _, day := range state.Days() {
					line := fmt.Sprintf("%s  usage=%8.3f  cost=%8.2f  recharge=%8.2f",
						day.Date, day.Usage, day.Cost, day.RechargeTotal)
					if day.Flagged {
						color.Yellow("%s  [flagged]", line)
						continue
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDays, "days", false, "list every daily record")
	return cmd
}

func createReportCmd() *cobra.Command {
	var format string
	var out string

	cmd := &cobra.Command{
		Use:   "report <state.json>",
		Short: "Export a usage report from a state file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState(args[0])
			if err != nil {
				return err
			}
			if !state.Initialized {
				return fmt.Errorf("entry %s has no reconciled state yet", state.EntryID)
			}

			report := accountifaces.ReportFromState(state, time.Now())

			var payload []byte
			switch format {
			case "xlsx":
				payload, err = accountifaces.BuildUsageReportXLSX(report)
			case "pdf":
				payload, err = accountifaces.BuildUsageReportPDF(report)
			default:
				return fmt.Errorf("unknown format %q (want xlsx or pdf)", format)
			}
			if err != nil {
				return err
			}

			if out == "" {
				out = state.EntryID + "-report." + format
			}
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return err
			}
			color.Green("wrote %s (%d bytes)", out, len(payload))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "xlsx", "report format: xlsx or pdf")
	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to <entry>-report.<format>)")
	return cmd
}

func loadState(path string) (*history.PersistedState, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	state := &history.PersistedState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if state.KnownRechargeIDs == nil {
		state.KnownRechargeIDs = make(map[string]string)
	}
	if state.DailyHistory == nil {
		state.DailyHistory = make(map[string]history.DailyUsageRecord)
	}
	return state, nil
}
