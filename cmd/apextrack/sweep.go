package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Abandon stale sessions once",
	Long: `Run a single abandonment sweep: every active session that has been running
longer than usage_tracking.abandon_after is marked abandoned. Paused sessions
are left alone.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	_, store, tracker, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := usage.NewSweeper(tracker, 0, zerolog.Nop()).SweepOnce(cmd.Context())
	if err != nil {
		return err
	}

	printSweepResult(tracker, result)

	if len(result.Failures) > 0 {
		return fmt.Errorf("%d session(s) could not be abandoned", len(result.Failures))
	}
	return nil
}

// printSweepResult prints the sweep summary with colors
func printSweepResult(tracker *usage.Tracker, result usage.SweepResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("ABANDONMENT SWEEP")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Threshold:  %s\n", tracker.AbandonAfter())
	fmt.Printf("Examined:   %d live session(s)\n", result.Examined)
	fmt.Println()

	if len(result.Abandoned) == 0 {
		green.Println("Nothing to abandon")
	} else {
		yellow.Printf("Abandoned:  %d\n", len(result.Abandoned))
		for _, id := range result.Abandoned {
			fmt.Printf("            → %s\n", id)
		}
	}

	if len(result.Skipped) > 0 {
		fmt.Printf("Skipped:    %d (changed during sweep)\n", len(result.Skipped))
	}

	if len(result.Failures) > 0 {
		ids := make([]string, 0, len(result.Failures))
		for id := range result.Failures {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		red.Printf("Failed:     %d\n", len(ids))
		for _, id := range ids {
			red.Printf("            → %s: %v\n", id, result.Failures[id])
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
