package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var totalsCmd = &cobra.Command{
	Use:   "totals ASSET_ID...",
	Short: "Recompute asset usage hours",
	Long: `Rebuild total usage hours for each asset from its completed sessions and
write the result back to the asset registry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTotals,
}

func init() {
	rootCmd.AddCommand(totalsCmd)
}

func runTotals(cmd *cobra.Command, args []string) error {
	_, store, tracker, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	failed := 0
	for _, assetID := range args {
		total, err := tracker.RecomputeTotal(cmd.Context(), assetID)
		if err != nil {
			failed++
			red.Printf("✗ %-24s %v\n", assetID, err)
			continue
		}
		green.Printf("✓ %-24s %.2f h\n", assetID, total)
	}

	if failed > 0 {
		return fmt.Errorf("failed to recompute %d of %d asset(s)", failed, len(args))
	}
	return nil
}
