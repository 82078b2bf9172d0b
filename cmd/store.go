package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the enrollment store",
}

var storeInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store backend, record count and schema metadata",
	Args:  cobra.NoArgs,
	RunE:  runStoreInfo,
}

var storeLabelsCmd = &cobra.Command{
	Use:   "labels [query]",
	Short: "List enrolled labels with sample counts",
	Long: `List enrolled labels with their sample counts. With a query only labels
whose normalized form matches are listed ("jan-novak" finds "Jan Novák").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStoreLabels,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInfoCmd)
	storeCmd.AddCommand(storeLabelsCmd)

	storeInfoCmd.Flags().Bool("json", false, "Output as JSON")
	storeLabelsCmd.Flags().Bool("json", false, "Output as JSON")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runStoreInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	info, err := e.store.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store info: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(info)
	}

	fmt.Printf("Backend:     %s\n", info.Backend)
	fmt.Printf("Records:     %d\n", info.Count)
	fmt.Printf("Labels:      %d\n", info.Labels)
	fmt.Printf("Max ID:      %d\n", info.MaxID)
	fmt.Printf("Dimension:   %d\n", info.Meta.Dim)
	fmt.Printf("Encoder:     %s\n", info.Meta.Encoder)
	if info.Meta.Encoder != e.encoder.Name() {
		fmt.Printf("Configured:  %s (differs from stored encoder)\n", e.encoder.Name())
	}
	fmt.Printf("Candidates:  %s\n", e.gallery.Mode())
	return nil
}

func runStoreLabels(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	labels, err := e.store.Labels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	if len(args) == 1 {
		labels = facematch.MatchLabels(labels, args[0])
	}

	if mustGetBool(cmd, "json") {
		return printJSON(labels)
	}

	if len(labels) == 0 {
		fmt.Println("No labels found")
		return nil
	}
	fmt.Printf("%-40s %s\n", "LABEL", "SAMPLES")
	fmt.Println(strings.Repeat("-", 48))
	total := 0
	for _, l := range labels {
		fmt.Printf("%-40s %d\n", l.Label, l.Samples)
		total += l.Samples
	}
	fmt.Printf("\n%d labels, %d samples\n", len(labels), total)
	return nil
}
