package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Identify an image against the enrolled gallery",
	Long: `Encode an image, find the best-matching enrolled sample and apply the
match threshold. With --top the k best candidates are listed as well.
The decision is recorded in the verification log unless --no-record is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Int("top", 0, "Also list the k best candidates")
	verifyCmd.Flags().Bool("no-record", false, "Do not record the decision in the verification log")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.prepareIndex(ctx); err != nil {
		return err
	}

	vec, err := encodeImageFile(ctx, e.encoder, args[0])
	if err != nil {
		return err
	}

	decision, err := e.identifier.Identify(ctx, vec)
	if err != nil {
		return fmt.Errorf("failed to identify: %w", err)
	}

	if decision.Found {
		fmt.Printf("Best match: %s (record %d)\n", decision.Label, decision.RecordID)
	} else {
		fmt.Println("Best match: none (gallery is empty)")
	}
	fmt.Printf("Score:      %.4f\n", decision.Score)
	fmt.Printf("Threshold:  %.4f\n", decision.Threshold)
	fmt.Printf("Match:      %v\n", decision.Matched)

	if k := mustGetInt(cmd, "top"); k > 0 {
		ranked, err := e.identifier.Rank(ctx, vec, k)
		if err != nil {
			return fmt.Errorf("failed to rank candidates: %w", err)
		}
		fmt.Printf("\nTop %d candidates:\n", len(ranked))
		for i, c := range ranked {
			fmt.Printf("  %2d. %-30s %.4f  (record %d)\n", i+1, c.Label, c.Score, c.RecordID)
		}
	}

	if !mustGetBool(cmd, "no-record") {
		id, err := e.store.RecordVerification(ctx, database.Verification{
			Label:     decision.Label,
			Score:     decision.Score,
			Threshold: decision.Threshold,
			Matched:   decision.Matched,
		})
		if err != nil {
			fmt.Printf("Warning: failed to record verification: %v\n", err)
		} else {
			fmt.Printf("\nVerification: %s\n", id)
		}
	}
	return nil
}
