package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode <image>",
	Short: "Print the feature vector of an image",
	Long: `Encode an image with the configured encoder and print the vector as JSON.

Examples:
  face-engine encode alice.jpg
  ENCODER=remote face-engine encode alice.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

var compareCmd = &cobra.Command{
	Use:   "compare <image-a> <image-b>",
	Short: "Score two images against each other",
	Long: `Encode two images and print their cosine similarity and whether it
reaches the match threshold (COSINE_THRESH unless --threshold is given).`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(compareCmd)

	encodeCmd.Flags().Bool("compact", false, "Print the vector on a single line")
	compareCmd.Flags().Float64("threshold", 0, "Match threshold (default COSINE_THRESH)")
}

// encodeImageFile encodes path with enc. It fails when the file cannot be
// read or yields no features.
func encodeImageFile(ctx context.Context, enc fingerprint.Encoder, path string) ([]float32, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a CLI argument
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img := fingerprint.Decode(data)
	if img == nil {
		return nil, fmt.Errorf("%s: not a decodable image", path)
	}
	vec := enc.Encode(ctx, img)
	if vec == nil {
		return nil, fmt.Errorf("%s: no features could be extracted", path)
	}
	return vec, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	enc, err := buildEncoder(cfg.Encoder)
	if err != nil {
		return err
	}

	vec, err := encodeImageFile(ctx, enc, args[0])
	if err != nil {
		return err
	}

	out := map[string]any{
		"embedding": vec,
		"dim":       len(vec),
		"encoder":   enc.Name(),
	}
	var data []byte
	if mustGetBool(cmd, "compact") {
		data, err = json.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	enc, err := buildEncoder(cfg.Encoder)
	if err != nil {
		return err
	}

	threshold := cfg.Match.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}

	a, err := encodeImageFile(ctx, enc, args[0])
	if err != nil {
		return err
	}
	b, err := encodeImageFile(ctx, enc, args[1])
	if err != nil {
		return err
	}

	score := facematch.Similarity(a, b)
	fmt.Printf("Score:     %.4f\n", score)
	fmt.Printf("Threshold: %.4f\n", threshold)
	fmt.Printf("Match:     %v\n", score >= threshold)
	return nil
}
