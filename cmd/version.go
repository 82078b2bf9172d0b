package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/kozaktomas/face-engine/cmd.Version=...".
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and encoder information",
	Run: func(cmd *cobra.Command, args []string) {
		enc := config.DefaultEncoderConfig()
		fmt.Printf("face-engine %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  Commit:  %s\n", CommitSHA)
		fmt.Printf("  Built:   %s\n", BuildDate)
		fmt.Printf("  Encoder: %s, %d dims by default\n", config.EncoderHistogramHOG, fingerprint.VectorDim(enc))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
