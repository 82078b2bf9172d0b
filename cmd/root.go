package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-engine",
	Short: "Face enrollment and verification service",
	Long: `Face Engine turns face images into fixed-length feature vectors, stores
labelled samples, and verifies new images against the enrolled gallery
using cosine similarity.

Storage is selected by DATABASE_URL: a SQLite file (default face.db),
postgres:// (pgvector) or mysql:// (MariaDB).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
