package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the HNSW candidate index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the HNSW index from the store and save it",
	Long: `Scan every enrolled record, build the in-memory HNSW index and save it to
HNSW_INDEX_PATH (or --path) so the next serve start can load it instead of
rebuilding.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)

	indexBuildCmd.Flags().String("path", "", "Index file (default HNSW_INDEX_PATH)")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	path := mustGetString(cmd, "path")
	if path == "" {
		path = e.cfg.Database.HNSWIndexPath
	}
	if path == "" {
		return errors.New("no index path: set HNSW_INDEX_PATH or pass --path")
	}

	// Build regardless of HNSW_ENABLED; the saved file is what serve loads.
	gallery := facematch.NewGallery(e.store, facematch.WithIndex(facematch.NewHNSWIndex()))

	start := time.Now()
	fmt.Println("Building HNSW index...")
	if err := gallery.BuildIndex(ctx); err != nil {
		return err
	}
	idx := gallery.Index()
	fmt.Printf("Indexed %d records (dim %d) in %s\n", idx.Count(), idx.Dim(), time.Since(start).Round(time.Millisecond))

	if err := gallery.SaveIndex(path); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	if idx.IsEmpty() {
		fmt.Println("Store is empty; removed any saved index")
		return nil
	}
	fmt.Printf("Index saved to %s\n", path)
	return nil
}
