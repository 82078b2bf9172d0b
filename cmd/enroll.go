package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [images...]",
	Short: "Enroll face images under a label",
	Long: `Encode images and store them as enrollment samples.

With --label every image argument is enrolled under that label. With --dir
every subdirectory of the given directory is a label and the images inside
it are its samples. Images without features are skipped and reported.

Examples:
  # Enroll two samples for alice
  face-engine enroll --label alice alice1.jpg alice2.jpg

  # Enroll a whole gallery (gallery/alice/*.jpg, gallery/bob/*.png, ...)
  face-engine enroll --dir gallery --concurrency 4`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("label", "", "Label for the image arguments")
	enrollCmd.Flags().String("dir", "", "Directory with one subdirectory per label")
	enrollCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel encoders")
}

// enrollJob is one image to enroll under a label.
type enrollJob struct {
	Label string
	Path  string
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

func isImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// collectDirJobs lists the images of every label subdirectory of dir,
// sorted by label and file name. Hidden entries are ignored.
func collectDirJobs(dir string) ([]enrollJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var jobs []enrollJob
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		labelDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(labelDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", labelDir, err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !isImageFile(f.Name()) {
				continue
			}
			jobs = append(jobs, enrollJob{Label: entry.Name(), Path: filepath.Join(labelDir, f.Name())})
		}
	}
	return jobs, nil
}

// collectEnrollJobs builds the job list from --label/--dir and the arguments.
func collectEnrollJobs(label, dir string, args []string) ([]enrollJob, error) {
	switch {
	case label != "" && dir != "":
		return nil, errors.New("--label and --dir are mutually exclusive")
	case dir != "":
		if len(args) > 0 {
			return nil, errors.New("image arguments cannot be combined with --dir")
		}
		return collectDirJobs(dir)
	case label != "":
		if len(args) == 0 {
			return nil, errors.New("at least one image is required with --label")
		}
		jobs := make([]enrollJob, len(args))
		for i, path := range args {
			jobs[i] = enrollJob{Label: label, Path: path}
		}
		return jobs, nil
	default:
		return nil, errors.New("either --label or --dir is required")
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jobs, err := collectEnrollJobs(mustGetString(cmd, "label"), mustGetString(cmd, "dir"), args)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No images found")
		return nil
	}
	concurrency := max(1, mustGetInt(cmd, "concurrency"))

	ctx := context.Background()
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	before, _ := e.store.Count(ctx)
	fmt.Printf("Records in store: %d\n", before)
	fmt.Printf("Images to enroll: %d\n\n", len(jobs))

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, skippedCount atomic.Int64
	skipped := make([]string, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			defer bar.Add(1)

			vec, err := encodeImageFile(gctx, e.encoder, job.Path)
			if err != nil {
				skipped[i] = err.Error()
				skippedCount.Add(1)
				return nil
			}
			// Write failures stop the batch.
			if _, err := e.gallery.Enroll(gctx, job.Label, vec); err != nil {
				return fmt.Errorf("failed to enroll %s as %q: %w", job.Path, job.Label, err)
			}
			successCount.Add(1)
			return nil
		})
	}
	err = g.Wait()
	fmt.Println()

	for _, msg := range skipped {
		if msg != "" {
			fmt.Printf("Skipped %s\n", msg)
		}
	}

	after, _ := e.store.Count(ctx)
	fmt.Printf("\nCompleted: %d enrolled, %d skipped\n", successCount.Load(), skippedCount.Load())
	fmt.Printf("Total records in store: %d\n", after)
	return err
}
