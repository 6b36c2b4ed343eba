package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var importNoWait bool

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Upload time-series files and queue an import",
	Long: `Upload local CSV (or .csv.gz) files to the import container and queue
an import job for them.

Examples:
  timeport import history.csv
  timeport import 2023.csv.gz 2024.csv.gz --no-wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var importURLCmd = &cobra.Command{
	Use:   "import-url <signed-url>",
	Short: "Queue an import of a file behind a signed URL",
	Long: `Queue an import job for a single file hosted externally and reachable
through a signed, time-limited URL. The file is not uploaded; the server
streams it directly during the import.

Example:
  timeport import-url 'https://store.example.com/data/history.csv.gz?sig=...'`,
	Args: cobra.ExactArgs(1),
	RunE: runImportURL,
}

func init() {
	importCmd.Flags().BoolVar(&importNoWait, "no-wait", false, "queue the job and exit without watching progress")
	importURLCmd.Flags().BoolVar(&importNoWait, "no-wait", false, "queue the job and exit without watching progress")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importURLCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	names := make([]string, len(args))
	for i, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		names[i] = filepath.Base(path)
	}

	info, err := apiClient.UploadInfo(ctx, names)
	if err != nil {
		return fmt.Errorf("get upload info: %w", err)
	}

	for i, path := range args {
		uploadURL, ok := info.Files[names[i]]
		if !ok {
			return fmt.Errorf("no upload URL for %s", names[i])
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		err = apiClient.UploadFile(ctx, uploadURL, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		fmt.Printf("Uploaded %s\n", names[i])
	}

	job, err := apiClient.QueueImport(ctx, names)
	if err != nil {
		return fmt.Errorf("queue import: %w", err)
	}
	fmt.Printf("Queued import job %s\n", job.JobID())

	if importNoWait {
		fmt.Printf("Use 'timeport jobs %s' to check status.\n", job.JobID())
		return nil
	}
	return RunJobProgress(apiClient, job)
}

func runImportURL(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	job, err := apiClient.QueueBlobImport(ctx, args[0])
	if err != nil {
		return fmt.Errorf("queue import: %w", err)
	}
	fmt.Printf("Queued import job %s\n", job.JobID())

	if importNoWait {
		fmt.Printf("Use 'timeport jobs %s' to check status.\n", job.JobID())
		return nil
	}
	return RunJobProgress(apiClient, job)
}
