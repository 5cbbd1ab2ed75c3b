package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show the status of a transcription job",
	Long: `Show the current status of a transcription job. Without an argument the
session's active job is used.

Examples:
  scribe status                 # Active job
  scribe status 7f3a21 --json   # Specific job, machine readable`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status response")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID, err := resolveJobID(args)
	if err != nil {
		return err
	}

	resp, err := apiClient.GetStatus(context.Background(), jobID)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("Job:      %s\n", resp.JobID)
	fmt.Printf("Status:   %s\n", resp.Status)
	if resp.Progress != nil {
		fmt.Printf("Progress: %d%%\n", *resp.Progress)
	}
	if resp.CreatedAt != "" {
		fmt.Printf("Created:  %s\n", resp.CreatedAt)
	}
	if resp.CompletedAt != "" {
		fmt.Printf("Finished: %s\n", resp.CompletedAt)
	}
	if resp.Error != "" {
		fmt.Printf("Error:    %s\n", resp.Error)
	}
	return nil
}

// resolveJobID picks the explicit argument or falls back to the session's
// active job.
func resolveJobID(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	rec, ok := records.LoadActive()
	if !ok || rec.JobID == "" {
		return "", fmt.Errorf("no active job; pass a job id or start one with 'scribe upload'")
	}
	return rec.JobID, nil
}
