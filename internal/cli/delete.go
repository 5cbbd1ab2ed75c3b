package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [job-id]",
	Short: "Delete a transcription job and its stored files",
	Long: `Delete a transcription job on the backend, including the uploaded file
and transcript, and forget it locally. Without an argument the session's
active job is deleted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	jobID, err := resolveJobID(args)
	if err != nil {
		return err
	}

	if err := apiClient.DeleteJob(context.Background(), jobID); err != nil {
		return err
	}
	records.Delete(jobID)
	fmt.Printf("Job %s deleted.\n", jobID)
	return nil
}
