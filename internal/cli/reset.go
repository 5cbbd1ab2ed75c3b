package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the session's active job locally",
	Long: `Drop the local record of the session's active job without touching the
backend. The job keeps running server-side; 'scribe status <job-id>' can
still reach it.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	rec, ok := records.LoadActive()
	if !ok {
		fmt.Println("No active job to reset.")
		return nil
	}
	records.Delete(rec.Key())
	fmt.Printf("Forgot job %s.\n", rec.Key())
	return nil
}
