package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwinckel/scribe/internal/job"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job-id]",
	Short: "Follow a transcription job's progress",
	Long: `Follow a transcription job's progress live. Without an argument the job
started earlier in this session is re-attached; with a job id any backend
job can be followed. Jobs older than two days are discarded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	t := newTracker()
	defer t.Close()

	if len(args) == 1 {
		t.Follow(args[0])
	} else if !t.Attach() {
		fmt.Println("No active job in this session. Start one with 'scribe upload'.")
		return nil
	}

	snap := t.Snapshot()
	if snap.Status.Terminal() {
		if snap.Status == job.StageFailed {
			return fmt.Errorf("job %s failed: %s", snap.JobID, snap.Error)
		}
		fmt.Printf("Job %s already completed. Use 'scribe result' to print the transcript.\n", snap.JobID)
		return nil
	}

	return runProgressUI(t, nil)
}
