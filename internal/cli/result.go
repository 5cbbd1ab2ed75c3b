package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resultVariant string

var resultCmd = &cobra.Command{
	Use:   "result [job-id]",
	Short: "Print the transcript of a completed job",
	Long: `Print the transcript of a completed transcription job. Without an
argument the session's active job is used.

Variants:
  plain     raw transcript text (default)
  speakers  speaker-attributed transcript
  refined   LLM-refined transcript
  segments  timed segments as JSON

Examples:
  scribe result
  scribe result --variant speakers 7f3a21`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResult,
}

func init() {
	resultCmd.Flags().StringVar(&resultVariant, "variant", "plain", "transcript variant: plain, speakers, refined or segments")
}

func runResult(cmd *cobra.Command, args []string) error {
	jobID, err := resolveJobID(args)
	if err != nil {
		return err
	}

	resp, err := apiClient.GetStatus(context.Background(), jobID)
	if err != nil {
		return err
	}

	if resp.Status != "completed" {
		return fmt.Errorf("job %s is %s, not completed", jobID, resp.Status)
	}

	switch resultVariant {
	case "plain":
		return printTranscript(resp.Transcript, "no transcript available")
	case "speakers":
		return printTranscript(resp.SpeakerTranscript, "no speaker-attributed transcript; was speaker identification enabled?")
	case "refined":
		return printTranscript(resp.RefinedTranscript, "no refined transcript available")
	case "segments":
		if len(resp.TranscriptSegments) == 0 {
			return fmt.Errorf("no segments available")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.TranscriptSegments)
	default:
		return fmt.Errorf("unknown variant %q", resultVariant)
	}
}

func printTranscript(text, missing string) error {
	if text == "" {
		return fmt.Errorf("%s", missing)
	}
	fmt.Println(text)
	return nil
}
