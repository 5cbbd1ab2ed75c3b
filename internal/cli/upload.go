package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwinckel/scribe/internal/api"
)

var uploadFlags struct {
	language      string
	recognizer    string
	noSpeakers    bool
	diarization   bool
	noPunctuation bool
	noExtract     bool
	minSpeakers   int
	maxSpeakers   int
	noWatch       bool
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a recording and start transcription",
	Long: `Upload an audio or video file and start a transcription job.

Large files are uploaded in resumable chunks. After the job starts the
live progress view opens; Ctrl+C leaves the job running in the background
('scribe watch' re-attaches to it).

Examples:
  scribe upload meeting.mp4
  scribe upload --language en-US --no-speakers interview.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	f := uploadCmd.Flags()
	f.StringVarP(&uploadFlags.language, "language", "l", "", "language code (default from config)")
	f.StringVar(&uploadFlags.recognizer, "recognizer", "", "speech recognizer id")
	f.BoolVar(&uploadFlags.noSpeakers, "no-speakers", false, "skip speaker identification")
	f.BoolVar(&uploadFlags.diarization, "diarization", false, "enable speaker diarization")
	f.BoolVar(&uploadFlags.noPunctuation, "no-punctuation", false, "disable automatic punctuation")
	f.BoolVar(&uploadFlags.noExtract, "no-extract-audio", false, "send the file as-is without audio extraction")
	f.IntVar(&uploadFlags.minSpeakers, "min-speakers", 2, "minimum speaker count hint")
	f.IntVar(&uploadFlags.maxSpeakers, "max-speakers", 10, "maximum speaker count hint")
	f.BoolVar(&uploadFlags.noWatch, "no-watch", false, "exit after starting the job instead of watching it")
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	language := uploadFlags.language
	if language == "" {
		language = cfg.Language
	}

	t := newTracker()
	defer t.Close()

	ctx := context.Background()

	if uploadFlags.noWatch {
		// Plain-text progress when not entering the interactive view.
		uploaded, err := t.Upload(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %s (%s)\n", uploaded.FileName, uploaded.GCSURI)

		if err := t.Start(ctx, transcriptionRequest(language)); err != nil {
			return err
		}
		snap := t.Snapshot()
		fmt.Printf("Job %s started. Use 'scribe watch' to follow it.\n", snap.JobID)
		return nil
	}

	return runProgressUI(t, func(ctx context.Context) error {
		if _, err := t.Upload(ctx, path); err != nil {
			return err
		}
		return t.Start(ctx, transcriptionRequest(language))
	})
}

func transcriptionRequest(language string) api.TranscriptionRequest {
	return api.TranscriptionRequest{
		LanguageCode:                language,
		RecognizerID:                uploadFlags.recognizer,
		ExtractAudio:                !uploadFlags.noExtract,
		EnablePunctuation:           !uploadFlags.noPunctuation,
		EnableDiarization:           uploadFlags.diarization,
		EnableSpeakerIdentification: !uploadFlags.noSpeakers,
		MinSpeakerCount:             uploadFlags.minSpeakers,
		MaxSpeakerCount:             uploadFlags.maxSpeakers,
	}
}
