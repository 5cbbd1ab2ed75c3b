package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwinckel/scribe/internal/api"
)

var recognizerFlags struct {
	id            string
	languages     []string
	model         string
	noPunctuation bool
}

var recognizerCmd = &cobra.Command{
	Use:   "recognizer",
	Short: "Create or fetch a speech recognizer",
	Long: `Create a reusable speech recognizer on the backend, or fetch it when it
already exists. Pass its id to 'scribe upload --recognizer'.

Examples:
  scribe recognizer --id meetings --language nl-NL --language en-US`,
	Args: cobra.NoArgs,
	RunE: runRecognizer,
}

func init() {
	f := recognizerCmd.Flags()
	f.StringVar(&recognizerFlags.id, "id", "", "recognizer id (required)")
	f.StringArrayVarP(&recognizerFlags.languages, "language", "l", nil, "language codes (repeatable, default from config)")
	f.StringVar(&recognizerFlags.model, "model", "", "speech model name")
	f.BoolVar(&recognizerFlags.noPunctuation, "no-punctuation", false, "disable automatic punctuation")
	_ = recognizerCmd.MarkFlagRequired("id")
}

func runRecognizer(cmd *cobra.Command, args []string) error {
	languages := recognizerFlags.languages
	if len(languages) == 0 {
		languages = []string{cfg.Language}
	}

	resp, err := apiClient.CreateRecognizer(context.Background(), api.RecognizerRequest{
		RecognizerID:               recognizerFlags.id,
		LanguageCodes:              languages,
		Model:                      recognizerFlags.model,
		EnableAutomaticPunctuation: !recognizerFlags.noPunctuation,
	})
	if err != nil {
		return err
	}

	if resp.Created {
		fmt.Printf("Recognizer %s created.\n", resp.RecognizerID)
	} else {
		fmt.Printf("Recognizer %s already exists.\n", resp.RecognizerID)
	}
	return nil
}
