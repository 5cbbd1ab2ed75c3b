// Package cli provides the command-line interface for scribe.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwinckel/scribe/internal/api"
	"github.com/mwinckel/scribe/internal/config"
	"github.com/mwinckel/scribe/internal/push"
	"github.com/mwinckel/scribe/internal/record"
	"github.com/mwinckel/scribe/internal/storage"
	"github.com/mwinckel/scribe/internal/tracker"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Wired in PersistentPreRunE
	cfg       config.Config
	logger    *slog.Logger
	logClose  func() error
	apiClient *api.Client
	records   *record.Manager
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Transcribe audio and video recordings",
	Long: `Scribe uploads recordings to a transcription backend and follows the job
to completion: chunked uploads for large files, live progress over
websocket with polling as fallback, and crash-safe local state so an
interrupted session can be resumed with 'scribe watch'.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logClose = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		apiClient = api.New(cfg.ServerURL, logger)

		durable := storage.New(cfg.StateDir, logger)
		session := storage.NewSession(cfg.StateDir, logger)
		records = record.NewManager(durable, session, logger)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logClose != nil {
			if err := logClose(); err != nil {
				os.Stderr.WriteString("Warning: failed to close log file: " + err.Error() + "\n")
			}
		}
	},
}

// wsURL resolves the websocket endpoint, deriving it from the server URL
// when not configured explicitly.
func wsURL() string {
	if cfg.WSURL != "" {
		return cfg.WSURL
	}
	return push.DeriveWSURL(cfg.ServerURL)
}

// newTracker builds a tracker wired to the real backend.
func newTracker() *tracker.Tracker {
	return tracker.New(tracker.Options{
		Transport: apiClient,
		Dial: func(jobID string, onMessage func(push.Message)) tracker.PushChannel {
			return push.New(wsURL(), jobID, onMessage, logger)
		},
		Records: records,
		Logger:  logger,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(recognizerCmd)
	rootCmd.AddCommand(versionCmd)
}
