package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwinckel/scribe/internal/api"
	"github.com/mwinckel/scribe/internal/config"
)

var versionRemote bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the scribe version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("scribe %s\n", Version)

		if !versionRemote {
			return nil
		}

		// PersistentPreRunE skips wiring for the version command, so build
		// the client here.
		c := config.Load()
		client := api.New(c.ServerURL, slogDiscard())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Health(ctx); err != nil {
			return fmt.Errorf("backend %s unreachable: %w", c.ServerURL, err)
		}
		fmt.Printf("Backend %s is up.\n", c.ServerURL)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "also check backend reachability")
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
