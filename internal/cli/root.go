// Package cli holds the commands of the headless mesh client.
package cli

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var flagLogLevel string

var rootCmd = &cobra.Command{
	Use:   "meshclient",
	Short: "Headless meeting client that joins a Huddle room over WebRTC",
	Long: `meshclient joins a Huddle meeting, waits for the host's approval and then keeps a
direct WebRTC session with every other participant. Outgoing media is read as RTP from
local UDP ports, so any encoder that emits RTP can feed it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(joinCmd)
}

// Execute runs the root command; main calls it once.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Str("module", "cli").Msg("meshclient failed")
		os.Exit(1)
	}
}
