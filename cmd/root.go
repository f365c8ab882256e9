package cmd

import (
	"os"

	"github.com/olivermeyer777/post-translatorv1/internal/ui"
	"github.com/olivermeyer777/post-translatorv1/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "post-translator",
	Short:   "Real-time translated voice calls between two parties speaking different languages",
	Long:    `post-translator connects two parties in a shared room and live-translates between their languages. Each side's speech is transcribed, translated and spoken to the other side in a synthesized voice, while the original voice is carried over a direct WebRTC connection. Signaling runs over a public MQTT broker by default or a self-hosted relay.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
