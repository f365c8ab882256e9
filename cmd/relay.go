package cmd

import (
	"github.com/spf13/cobra"

	"github.com/olivermeyer777/post-translatorv1/internal/relay"
	"github.com/olivermeyer777/post-translatorv1/internal/ui"
)

var relayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the self-hosted signaling relay",
	Long: `Run the WebSocket signaling relay. Call parties connect with
--relay-url ws://<host>:<port>/ws instead of the public MQTT broker.
Messages are fanned out to all other members of the same room topic
and never persisted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ui.PrintInfof("relay listening on %s", relayAddr)
		return relay.ListenAndServe(relayAddr)
	},
}

func init() {
	relayCmd.Flags().StringVarP(&relayAddr, "addr", "a", ":8080", "listen address")
	rootCmd.AddCommand(relayCmd)
}
