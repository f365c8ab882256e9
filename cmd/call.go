package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olivermeyer777/post-translatorv1/internal/call"
	"github.com/olivermeyer777/post-translatorv1/internal/config"
	"github.com/olivermeyer777/post-translatorv1/internal/language"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
	"github.com/olivermeyer777/post-translatorv1/internal/ui"
)

var callFlags struct {
	role       string
	lang       string
	voice      string
	broker     string
	relayURL   string
	apiKey     string
	stunServer string
	turnServer string
	turnUser   string
	turnPass   string
	forceRelay bool
	muted      bool
}

var callCmd = &cobra.Command{
	Use:   "call <room>",
	Short: "Join a room and start a translated call",
	Long: `Join a room as one of the two call parties. Speech captured from the
microphone is translated into the peer's language and played on their
side; their translated speech plays here. Both parties must join the
same room id with different roles.`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callFlags.role, "role", "r", "customer", "call role: customer or agent")
	callCmd.Flags().StringVarP(&callFlags.lang, "lang", "l", "", "spoken language code (see 'languages')")
	callCmd.Flags().StringVar(&callFlags.voice, "voice", "", "synthesized voice name (role default when empty)")
	callCmd.Flags().StringVar(&callFlags.broker, "broker", "", "MQTT broker URL for signaling")
	callCmd.Flags().StringVar(&callFlags.relayURL, "relay-url", "", "WebSocket relay URL (overrides the MQTT broker)")
	callCmd.Flags().StringVar(&callFlags.apiKey, "api-key", "", "translation service API key (or GEMINI_API_KEY)")
	callCmd.Flags().StringVar(&callFlags.stunServer, "stun", "", "STUN server URL")
	callCmd.Flags().StringVar(&callFlags.turnServer, "turn", "", "TURN server host")
	callCmd.Flags().StringVar(&callFlags.turnUser, "turn-user", "", "TURN username")
	callCmd.Flags().StringVar(&callFlags.turnPass, "turn-pass", "", "TURN password")
	callCmd.Flags().BoolVar(&callFlags.forceRelay, "force-relay", false, "force TURN relay for the peer connection")
	callCmd.Flags().BoolVar(&callFlags.muted, "muted", false, "start with the microphone muted")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	room := args[0]

	var role signaling.Role
	switch strings.ToLower(callFlags.role) {
	case "customer", "client":
		role = signaling.RoleCustomer
	case "agent":
		role = signaling.RoleAgent
	default:
		return fmt.Errorf("unknown role %q (want customer or agent)", callFlags.role)
	}

	langCode := callFlags.lang
	if langCode == "" {
		if role == signaling.RoleAgent {
			langCode = language.DefaultAgentCode
		} else {
			langCode = language.DefaultCustomerCode
		}
	}
	lang, ok := language.ByCode(langCode)
	if !ok {
		return fmt.Errorf("unknown language %q (see 'post-translator languages')", langCode)
	}

	cfg, err := config.Load(config.Options{
		Broker:     callFlags.broker,
		RelayURL:   callFlags.relayURL,
		APIKey:     callFlags.apiKey,
		STUNServer: callFlags.stunServer,
		TURNServer: callFlags.turnServer,
		TURNUser:   callFlags.turnUser,
		TURNPass:   callFlags.turnPass,
		ForceRelay: callFlags.forceRelay,
	})
	if err != nil {
		return err
	}

	c, err := call.New(cfg, call.Options{
		Room:     room,
		Role:     role,
		Language: lang,
		Voice:    callFlags.voice,
	})
	if err != nil {
		return err
	}
	if callFlags.muted {
		c.SetMuted(true)
		ui.PrintWarning("microphone muted")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return c.Run(ctx)
}
