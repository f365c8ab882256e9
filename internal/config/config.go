package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultBroker      = "wss://broker.hivemq.com:8884/mqtt"
	DefaultTopicPrefix = "postbranch/v1"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultTURN        = "" // Optional, empty by default
	DefaultTURNUser    = ""
	DefaultTURNPass    = ""
)

// Config holds application configuration
type Config struct {
	// Broker is the public MQTT broker used for signaling by default.
	Broker string

	// RelayURL, when set, switches signaling to the self-hosted
	// WebSocket relay instead of the MQTT broker.
	RelayURL string

	// TopicPrefix namespaces room topics on the shared broker.
	TopicPrefix string

	// APIKey authenticates against the translation service.
	APIKey string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Broker     string
	RelayURL   string
	APIKey     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (a local .env file is honored)
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	_ = godotenv.Load()

	broker := firstOf(opts.Broker, os.Getenv("SIGNALING_BROKER"), DefaultBroker)
	relayURL := firstOf(opts.RelayURL, os.Getenv("SIGNALING_RELAY_URL"))
	prefix := firstOf(os.Getenv("SIGNALING_TOPIC_PREFIX"), DefaultTopicPrefix)
	apiKey := firstOf(opts.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY"))

	stunServer := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	return &Config{
		Broker:      broker,
		RelayURL:    relayURL,
		TopicPrefix: prefix,
		APIKey:      apiKey,
		STUNServer:  stunServer,
		TURNServer:  turnServer,
		TURNUser:    turnUser,
		TURNPass:    turnPass,
		ForceRelay:  opts.ForceRelay,
	}, nil
}

// RoomTopic returns the shared pub/sub topic for a room.
func (c *Config) RoomTopic(roomID string) string {
	return fmt.Sprintf("%s/%s", c.TopicPrefix, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
