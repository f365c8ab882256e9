package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != DefaultBroker {
		t.Fatalf("broker = %q", cfg.Broker)
	}
	if cfg.TopicPrefix != DefaultTopicPrefix {
		t.Fatalf("topic prefix = %q", cfg.TopicPrefix)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Fatalf("stun = %q", cfg.STUNServer)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("SIGNALING_BROKER", "wss://env-broker/mqtt")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(Options{Broker: "wss://flag-broker/mqtt"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "wss://flag-broker/mqtt" {
		t.Fatalf("broker = %q, want flag value", cfg.Broker)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env value", cfg.APIKey)
	}
}

func TestRoomTopic(t *testing.T) {
	cfg, _ := Load(Options{})
	if got := cfg.RoomTopic("abc123"); got != DefaultTopicPrefix+"/abc123" {
		t.Fatalf("topic = %q", got)
	}
}

func TestTURNServersEmptyByDefault(t *testing.T) {
	cfg, _ := Load(Options{})
	if servers := cfg.GetTURNServers(); servers != nil {
		t.Fatalf("turn servers = %v, want nil", servers)
	}
}

func TestTURNServerVariants(t *testing.T) {
	cfg, err := Load(Options{TURNServer: "turn:turn.example.com"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	servers := cfg.GetTURNServers()
	if len(servers) != 3 {
		t.Fatalf("got %d TURN URLs, want 3", len(servers))
	}
}
