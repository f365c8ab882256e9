package translate

import (
	"testing"

	"google.golang.org/genai"
)

func TestStaleReceiveEndKeepsCurrentSessionAlive(t *testing.T) {
	g := NewGeminiService("key")
	old := &genai.Session{}
	current := &genai.Session{}

	g.mu.Lock()
	g.session = current
	g.connected = true
	g.mu.Unlock()

	// The superseded session's receive loop winds down after a newer
	// Connect has already installed its replacement.
	stale, localClose := g.noteReceiveEnd(old)
	if !stale {
		t.Fatal("superseded session not reported stale")
	}
	if localClose {
		t.Fatal("local close reported without Disconnect")
	}

	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if !connected {
		t.Fatal("stale receive end disconnected the current session")
	}
}

func TestCurrentReceiveEndClearsConnected(t *testing.T) {
	g := NewGeminiService("key")
	current := &genai.Session{}

	g.mu.Lock()
	g.session = current
	g.connected = true
	g.mu.Unlock()

	stale, _ := g.noteReceiveEnd(current)
	if stale {
		t.Fatal("current session reported stale")
	}

	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if connected {
		t.Fatal("connected still set after the current session ended")
	}
}

func TestMissingKeyRejectedBeforeDial(t *testing.T) {
	g := NewGeminiService("")
	err := g.Connect(t.Context(), ConnectOptions{Source: newNullSource()}, Callbacks{})
	if err != ErrMissingAPIKey {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}
