package translate

import (
	"context"
	"errors"

	"github.com/olivermeyer777/post-translatorv1/internal/media"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

// ErrMissingAPIKey indicates a configuration problem: no retry can fix
// it, so the session surfaces it immediately as terminal.
var ErrMissingAPIKey = errors.New("translation service API key is missing")

// Callbacks deliver service events. All callbacks fire from the
// service's own goroutines.
type Callbacks struct {
	// OnAudio receives synthesized translated audio, base64-encoded.
	OnAudio func(base64Audio string)

	// OnTranscript receives incremental transcript text. isInput
	// distinguishes recognized source speech from translated output;
	// isFinal marks a server-side turn boundary.
	OnTranscript func(text string, isInput, isFinal bool)

	// OnClose fires once on a server-initiated close.
	OnClose func()

	// OnError fires once on a connection failure after Connect
	// succeeded.
	OnError func(err error)
}

// ConnectOptions parameterize one translation link.
type ConnectOptions struct {
	// SourceLanguage and TargetLanguage are the service-facing
	// language names ("German", "Mandarin Chinese").
	SourceLanguage string
	TargetLanguage string

	// Role selects context only; the synthesized voice is Voice.
	Role  signaling.Role
	Voice string

	// Source supplies the raw capture audio to translate.
	Source media.Source
}

// Service is the opaque speech-translation endpoint. One Connect per
// discovered peer; Disconnect tears the link down.
type Service interface {
	// Connect opens the link and starts streaming. It returns once the
	// link is established; subsequent events arrive via cb.
	Connect(ctx context.Context, opts ConnectOptions, cb Callbacks) error

	// SetMicPaused pauses input streaming without tearing down the
	// capture pipeline, so resuming is instantaneous.
	SetMicPaused(paused bool)

	// SetMuted suppresses outbound audio entirely, independent of the
	// pause gate.
	SetMuted(muted bool)

	// Disconnect closes the link. Safe to call at any time.
	Disconnect()
}
