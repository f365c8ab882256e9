package translate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/olivermeyer777/post-translatorv1/internal/media"
)

// liveModel is the native-audio live model used for simultaneous
// interpretation.
const liveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

const inputMIMEType = "audio/pcm;rate=16000"

// GeminiService drives one Gemini Live session per Connect. Audio in,
// synthesized audio plus input/output transcription out.
type GeminiService struct {
	apiKey string

	paused atomic.Bool
	muted  atomic.Bool

	mu        sync.Mutex
	session   *genai.Session
	connected bool
	closing   bool
}

// NewGeminiService creates a service using the given API key.
func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{apiKey: apiKey}
}

func systemInstruction(source, target string) string {
	return fmt.Sprintf(`SYSTEM INSTRUCTION:
You are a professional Simultaneous Interpreter.
Source Language: %s
Target Language: %s

TASK:
1. Listen to the audio input in %s.
2. Wait for a complete sentence or complete thought.
3. Translate it accurately into %s.
4. Speak the translation immediately.

RULES:
- DO NOT engage in conversation.
- DO NOT answer questions.
- ONLY TRANSLATE what is heard.
- If the input is silence, do nothing.
- If the input is English and target is English, just repeat it clearly.`,
		source, target, source, target)
}

// Connect opens the live session and starts the streaming pumps.
func (g *GeminiService) Connect(ctx context.Context, opts ConnectOptions, cb Callbacks) error {
	if g.apiKey == "" {
		return ErrMissingAPIKey
	}
	if opts.Source == nil {
		return errors.New("no capture source")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	session, err := client.Live.Connect(ctx, liveModel, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction(opts.SourceLanguage, opts.TargetLanguage)}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return fmt.Errorf("live connect: %w", err)
	}

	g.mu.Lock()
	g.session = session
	g.connected = true
	g.closing = false
	g.mu.Unlock()

	slog.Info("translator connected", "source", opts.SourceLanguage, "target", opts.TargetLanguage, "voice", opts.Voice)

	go g.sendLoop(session, opts.Source)
	go g.receiveLoop(session, cb)
	return nil
}

// sendLoop streams capture frames into the session, honoring the
// pause and mute gates.
func (g *GeminiService) sendLoop(session *genai.Session, src media.Source) {
	for frame := range src.Frames() {
		g.mu.Lock()
		active := g.connected && g.session == session
		g.mu.Unlock()
		if !active {
			return
		}
		if g.paused.Load() || g.muted.Load() {
			continue
		}

		err := session.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{Data: frame, MIMEType: inputMIMEType},
		})
		if err != nil {
			slog.Debug("translator send failed", "err", err)
			return
		}
	}
}

// receiveLoop dispatches server messages until the session ends.
func (g *GeminiService) receiveLoop(session *genai.Session, cb Callbacks) {
	for {
		msg, err := session.Receive()
		if err != nil {
			stale, localClose := g.noteReceiveEnd(session)
			if stale || localClose {
				return
			}
			if errors.Is(err, io.EOF) {
				if cb.OnClose != nil {
					cb.OnClose()
				}
			} else if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}

		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		turnComplete := sc.TurnComplete

		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 && cb.OnAudio != nil {
					cb.OnAudio(base64.StdEncoding.EncodeToString(part.InlineData.Data))
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" && cb.OnTranscript != nil {
			cb.OnTranscript(sc.InputTranscription.Text, true, turnComplete)
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" && cb.OnTranscript != nil {
			cb.OnTranscript(sc.OutputTranscription.Text, false, turnComplete)
		}
	}
}

// noteReceiveEnd records that session's receive loop ended. A stale
// session, one already replaced by a newer Connect, must not touch the
// shared connected flag or it would stop the successor's send loop.
func (g *GeminiService) noteReceiveEnd(session *genai.Session) (stale, localClose bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stale = g.session != session
	localClose = g.closing
	if !stale {
		g.connected = false
	}
	return stale, localClose
}

// SetMicPaused pauses input streaming; the capture pipeline keeps
// running so resume is instantaneous.
func (g *GeminiService) SetMicPaused(paused bool) {
	g.paused.Store(paused)
}

// SetMuted suppresses outbound audio entirely.
func (g *GeminiService) SetMuted(muted bool) {
	g.muted.Store(muted)
}

// Disconnect closes the live session.
func (g *GeminiService) Disconnect() {
	g.mu.Lock()
	session := g.session
	g.session = nil
	g.connected = false
	g.closing = true
	g.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			slog.Debug("translator close", "err", err)
		}
	}
}
