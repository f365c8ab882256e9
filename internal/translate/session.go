// Package translate bridges one local role+language pair to the
// speech-translation service and to the peer: it streams captured
// audio out, forwards synthesized translated audio to the peer,
// buffers and commits transcripts, and gates the microphone against
// crosstalk while translated audio is playing locally.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/olivermeyer777/post-translatorv1/internal/language"
	"github.com/olivermeyer777/post-translatorv1/internal/media"
	"github.com/olivermeyer777/post-translatorv1/internal/playback"
	"github.com/olivermeyer777/post-translatorv1/internal/retry"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

const (
	// pingInterval bounds worst-case peer discovery latency.
	pingInterval = 1 * time.Second

	// inputFlushDelay commits buffered input text after a quiet gap,
	// even without a server-marked turn boundary.
	inputFlushDelay = 800 * time.Millisecond

	// translatingTimeout clears the translating indicator if no audio
	// comes back for a committed input.
	translatingTimeout = 5 * time.Second

	// playingCeiling force-releases the mic gate even if the
	// scheduler's own playback timeout failed to fire.
	playingCeiling = 8 * time.Second
)

// RetryPolicy is the bounded exponential backoff for translation
// service connects: 1s base doubling per attempt, 10s cap, then give
// up and surface a terminal error.
var RetryPolicy = retry.Policy{
	MaxAttempts: 10,
	Base:        1 * time.Second,
	Cap:         10 * time.Second,
	Exponential: true,
}

// ErrServiceUnavailable wraps the last connect failure once the retry
// budget is exhausted.
var ErrServiceUnavailable = errors.New("unable to connect to translation service")

// DefaultVoice returns the role-default synthesized voice.
func DefaultVoice(role signaling.Role) string {
	if role == signaling.RoleCustomer {
		return "Kore"
	}
	return "Fenrir"
}

// Session runs one party's translation link for the duration of a
// discovered target peer.
type Session struct {
	bus       *signaling.Bus
	clk       clock.Clock
	role      signaling.Role
	lang      language.Language
	voice     string
	service   Service
	scheduler *playback.Scheduler
	log       *Log

	retrier  *retry.Retrier
	watchdog *retry.Watchdog

	mu          sync.Mutex
	target      *language.Language
	source      media.Source
	connected   bool
	connecting  bool
	translating bool
	terminalErr error
	lastErr     error
	attempt     uint64
	inputBuf    strings.Builder
	outputBuf   strings.Builder
	flushTimer  *clock.Timer
	transTimer  *clock.Timer
	pingStop    chan struct{}
	unsubs      []func()
	closed      bool
	onState     func()
}

// NewSession wires a session. voice may be empty to use the role
// default. Pass clock.New() outside of tests.
func NewSession(bus *signaling.Bus, role signaling.Role, lang language.Language, voice string,
	service Service, scheduler *playback.Scheduler, log *Log, clk clock.Clock) *Session {

	if voice == "" {
		voice = DefaultVoice(role)
	}
	s := &Session{
		bus:       bus,
		clk:       clk,
		role:      role,
		lang:      lang,
		voice:     voice,
		service:   service,
		scheduler: scheduler,
		log:       log,
		retrier:   retry.NewRetrier(RetryPolicy, clk),
	}
	s.watchdog = retry.NewWatchdog(playingCeiling, clk, func() {
		slog.Warn("playback watchdog triggered, force releasing mic")
		s.scheduler.Playing().Set(false)
	})
	return s
}

// OnState registers a callback fired on any connection-state change.
func (s *Session) OnState(fn func()) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Start subscribes to the bus, starts discovery pings and engages the
// mic gate on the playing signal.
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed || s.pingStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.pingStop = stop

	s.unsubs = append(s.unsubs,
		s.bus.Subscribe(s.handleMessage),
		s.scheduler.Playing().Subscribe(s.handlePlaying),
	)
	s.mu.Unlock()

	// Announce presence immediately, then keep pinging until a target
	// is confirmed. The ticker is created here so it exists before
	// Start returns.
	s.sendPing()
	ticker := s.clk.Ticker(pingInterval)
	go s.pingLoop(ticker, stop)
}

func (s *Session) pingLoop(ticker *clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			confirmed := s.target != nil
			s.mu.Unlock()
			if !confirmed {
				s.sendPing()
			}
		case <-stop:
			return
		}
	}
}

func (s *Session) sendPing() {
	s.bus.Send(&signaling.Message{Type: signaling.TypePing, Role: s.role, Language: &s.lang})
}

// SetSource provides the local capture stream. The session connects
// once both a target language and a source are available.
func (s *Session) SetSource(src media.Source) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
	s.maybeConnect()
}

// SetMuted suppresses outbound audio without touching the capture or
// decoding machinery.
func (s *Session) SetMuted(muted bool) {
	s.service.SetMuted(muted)
}

func (s *Session) handleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypePing:
		if msg.Role == s.role || msg.Language == nil {
			return
		}
		s.setTarget(*msg.Language)
		// Answer the ping so the peer discovers us too.
		s.bus.Send(&signaling.Message{Type: signaling.TypeJoinRoom, Role: s.role, Language: &s.lang})

	case signaling.TypeJoinRoom:
		if msg.Role == s.role || msg.Language == nil {
			return
		}
		s.setTarget(*msg.Language)

	case signaling.TypeAudioChunk:
		if msg.SenderRole == s.role {
			return
		}
		s.scheduler.Enqueue(msg.Data)

	case signaling.TypeTranscript:
		if msg.SenderRole == s.role {
			return
		}
		s.log.Add(msg.Text, msg.SenderRole, msg.IsTranslation)
	}
}

func (s *Session) setTarget(lang language.Language) {
	s.mu.Lock()
	if s.target != nil && s.target.Code == lang.Code {
		s.mu.Unlock()
		return
	}
	s.target = &lang
	s.mu.Unlock()

	slog.Info("peer discovered", "language", lang.Name)
	s.notifyState()
	s.maybeConnect()
}

// handlePlaying is the crosstalk gate: while translated audio plays
// locally, the encoder pauses (without teardown) and input transcripts
// are suppressed. The watchdog bounds how long the gate can stay shut.
func (s *Session) handlePlaying(playing bool) {
	s.service.SetMicPaused(playing)
	if playing {
		s.watchdog.Arm()
	} else {
		s.watchdog.Disarm()
	}
}

// maybeConnect starts a connect attempt when a target language and a
// capture source are both available and no session is active.
func (s *Session) maybeConnect() {
	s.mu.Lock()
	if s.closed || s.terminalErr != nil || s.connected || s.connecting ||
		s.target == nil || s.source == nil {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	s.attempt++
	id := s.attempt
	target := *s.target
	source := s.source
	s.mu.Unlock()

	s.notifyState()
	go s.connect(id, target, source)
}

func (s *Session) connect(id uint64, target language.Language, source media.Source) {
	slog.Info("connecting translator", "from", s.lang.Code, "to", target.Code)

	err := s.service.Connect(context.Background(), ConnectOptions{
		SourceLanguage: s.lang.ServiceName,
		TargetLanguage: target.ServiceName,
		Role:           s.role,
		Voice:          s.voice,
		Source:         source,
	}, Callbacks{
		OnAudio:      func(data string) { s.onAudio(id, data) },
		OnTranscript: func(text string, isInput, isFinal bool) { s.onTranscript(id, text, isInput, isFinal) },
		OnClose:      func() { s.onDisconnect(id, errors.New("translator closed by server")) },
		OnError:      func(err error) { s.onDisconnect(id, err) },
	})

	s.mu.Lock()
	if s.attempt != id || s.closed {
		// A newer attempt superseded this one while it was in flight;
		// it must not mutate state.
		s.mu.Unlock()
		if err == nil {
			s.service.Disconnect()
		}
		return
	}
	if err != nil {
		s.connecting = false
		s.mu.Unlock()
		s.handleConnectFailure(err)
		return
	}
	s.connected = true
	s.connecting = false
	s.lastErr = nil
	s.mu.Unlock()

	s.retrier.Reset()
	s.notifyState()
}

func (s *Session) handleConnectFailure(err error) {
	slog.Warn("translator connect failed", "err", err)

	s.mu.Lock()
	s.lastErr = err
	terminal := errors.Is(err, ErrMissingAPIKey)
	if terminal {
		s.terminalErr = err
	}
	s.mu.Unlock()

	if !terminal {
		if rerr := s.retrier.Schedule(s.maybeConnect); rerr != nil {
			s.mu.Lock()
			s.terminalErr = fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
			s.mu.Unlock()
		}
	}
	s.notifyState()
}

// onDisconnect handles a failure or server close after a successful
// connect.
func (s *Session) onDisconnect(id uint64, err error) {
	s.mu.Lock()
	if s.attempt != id || s.closed {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.connecting = false
	s.mu.Unlock()

	s.handleConnectFailure(err)
}

// onAudio forwards a synthesized fragment to the peer. Receiving our
// own audio back is impossible by construction: fragments originate
// locally and are only ever received from the remote party.
func (s *Session) onAudio(id uint64, data string) {
	s.mu.Lock()
	if s.attempt != id || s.closed {
		s.mu.Unlock()
		return
	}
	s.translating = false
	if s.transTimer != nil {
		s.transTimer.Stop()
	}
	s.mu.Unlock()

	s.bus.Send(&signaling.Message{
		Type:       signaling.TypeAudioChunk,
		SenderRole: s.role,
		Data:       data,
	})
}

func (s *Session) onTranscript(id uint64, text string, isInput, isFinal bool) {
	s.mu.Lock()
	if s.attempt != id || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if isInput {
		// Crosstalk suppression: while we are (likely) hearing our own
		// translated voice, our mic transcript is an echo, not speech.
		if s.scheduler.Playing().Get() {
			return
		}
		s.bufferInput(text, isFinal)
		return
	}
	s.bufferOutput(text, isFinal)
}

func (s *Session) bufferInput(text string, isFinal bool) {
	s.mu.Lock()
	s.inputBuf.WriteString(text)
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	if isFinal {
		s.mu.Unlock()
		s.flushInput()
		return
	}
	s.flushTimer = s.clk.AfterFunc(inputFlushDelay, s.flushInput)
	s.mu.Unlock()
}

func (s *Session) flushInput() {
	s.mu.Lock()
	text := strings.TrimSpace(s.inputBuf.String())
	s.inputBuf.Reset()
	if text == "" {
		s.mu.Unlock()
		return
	}
	s.translating = true
	if s.transTimer != nil {
		s.transTimer.Stop()
	}
	s.transTimer = s.clk.AfterFunc(translatingTimeout, func() {
		s.mu.Lock()
		s.translating = false
		s.mu.Unlock()
		s.notifyState()
	})
	s.mu.Unlock()

	s.commit(text, false)
	s.notifyState()
}

func (s *Session) bufferOutput(text string, isFinal bool) {
	s.mu.Lock()
	s.outputBuf.WriteString(text)
	done := isFinal || endsSentence(text)
	var full string
	if done {
		full = strings.TrimSpace(s.outputBuf.String())
		s.outputBuf.Reset()
		s.translating = false
	}
	s.mu.Unlock()

	if done && full != "" {
		s.commit(full, true)
	}
}

// commit appends one transcript event locally and mirrors it to the
// peer so both parties see the same bilingual record.
func (s *Session) commit(text string, isTranslation bool) {
	s.log.Add(text, s.role, isTranslation)
	s.bus.Send(&signaling.Message{
		Type:          signaling.TypeTranscript,
		SenderRole:    s.role,
		Text:          text,
		IsTranslation: isTranslation,
	})
}

func endsSentence(text string) bool {
	t := strings.TrimRight(text, " ")
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?")
}

func (s *Session) notifyState() {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Connected reports whether the translation link is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connecting reports whether a connect attempt is in flight.
func (s *Session) Connecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting
}

// Translating reports whether committed input is awaiting synthesized
// audio.
func (s *Session) Translating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translating
}

// Target returns the discovered peer language, or nil.
func (s *Session) Target() *language.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Err returns the terminal error, if the session has given up.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalErr
}

// Close tears the session down: pending retry, flush and ping timers
// are cancelled before the service link is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.connected = false
	s.connecting = false
	s.target = nil
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	if s.transTimer != nil {
		s.transTimer.Stop()
	}
	if s.pingStop != nil {
		close(s.pingStop)
		s.pingStop = nil
	}
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.retrier.Cancel()
	s.watchdog.Disarm()
	for _, unsub := range unsubs {
		unsub()
	}
	s.service.Disconnect()
}
