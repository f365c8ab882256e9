package translate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/olivermeyer777/post-translatorv1/internal/language"
	"github.com/olivermeyer777/post-translatorv1/internal/playback"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

// loopTransport records published payloads and lets tests inject
// incoming ones.
type loopTransport struct {
	mu        sync.Mutex
	published []signaling.Message
	onMessage func([]byte)
}

func (l *loopTransport) Connect(topic string, onMessage func([]byte), onDrop func(error)) error {
	l.mu.Lock()
	l.onMessage = onMessage
	l.mu.Unlock()
	return nil
}

func (l *loopTransport) Publish(payload []byte) error {
	var msg signaling.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	l.mu.Lock()
	l.published = append(l.published, msg)
	l.mu.Unlock()
	return nil
}

func (l *loopTransport) Close() error { return nil }

func (l *loopTransport) inject(t *testing.T, msg *signaling.Message) {
	t.Helper()
	if msg.SenderID == "" {
		msg.SenderID = "peer-instance"
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	l.mu.Lock()
	fn := l.onMessage
	l.mu.Unlock()
	if fn == nil {
		t.Fatal("transport not connected")
	}
	fn(payload)
}

func (l *loopTransport) sent(typ string) []signaling.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []signaling.Message
	for _, msg := range l.published {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

// fakeService scripts Connect outcomes and exposes the callbacks of
// the most recent successful connect.
type fakeService struct {
	mu        sync.Mutex
	errs      []error // consumed per connect; nil entry = success
	connects  int
	cb        Callbacks
	paused    []bool
	muted     []bool
	attempted chan struct{}
}

func newFakeService(errs ...error) *fakeService {
	return &fakeService{errs: errs, attempted: make(chan struct{}, 64)}
}

func (f *fakeService) Connect(ctx context.Context, opts ConnectOptions, cb Callbacks) error {
	f.mu.Lock()
	var err error
	if f.connects < len(f.errs) {
		err = f.errs[f.connects]
	}
	f.connects++
	if err == nil {
		f.cb = cb
	}
	f.mu.Unlock()
	f.attempted <- struct{}{}
	return err
}

func (f *fakeService) SetMicPaused(paused bool) {
	f.mu.Lock()
	f.paused = append(f.paused, paused)
	f.mu.Unlock()
}

func (f *fakeService) SetMuted(muted bool) {
	f.mu.Lock()
	f.muted = append(f.muted, muted)
	f.mu.Unlock()
}

func (f *fakeService) Disconnect() {}

func (f *fakeService) callbacks() Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeService) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeService) waitAttempt(t *testing.T) {
	t.Helper()
	select {
	case <-f.attempted:
	case <-time.After(time.Second):
		t.Fatal("no connect attempt")
	}
	// Let the session finish handling the outcome.
	time.Sleep(10 * time.Millisecond)
}

type nullSource struct{ frames chan []byte }

func newNullSource() *nullSource { return &nullSource{frames: make(chan []byte)} }

func (n *nullSource) Frames() <-chan []byte { return n.frames }
func (n *nullSource) Close() error          { return nil }

type fixture struct {
	clk       *clock.Mock
	transport *loopTransport
	bus       *signaling.Bus
	service   *fakeService
	scheduler *playback.Scheduler
	log       *Log
	session   *Session
}

func newFixture(t *testing.T, service *fakeService) *fixture {
	t.Helper()
	clk := clock.NewMock()
	transport := &loopTransport{}
	bus := signaling.NewBus(transport, clk)
	scheduler := playback.NewScheduler(&nopSink{}, nil, clk)
	log := NewLog(clk)

	session := NewSession(bus, signaling.RoleAgent, language.DefaultAgent(), "",
		service, scheduler, log, clk)

	bus.Join("room")
	waitFor(t, "bus connected", func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.onMessage != nil
	})

	session.Start()
	t.Cleanup(session.Close)
	t.Cleanup(bus.Close)
	return &fixture{clk: clk, transport: transport, bus: bus,
		service: service, scheduler: scheduler, log: log, session: session}
}

// discover simulates the peer joining and provides a capture source,
// which together trigger the first connect attempt.
func (fx *fixture) discover(t *testing.T) {
	t.Helper()
	german := language.DefaultCustomer()
	fx.transport.inject(t, &signaling.Message{
		Type:     signaling.TypeJoinRoom,
		Role:     signaling.RoleCustomer,
		Language: &german,
	})
	fx.session.SetSource(newNullSource())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type nopSink struct{}

func (nopSink) Write([]byte) {}

func TestPingAnsweredWithJoin(t *testing.T) {
	fx := newFixture(t, newFakeService())

	german := language.DefaultCustomer()
	fx.transport.inject(t, &signaling.Message{
		Type:     signaling.TypePing,
		Role:     signaling.RoleCustomer,
		Language: &german,
	})

	joins := fx.transport.sent(signaling.TypeJoinRoom)
	if len(joins) != 1 {
		t.Fatalf("sent %d JOIN_ROOM, want 1", len(joins))
	}
	if joins[0].Role != signaling.RoleAgent || joins[0].Language == nil {
		t.Fatalf("bad JOIN_ROOM: %+v", joins[0])
	}
	if target := fx.session.Target(); target == nil || target.Code != german.Code {
		t.Fatalf("target = %v, want %s", target, german.Code)
	}
}

func TestPingsStopOnceTargetConfirmed(t *testing.T) {
	fx := newFixture(t, newFakeService())

	fx.clk.Add(pingInterval)
	fx.clk.Add(pingInterval)
	waitFor(t, "discovery pings", func() bool {
		return len(fx.transport.sent(signaling.TypePing)) >= 3
	})

	fx.discover(t)
	fx.service.waitAttempt(t)
	before := len(fx.transport.sent(signaling.TypePing))

	fx.clk.Add(pingInterval)
	fx.clk.Add(pingInterval)
	time.Sleep(20 * time.Millisecond)

	if after := len(fx.transport.sent(signaling.TypePing)); after != before {
		t.Fatalf("pings continued after discovery: %d -> %d", before, after)
	}
}

func TestConnectsOnceTargetAndSourcePresent(t *testing.T) {
	fx := newFixture(t, newFakeService())

	fx.discover(t)
	fx.service.waitAttempt(t)

	waitFor(t, "connected", fx.session.Connected)
}

func TestConnectBackoffDoubles(t *testing.T) {
	service := newFakeService(
		errors.New("down"), errors.New("down"), errors.New("down"))
	fx := newFixture(t, service)

	fx.discover(t)
	fx.service.waitAttempt(t) // attempt 1 fails, retry in 1s

	fx.clk.Add(999 * time.Millisecond)
	if service.connectCount() != 1 {
		t.Fatalf("retried before 1s backoff, %d attempts", service.connectCount())
	}
	fx.clk.Add(time.Millisecond)
	fx.service.waitAttempt(t) // attempt 2 fails, retry in 2s

	fx.clk.Add(1999 * time.Millisecond)
	if service.connectCount() != 2 {
		t.Fatalf("retried before 2s backoff, %d attempts", service.connectCount())
	}
	fx.clk.Add(time.Millisecond)
	fx.service.waitAttempt(t) // attempt 3 fails, attempt 4 succeeds after 4s

	fx.clk.Add(4 * time.Second)
	fx.service.waitAttempt(t)

	waitFor(t, "connected", fx.session.Connected)
	if fx.session.Err() != nil {
		t.Fatalf("unexpected terminal error: %v", fx.session.Err())
	}
}

func TestTerminalAfterRetryBudget(t *testing.T) {
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = errors.New("down")
	}
	fx := newFixture(t, newFakeService(errs...))

	fx.discover(t)
	fx.service.waitAttempt(t)

	for i := 0; i < RetryPolicy.MaxAttempts; i++ {
		fx.clk.Add(RetryPolicy.Cap)
		fx.service.waitAttempt(t)
	}

	waitFor(t, "terminal error", func() bool { return fx.session.Err() != nil })
	if !errors.Is(fx.session.Err(), ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", fx.session.Err())
	}

	// No further attempts after giving up.
	before := fx.service.connectCount()
	fx.clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if fx.service.connectCount() != before {
		t.Fatal("session kept retrying after terminal error")
	}
}

func TestMissingAPIKeyIsTerminal(t *testing.T) {
	fx := newFixture(t, newFakeService(ErrMissingAPIKey))

	fx.discover(t)
	fx.service.waitAttempt(t)

	waitFor(t, "terminal error", func() bool { return fx.session.Err() != nil })
	if !errors.Is(fx.session.Err(), ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", fx.session.Err())
	}
	if fx.service.connectCount() != 1 {
		t.Fatalf("%d attempts for a config error, want 1", fx.service.connectCount())
	}
}

func TestSynthesizedAudioForwardedToPeer(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.service.callbacks().OnAudio("UklGRg==")

	chunks := fx.transport.sent(signaling.TypeAudioChunk)
	if len(chunks) != 1 {
		t.Fatalf("sent %d AUDIO_CHUNK, want 1", len(chunks))
	}
	if chunks[0].Data != "UklGRg==" || chunks[0].SenderRole != signaling.RoleAgent {
		t.Fatalf("bad AUDIO_CHUNK: %+v", chunks[0])
	}
}

func TestInputTranscriptFlushedAfterQuietGap(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	cb := fx.service.callbacks()
	cb.OnTranscript("Hello ", true, false)
	cb.OnTranscript("there", true, false)

	if got := fx.transport.sent(signaling.TypeTranscript); len(got) != 0 {
		t.Fatalf("committed before flush delay: %v", got)
	}

	fx.clk.Add(inputFlushDelay)
	waitFor(t, "input flush", func() bool {
		return len(fx.transport.sent(signaling.TypeTranscript)) == 1
	})

	sent := fx.transport.sent(signaling.TypeTranscript)[0]
	if sent.Text != "Hello there" || sent.IsTranslation {
		t.Fatalf("bad TRANSCRIPT: %+v", sent)
	}
}

func TestInputTranscriptFlushedOnTurnBoundary(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.service.callbacks().OnTranscript("Hello there", true, true)

	sent := fx.transport.sent(signaling.TypeTranscript)
	if len(sent) != 1 || sent[0].Text != "Hello there" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestInputDroppedWhilePlaying(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.scheduler.Playing().Set(true)
	fx.service.callbacks().OnTranscript("echo of my own voice", true, true)

	if got := fx.transport.sent(signaling.TypeTranscript); len(got) != 0 {
		t.Fatalf("echo transcript committed: %v", got)
	}
	if items := fx.log.Items(); len(items) != 0 {
		t.Fatalf("echo transcript logged: %v", items)
	}

	fx.scheduler.Playing().Set(false)
	fx.service.callbacks().OnTranscript("real speech", true, true)
	if got := fx.transport.sent(signaling.TypeTranscript); len(got) != 1 {
		t.Fatalf("sent %d transcripts, want 1", len(got))
	}
}

func TestOutputCommitsOnSentenceEnd(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	cb := fx.service.callbacks()
	cb.OnTranscript("Guten ", false, false)
	if got := fx.transport.sent(signaling.TypeTranscript); len(got) != 0 {
		t.Fatalf("committed mid-sentence: %v", got)
	}

	cb.OnTranscript("Tag.", false, false)
	sent := fx.transport.sent(signaling.TypeTranscript)
	if len(sent) != 1 {
		t.Fatalf("sent %d transcripts, want 1", len(sent))
	}
	if sent[0].Text != "Guten Tag." || !sent[0].IsTranslation {
		t.Fatalf("bad TRANSCRIPT: %+v", sent[0])
	}
}

func TestMicPausedWhilePlaying(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.scheduler.Playing().Set(true)
	fx.scheduler.Playing().Set(false)

	fx.service.mu.Lock()
	paused := append([]bool(nil), fx.service.paused...)
	fx.service.mu.Unlock()
	if len(paused) != 2 || paused[0] != true || paused[1] != false {
		t.Fatalf("pause calls = %v, want [true false]", paused)
	}
}

func TestWatchdogForceReleasesMic(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.scheduler.Playing().Set(true)
	fx.clk.Add(playingCeiling)

	waitFor(t, "forced release", func() bool { return !fx.scheduler.Playing().Get() })
}

func TestPeerAudioChunkScheduled(t *testing.T) {
	fx := newFixture(t, newFakeService())
	fx.discover(t)
	fx.service.waitAttempt(t)

	fx.transport.inject(t, &signaling.Message{
		Type:       signaling.TypeAudioChunk,
		SenderRole: signaling.RoleCustomer,
		Data:       chunkBase64(t, 2400),
	})

	if !fx.scheduler.Playing().Get() {
		t.Fatal("peer audio did not raise the playing flag")
	}
}

func TestPeerTranscriptLogged(t *testing.T) {
	fx := newFixture(t, newFakeService())

	fx.transport.inject(t, &signaling.Message{
		Type:       signaling.TypeTranscript,
		SenderRole: signaling.RoleCustomer,
		Text:       "Guten Tag",
	})

	items := fx.log.Items()
	if len(items) != 1 || items[0].Original != "Guten Tag" {
		t.Fatalf("items = %v", items)
	}
	if items[0].Sender != signaling.RoleCustomer.Label() {
		t.Fatalf("sender = %q", items[0].Sender)
	}
}

func chunkBase64(t *testing.T, samples int) string {
	t.Helper()
	pcm := make([]byte, samples*2)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}
