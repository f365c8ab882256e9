package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// TranslationGain boosts translated audio over the ducked original.
	TranslationGain = 1.3

	// DuckedVolume is applied to the original remote audio while a
	// translation is playing; full volume is restored afterwards.
	DuckedVolume = 0.25

	// maxCursorLead treats a cursor this far ahead of the clock as a
	// scheduling glitch and resets it.
	maxCursorLead = 5 * time.Second

	// playGuard pads the playing-flag clear timer past the cursor so
	// back-to-back buffers read as one continuous interval.
	playGuard = 150 * time.Millisecond

	// clearMargin is how close to the cursor end the clock must be for
	// the clear timer to actually drop the flag.
	clearMargin = 200 * time.Millisecond
)

// Sink receives PCM for immediate playback. Writes are expected to be
// buffered by the sink, so scheduling order equals playback order.
type Sink interface {
	Write(pcm []byte)
}

// Ducker adjusts the volume of the original (untranslated) remote
// media.
type Ducker interface {
	SetVolume(v float64)
}

// Scheduler plays decoded translated-audio buffers back-to-back with
// no gaps or overlaps and publishes the "currently playing" signal
// used for ducking and crosstalk suppression.
//
// It keeps a monotonically advancing next-start-time cursor; each
// buffer is scheduled at the cursor, which then advances by the
// buffer's duration. A cursor behind the clock, or implausibly far
// ahead of it, is reset to now.
type Scheduler struct {
	clk    clock.Clock
	sink   Sink
	signal *Signal
	ducker Ducker

	mu        sync.Mutex
	cursor    time.Time
	playTimer *clock.Timer
}

// NewScheduler creates a scheduler writing to sink. ducker may be nil.
// Pass clock.New() outside of tests.
func NewScheduler(sink Sink, ducker Ducker, clk clock.Clock) *Scheduler {
	s := &Scheduler{clk: clk, sink: sink, signal: NewSignal(), ducker: ducker}
	s.signal.Subscribe(func(playing bool) {
		if s.ducker == nil {
			return
		}
		if playing {
			s.ducker.SetVolume(DuckedVolume)
		} else {
			s.ducker.SetVolume(1.0)
		}
	})
	return s
}

// Playing returns the shared "currently playing" signal. The scheduler
// is its only writer in normal operation; the translation session's
// watchdog may force-clear it.
func (s *Scheduler) Playing() *Signal {
	return s.signal
}

// Enqueue decodes one base64 audio chunk and schedules it at the
// cursor. Decode failures are logged and dropped; a bad chunk is not
// worth disturbing the stream for.
func (s *Scheduler) Enqueue(data string) {
	pcm, err := decodeChunk(data)
	if err != nil {
		slog.Warn("playback chunk dropped", "err", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	applyGain(pcm, TranslationGain)

	now := s.clk.Now()

	s.mu.Lock()
	if s.cursor.Before(now) || s.cursor.After(now.Add(maxCursorLead)) {
		s.cursor = now
	}
	startAt := s.cursor
	s.cursor = s.cursor.Add(Duration(len(pcm)))
	end := s.cursor

	// Re-arm the clear timer on every buffer so consecutive fragments
	// hold the flag up as one interval.
	if s.playTimer != nil {
		s.playTimer.Stop()
	}
	s.playTimer = s.clk.AfterFunc(end.Sub(now)+playGuard, s.maybeClear)
	s.mu.Unlock()

	s.signal.Set(true)

	if delay := startAt.Sub(now); delay > 0 {
		s.clk.AfterFunc(delay, func() { s.sink.Write(pcm) })
	} else {
		s.sink.Write(pcm)
	}
}

// maybeClear drops the playing flag once the cursor's window has
// elapsed. A newer buffer may have advanced the cursor since this
// timer was armed; in that case its own timer is pending and this one
// leaves the flag alone.
func (s *Scheduler) maybeClear() {
	s.mu.Lock()
	end := s.cursor
	s.mu.Unlock()

	if !s.clk.Now().Before(end.Add(-clearMargin)) {
		s.signal.Set(false)
	}
}

// NextStart exposes the cursor for inspection.
func (s *Scheduler) NextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
