package playback

import (
	"encoding/binary"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Device wraps the process-wide oto context. oto allows a single
// context per process; multiple sinks share it and their players are
// mixed by oto.
type Device struct {
	otoCtx *oto.Context
}

// NewDevice initializes the audio output device for 24 kHz mono.
func NewDevice() (*Device, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800, // ~100ms, low latency without glitching
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, err
	}
	<-ready
	return &Device{otoCtx: otoCtx}, nil
}

// NewSink creates an independent playback stream on the device.
func (d *Device) NewSink() *SpeakerSink {
	s := &SpeakerSink{
		otoCtx: d.otoCtx,
		buf:    make([]byte, 0, SampleRate*4),
		volume: 1.0,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SpeakerSink plays PCM through the output device. The player pulls
// from an internal buffer, so Write never blocks on the audio
// hardware. SetVolume scales the stream on the way out, which makes a
// sink usable as a Ducker for its own audio.
type SpeakerSink struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	volume  float64
	playing bool
	closed  bool
}

// Write enqueues PCM for playback, starting the player on first use.
func (s *SpeakerSink) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)

	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}

	s.cond.Signal()
}

// SetVolume scales subsequent output; 1.0 is unity. Implements Ducker.
func (s *SpeakerSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

// Read implements io.Reader for oto.Player. Called by oto to pull
// audio data for playback.
func (s *SpeakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Return silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]

	if s.volume != 1.0 {
		for i := 0; i+1 < n; i += 2 {
			v := float64(int16(binary.LittleEndian.Uint16(p[i:]))) * s.volume
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			binary.LittleEndian.PutUint16(p[i:], uint16(int16(v)))
		}
	}
	return n, nil
}

// Close stops playback and releases the player.
func (s *SpeakerSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.player != nil {
		s.player.Close()
	}
}
