package media

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/zaf/g711"
)

func TestVoicePathRoundTrip(t *testing.T) {
	// A 16 kHz frame through the full outbound/inbound path: decimate to
	// the line rate, µ-law encode, then decode back to 16 kHz.
	samples := []int16{0, 0, 100, 100, -100, -100, 8000, 8000, -8000, -8000, 30000, 30000}
	frame := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
	}

	decoded := DecodeVoice(g711.EncodeUlaw(decimate(frame)), 2)
	if len(decoded) != len(frame) {
		t.Fatalf("got %d bytes, want %d", len(decoded), len(frame))
	}

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(decoded[i*2:]))

		// µ-law is lossy; tolerance scales with magnitude.
		tolerance := int32(want)
		if tolerance < 0 {
			tolerance = -tolerance
		}
		tolerance = tolerance/8 + 64

		diff := int32(got) - int32(want)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			t.Fatalf("sample %d: %d decoded as %d (diff %d > %d)", i, want, got, diff, tolerance)
		}
		if want != 0 && (want > 0) != (got > 0) {
			t.Fatalf("sample %d: %d decoded as %d, sign lost", i, want, got)
		}
	}
}

func TestDecimateHalvesRate(t *testing.T) {
	pcm := make([]byte, 8)
	for i, s := range []int16{10, 20, 30, 40} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	out := decimate(pcm)
	if len(out) != 4 {
		t.Fatalf("got %d bytes, want 4", len(out))
	}
	kept := []int16{
		int16(binary.LittleEndian.Uint16(out[0:])),
		int16(binary.LittleEndian.Uint16(out[2:])),
	}
	if kept[0] != 10 || kept[1] != 30 {
		t.Fatalf("kept = %v, want [10 30]", kept)
	}
}

func TestDecodeVoiceUpsamples(t *testing.T) {
	payload := g711.EncodeUlaw([]byte{0x10, 0x27, 0xf0, 0xd8}) // samples 10000, -10000

	out := DecodeVoice(payload, 3)
	if len(out) != 12 {
		t.Fatalf("got %d bytes, want 12", len(out))
	}
	want := []bool{true, true, true, false, false, false} // positive?
	for i, positive := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if (got > 0) != positive {
			t.Fatalf("sample %d = %d, wrong sign", i, got)
		}
		if got == 0 {
			t.Fatalf("sample %d decoded to silence", i)
		}
	}
}

func TestFrameDuration(t *testing.T) {
	// 3200 bytes = 1600 samples at 16 kHz = 100ms.
	if d := frameDuration(3200); d != 100*time.Millisecond {
		t.Fatalf("got %v, want 100ms", d)
	}
}

func TestTeeFansOutFrames(t *testing.T) {
	src := &chanSource{frames: make(chan []byte, 4)}
	branches := Tee(src, 2)

	src.frames <- []byte{1, 2}
	src.frames <- []byte{3, 4}
	close(src.frames)

	for i, b := range branches {
		got := collect(t, b)
		if len(got) != 2 {
			t.Fatalf("branch %d received %d frames, want 2", i, len(got))
		}
	}
}

type chanSource struct{ frames chan []byte }

func (c *chanSource) Frames() <-chan []byte { return c.frames }
func (c *chanSource) Close() error          { return nil }

func collect(t *testing.T, src Source) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(time.Second)
	for {
		select {
		case frame, ok := <-src.Frames():
			if !ok {
				return out
			}
			out = append(out, frame)
		case <-timeout:
			t.Fatal("timed out draining source")
		}
	}
}
