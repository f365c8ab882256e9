// Package media models the local capture stream consumed by the
// negotiation engine and the translation session. Device enumeration
// and selection happen outside; this package only carries the result:
// pion local tracks for the peer connection and a PCM frame source for
// the translator.
package media

import (
	pion "github.com/pion/webrtc/v4"
)

// CaptureRate is the PCM sample rate the translation service expects
// on its input stream.
const CaptureRate = 16000

// Source produces raw capture audio as 16-bit little-endian mono PCM
// frames at CaptureRate.
type Source interface {
	// Frames returns the frame channel. It is closed when the source
	// is closed.
	Frames() <-chan []byte

	Close() error
}

// Stream is one party's local media: zero or more pion tracks to
// attach to the peer connection, plus the PCM source feeding the
// translator. Either part may be absent.
type Stream struct {
	tracks []pion.TrackLocal
	source Source
}

// NewStream builds a stream from its parts.
func NewStream(source Source, tracks ...pion.TrackLocal) *Stream {
	return &Stream{tracks: tracks, source: source}
}

// Tracks returns the local tracks in attachment order.
func (s *Stream) Tracks() []pion.TrackLocal {
	if s == nil {
		return nil
	}
	return s.tracks
}

// Source returns the PCM source, or nil if the stream has none.
func (s *Stream) Source() Source {
	if s == nil {
		return nil
	}
	return s.source
}

// Close releases the underlying capture device.
func (s *Stream) Close() error {
	if s == nil || s.source == nil {
		return nil
	}
	return s.source.Close()
}
