package playback

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Translated audio arrives as 16-bit little-endian mono PCM at 24 kHz,
// the synthesis format of the translation service.
const (
	SampleRate     = 24000
	channels       = 1
	bytesPerSample = 2
)

// Duration returns the playback time of a PCM byte slice.
func Duration(n int) time.Duration {
	samples := n / (channels * bytesPerSample)
	return time.Duration(samples) * time.Second / SampleRate
}

// decodeChunk converts a base64 wire payload into raw PCM bytes.
func decodeChunk(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio chunk: %w", err)
	}
	if len(pcm)%bytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return pcm, nil
}

// applyGain scales samples in place, clamping at the int16 range.
func applyGain(pcm []byte, gain float64) {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := float64(s) * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out := int16(v)
		pcm[i] = byte(uint16(out))
		pcm[i+1] = byte(uint16(out) >> 8)
	}
}
