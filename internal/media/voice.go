package media

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/zaf/g711"
)

// voiceRate is the G.711 line rate; capture audio is decimated down to
// it before encoding.
const voiceRate = 8000

// NewVoiceTrack wraps a capture source in a PCMU local track for the
// peer connection, so the remote party hears the untranslated voice
// alongside the translated audio stream. The pump stops when the
// source is closed.
func NewVoiceTrack(src Source) (pion.TrackLocal, error) {
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypePCMU},
		"audio", "voice-"+uuid.NewString(),
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for frame := range src.Frames() {
			sample := pionmedia.Sample{
				Data:     g711.EncodeUlaw(decimate(frame)),
				Duration: frameDuration(len(frame)),
			}
			if err := track.WriteSample(sample); err != nil {
				slog.Debug("voice track write failed", "err", err)
				return
			}
		}
	}()

	return track, nil
}

func frameDuration(pcmBytes int) time.Duration {
	samples := pcmBytes / 2
	return time.Duration(samples) * time.Second / CaptureRate
}

// decimate halves the sample rate from CaptureRate to voiceRate by
// keeping every other sample. Telephone-band audio does not warrant a
// proper low-pass stage.
func decimate(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, 0, n)
	for i := 0; i+1 < n; i += 2 {
		out = append(out, pcm[i*2], pcm[i*2+1])
	}
	return out
}

// DecodeVoice converts a received G.711 µ-law payload to a PCM16 byte
// stream at factor times the line rate, upsampling by sample
// repetition. Good enough for telephone-band voice.
func DecodeVoice(payload []byte, factor int) []byte {
	lpcm := g711.DecodeUlaw(payload)
	if factor <= 1 {
		return lpcm
	}
	out := make([]byte, 0, len(lpcm)*factor)
	for i := 0; i+1 < len(lpcm); i += 2 {
		for j := 0; j < factor; j++ {
			out = append(out, lpcm[i], lpcm[i+1])
		}
	}
	return out
}
