// Package call wires one party's full call session: signaling bus,
// negotiation engine, translation session and playback, with terminal
// status output. It owns component lifecycle; the pieces themselves
// never tear each other down.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"

	"github.com/olivermeyer777/post-translatorv1/internal/config"
	"github.com/olivermeyer777/post-translatorv1/internal/language"
	"github.com/olivermeyer777/post-translatorv1/internal/media"
	"github.com/olivermeyer777/post-translatorv1/internal/playback"
	"github.com/olivermeyer777/post-translatorv1/internal/rtc"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
	"github.com/olivermeyer777/post-translatorv1/internal/translate"
	"github.com/olivermeyer777/post-translatorv1/internal/ui"
)

// Options select the local party of a call.
type Options struct {
	Room     string
	Role     signaling.Role
	Language language.Language
	Voice    string
}

// Call is one joined room: everything from the microphone to the
// speaker for a single party.
type Call struct {
	cfg  *config.Config
	opts Options

	bus        *signaling.Bus
	engine     *rtc.Engine
	session    *translate.Session
	scheduler  *playback.Scheduler
	device     *playback.Device
	sink       *playback.SpeakerSink
	voiceSink  *playback.SpeakerSink
	transcript *translate.Log
	stream     *media.Stream

	done chan struct{}
	once sync.Once
	err  error
}

// New builds a call for the given room and role. The audio output
// device is opened here; the microphone is opened in Run.
func New(cfg *config.Config, opts Options) (*Call, error) {
	if opts.Voice == "" {
		opts.Voice = translate.DefaultVoice(opts.Role)
	}
	clk := clock.New()

	device, err := playback.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}

	c := &Call{
		cfg:    cfg,
		opts:   opts,
		device: device,
		done:   make(chan struct{}),
	}

	// Translated audio and the remote raw voice are separate streams on
	// the shared device; the raw voice sink doubles as the ducking
	// target while a translation plays.
	c.sink = device.NewSink()
	c.voiceSink = device.NewSink()
	c.scheduler = playback.NewScheduler(c.sink, c.voiceSink, clk)

	c.transcript = translate.NewLog(clk)
	c.transcript.OnChange(printBubble)

	var transport signaling.Transport
	if cfg.RelayURL != "" {
		transport = signaling.NewWSTransport(cfg.RelayURL)
	} else {
		transport = signaling.NewMQTTTransport(cfg.Broker, uuid.NewString()[:8])
	}
	c.bus = signaling.NewBus(transport, clk)

	translator := translate.NewGeminiService(cfg.APIKey)
	c.session = translate.NewSession(c.bus, opts.Role, opts.Language, opts.Voice,
		translator, c.scheduler, c.transcript, clk)

	c.engine = rtc.NewEngine(cfg, c.bus, opts.Role, c.handleRemoteTrack)
	return c, nil
}

// Run joins the room and blocks until the context is cancelled or the
// call fails terminally. A missing microphone is terminal; everything
// downstream of it is supervised and retried.
func (c *Call) Run(ctx context.Context) error {
	mic, err := media.NewMicSource()
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	// One branch feeds the translator, the other the raw voice track.
	branches := media.Tee(mic, 2)
	var tracks []pion.TrackLocal
	if track, err := media.NewVoiceTrack(branches[1]); err != nil {
		slog.Warn("voice track unavailable", "err", err)
	} else {
		tracks = append(tracks, track)
	}
	c.stream = media.NewStream(branches[0], tracks...)

	c.bus.OnStatus(func(st signaling.Status) {
		switch st {
		case signaling.StatusConnected:
			ui.PrintSuccess("signaling connected")
		case signaling.StatusConnecting:
			ui.PrintInfo("signaling connecting...")
		default:
			ui.PrintWarning("signaling offline")
		}
	})
	c.session.OnState(c.reportSessionState)

	ui.PrintInfof("joining room %s as %s (%s, voice %s)",
		c.opts.Room, c.opts.Role.Label(), c.opts.Language.Name, c.opts.Voice)

	c.engine.Start()
	c.session.Start()
	c.engine.SetLocalStream(c.stream)
	c.session.SetSource(c.stream.Source())
	c.bus.Join(c.cfg.RoomTopic(c.opts.Room))

	select {
	case <-ctx.Done():
	case <-c.done:
	}
	c.Close()
	return c.err
}

// reportSessionState surfaces translator state transitions; a terminal
// session error ends the call.
func (c *Call) reportSessionState() {
	if err := c.session.Err(); err != nil {
		c.fail(err)
		return
	}
	if c.session.Connected() {
		ui.PrintSuccess("translator ready")
	} else if c.session.Connecting() {
		if target := c.session.Target(); target != nil {
			ui.PrintInfof("connecting translator (%s ↔ %s)...",
				c.opts.Language.Name, target.Name)
		}
	}
}

func (c *Call) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// handleRemoteTrack plays the peer's raw voice. Only the G.711 track
// this application publishes itself is rendered; other codecs are
// negotiated for interoperability but not decoded here.
func (c *Call) handleRemoteTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	if track.Codec().MimeType != pion.MimeTypePCMU {
		slog.Info("remote track not rendered", "mime", track.Codec().MimeType)
		return
	}
	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				slog.Debug("remote voice ended", "err", err)
				return
			}
			if len(pkt.Payload) == 0 {
				continue
			}
			c.voiceSink.Write(media.DecodeVoice(pkt.Payload, playback.SampleRate/8000))
		}
	}()
}

// SetMuted toggles the outbound mute gate.
func (c *Call) SetMuted(muted bool) {
	c.session.SetMuted(muted)
}

// Transcript exposes the call's transcript log.
func (c *Call) Transcript() *translate.Log {
	return c.transcript
}

// Close tears the call down in dependency order. Idempotent.
func (c *Call) Close() {
	c.session.Close()
	c.engine.Close()
	c.bus.Close()
	if c.stream != nil {
		c.stream.Close()
	}
	c.sink.Close()
	c.voiceSink.Close()
}

func printBubble(item translate.Item) {
	text := item.Original
	if item.Translation != "" {
		text = item.Translation
	}
	ui.PrintTranscript(item.Sender, text, item.Translation != "")
}
