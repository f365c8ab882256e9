// Package rtc owns the peer connection and keeps its media and
// signaling state consistent with the remote peer under the perfect
// negotiation protocol.
package rtc

import (
	"errors"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/olivermeyer777/post-translatorv1/internal/config"
	"github.com/olivermeyer777/post-translatorv1/internal/media"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

// ErrClosed is returned when an operation is attempted on a torn-down
// engine.
var ErrClosed = errors.New("negotiation engine closed")

// Engine maintains exactly one peer connection per call. Discovery
// messages on the bus trigger negotiation; the engine never initiates
// purely on local timers. Signal-level failures are logged and
// ignored, never escalated: glare, stale answers and ICE hiccups are
// expected transients.
type Engine struct {
	cfg  *config.Config
	bus  *signaling.Bus
	role signaling.Role

	// onTrack delivers the remote media stream to the caller.
	onTrack func(*pion.TrackRemote, *pion.RTPReceiver)

	mu      sync.Mutex
	pc      *pion.PeerConnection
	machine *Machine
	stream  *media.Stream
	closed  bool
	unsub   func()
}

// NewEngine creates an engine for one call party. The agent is the
// polite peer; the customer initiates.
func NewEngine(cfg *config.Config, bus *signaling.Bus, role signaling.Role, onTrack func(*pion.TrackRemote, *pion.RTPReceiver)) *Engine {
	return &Engine{
		cfg:     cfg,
		bus:     bus,
		role:    role,
		onTrack: onTrack,
		machine: NewMachine(role == signaling.RoleAgent),
	}
}

// Start subscribes the engine to the signaling bus.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.unsub == nil && !e.closed {
		e.unsub = e.bus.Subscribe(e.handleMessage)
	}
	e.mu.Unlock()
}

// AnnounceReady publishes a readiness announcement so the impolite
// peer knows it may initiate.
func (e *Engine) AnnounceReady() {
	e.bus.Send(&signaling.Message{Type: signaling.TypeWebRTCReady, Role: e.role})
}

// SetLocalStream swaps the local media in. Tracks are replaced in
// place when only the concrete track changed; a previously absent kind
// gets a new sender, which re-triggers negotiation on an established
// connection.
func (e *Engine) SetLocalStream(s *media.Stream) {
	e.mu.Lock()
	e.stream = s
	pc := e.pc
	e.mu.Unlock()

	if pc != nil {
		e.attachLocalTracks(pc)
	}
}

// ensureConnection lazily creates the peer connection with placeholder
// bidirectional transceivers and all callbacks registered. Idempotent.
func (e *Engine) ensureConnection() (*pion.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.pc != nil {
		return e.pc, nil
	}

	pc, err := NewPeerConnection(e.cfg)
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		e.sendSignal(&signaling.Signal{Type: signaling.SignalCandidate, Candidate: &init})
	})

	pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		slog.Info("remote track", "kind", track.Kind().String())
		if e.onTrack != nil {
			e.onTrack(track, receiver)
		}
	})

	pc.OnNegotiationNeeded(func() {
		e.negotiate(pc)
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		// ICE failures are expected transients, not escalated.
		slog.Info("ice state", "state", state.String())
	})

	// Transceivers ensure we are ready to receive even before local
	// media is attached. Added after the callbacks so the queued
	// negotiation check always finds its handler.
	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			pc.Close()
			return nil, err
		}
	}

	slog.Info("peer connection created", "polite", e.machine.Polite())
	e.pc = pc

	if e.stream != nil {
		stream := e.stream
		// Attach outside the lock; pion callbacks may re-enter.
		go func() { e.attachTracks(pc, stream) }()
	}
	return pc, nil
}

// negotiate runs one locally triggered offer. The making-offer flag is
// cleared in a final step regardless of outcome.
func (e *Engine) negotiate(pc *pion.PeerConnection) {
	e.mu.Lock()
	e.machine.BeginOffer()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.machine.EndOffer()
		e.mu.Unlock()
	}()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		slog.Warn("create offer failed", "err", err)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		slog.Warn("set local offer failed", "err", err)
		return
	}

	e.mu.Lock()
	e.machine.OfferSent()
	e.mu.Unlock()

	e.sendSignal(&signaling.Signal{Type: signaling.SignalOffer, SDP: pc.LocalDescription()})
}

func (e *Engine) handleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeJoinRoom:
		if msg.Role == e.role {
			return
		}
		if _, err := e.ensureConnection(); err != nil {
			slog.Warn("peer connection unavailable", "err", err)
			return
		}
		// Announce readiness so the peer can initiate if it is the
		// impolite role. This is the discovery trigger that starts
		// negotiation.
		e.AnnounceReady()

	case signaling.TypeWebRTCReady:
		if msg.Role == e.role {
			return
		}
		pc, err := e.ensureConnection()
		if err != nil {
			slog.Warn("peer connection unavailable", "err", err)
			return
		}
		// The impolite peer initiates once it knows the peer is there;
		// attaching tracks fires negotiation-needed.
		if !e.machine.Polite() {
			e.attachLocalTracks(pc)
		}

	case signaling.TypeWebRTCSignal:
		if msg.SenderRole == e.role || msg.Signal == nil {
			return
		}
		e.handleSignal(msg.Signal)
	}
}

func (e *Engine) handleSignal(sig *signaling.Signal) {
	pc, err := e.ensureConnection()
	if err != nil {
		slog.Warn("peer connection unavailable", "err", err)
		return
	}

	switch sig.Type {
	case signaling.SignalOffer:
		if sig.SDP == nil {
			return
		}
		e.mu.Lock()
		act := e.machine.HandleOffer()
		e.mu.Unlock()
		if act == ActionIgnore {
			slog.Debug("glare detected, ignoring offer (impolite peer)")
			return
		}

		// Polite glare: abandon our own in-flight offer before
		// applying theirs.
		if pc.SignalingState() == pion.SignalingStateHaveLocalOffer {
			if err := pc.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeRollback}); err != nil {
				slog.Warn("offer rollback failed", "err", err)
				return
			}
		}

		if err := pc.SetRemoteDescription(*sig.SDP); err != nil {
			slog.Warn("set remote offer failed", "err", err)
			return
		}

		// Answering means we should be sending our media too.
		e.attachLocalTracks(pc)

		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			slog.Warn("create answer failed", "err", err)
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			slog.Warn("set local answer failed", "err", err)
			return
		}

		e.mu.Lock()
		e.machine.AnswerSent()
		e.mu.Unlock()

		e.sendSignal(&signaling.Signal{Type: signaling.SignalAnswer, SDP: pc.LocalDescription()})

	case signaling.SignalAnswer:
		if sig.SDP == nil {
			return
		}
		e.mu.Lock()
		act := e.machine.HandleAnswer()
		e.mu.Unlock()
		if act == ActionDrop {
			// Duplicate or late answer while already stable.
			return
		}
		if err := pc.SetRemoteDescription(*sig.SDP); err != nil {
			slog.Warn("set remote answer failed", "err", err)
		}

	case signaling.SignalCandidate:
		if sig.Candidate == nil {
			return
		}
		if err := pc.AddICECandidate(*sig.Candidate); err != nil {
			e.mu.Lock()
			swallow := e.machine.SwallowCandidateError()
			e.mu.Unlock()
			if !swallow {
				slog.Warn("add ice candidate failed", "err", err)
			}
		}
	}
}

// attachLocalTracks reconciles the peer connection's senders with the
// current local stream.
func (e *Engine) attachLocalTracks(pc *pion.PeerConnection) {
	e.mu.Lock()
	stream := e.stream
	e.mu.Unlock()
	e.attachTracks(pc, stream)
}

func (e *Engine) attachTracks(pc *pion.PeerConnection, stream *media.Stream) {
	if stream == nil {
		return
	}

	for _, track := range stream.Tracks() {
		var sender *pion.RTPSender
		for _, tr := range pc.GetTransceivers() {
			if tr.Kind() == track.Kind() && tr.Sender() != nil {
				sender = tr.Sender()
				break
			}
		}

		if sender == nil {
			if _, err := pc.AddTrack(track); err != nil {
				slog.Warn("add track failed", "kind", track.Kind().String(), "err", err)
			}
			continue
		}

		current := sender.Track()
		if current == nil || current.ID() != track.ID() {
			if err := sender.ReplaceTrack(track); err != nil {
				slog.Warn("replace track failed", "kind", track.Kind().String(), "err", err)
			}
		}
	}
}

func (e *Engine) sendSignal(sig *signaling.Signal) {
	e.bus.Send(&signaling.Message{
		Type:       signaling.TypeWebRTCSignal,
		SenderRole: e.role,
		Signal:     sig,
	})
}

// Close tears down the peer connection and unsubscribes from the bus.
// Ending a call is the only teardown path; individual signal errors
// never force one.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsub
	pc := e.pc
	e.pc = nil
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			slog.Debug("peer connection close", "err", err)
		}
	}
}
