package rtc

// State mirrors the signaling state of the peer connection as far as
// the offer/answer exchange is concerned.
type State int

const (
	StateStable State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
)

func (s State) String() string {
	switch s {
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "stable"
	}
}

// Action is the machine's verdict on an incoming signal.
type Action int

const (
	// ActionAccept: apply the remote offer and answer it.
	ActionAccept Action = iota

	// ActionIgnore: discard the offer; the impolite peer never yields
	// during glare.
	ActionIgnore

	// ActionApply: apply the remote answer.
	ActionApply

	// ActionDrop: stale or duplicate answer, no-op.
	ActionDrop
)

// Machine is the perfect-negotiation tie-break logic, separated from
// the peer connection so the glare rule is auditable and testable.
// Glare is resolved deterministically by politeness, never by timing:
// exactly one of the two peers is polite (the agent), and only the
// polite peer abandons its own offer when offers cross.
type Machine struct {
	polite      bool
	state       State
	makingOffer bool
	ignoreOffer bool
}

// NewMachine creates a machine. polite peers yield during glare.
func NewMachine(polite bool) *Machine {
	return &Machine{polite: polite}
}

// Polite reports which side of the tie-break this machine is on.
func (m *Machine) Polite() bool { return m.polite }

// State returns the current offer/answer state.
func (m *Machine) State() State { return m.state }

// MakingOffer reports whether a local offer is in flight.
func (m *Machine) MakingOffer() bool { return m.makingOffer }

// BeginOffer marks the start of a locally triggered negotiation. It
// must be paired with EndOffer regardless of success.
func (m *Machine) BeginOffer() { m.makingOffer = true }

// OfferSent records that the local offer became the local description.
func (m *Machine) OfferSent() { m.state = StateHaveLocalOffer }

// EndOffer clears the in-flight flag. Always runs as a final step.
func (m *Machine) EndOffer() { m.makingOffer = false }

// HandleOffer decides what to do with a remote offer. A collision
// exists when a local offer is in flight or the state is not stable;
// the impolite peer ignores the colliding offer, the polite peer
// abandons its own and accepts.
func (m *Machine) HandleOffer() Action {
	collision := m.makingOffer || m.state != StateStable
	m.ignoreOffer = !m.polite && collision
	if m.ignoreOffer {
		return ActionIgnore
	}
	m.state = StateHaveRemoteOffer
	return ActionAccept
}

// AnswerSent records that the local answer went out, completing the
// remote peer's offer.
func (m *Machine) AnswerSent() {
	m.state = StateStable
}

// HandleAnswer decides what to do with a remote answer. Answers
// arriving while already stable are duplicates or leftovers of an
// ignored exchange and are dropped.
func (m *Machine) HandleAnswer() Action {
	if m.state != StateHaveLocalOffer {
		return ActionDrop
	}
	m.state = StateStable
	m.ignoreOffer = false
	return ActionApply
}

// SwallowCandidateError reports whether an ICE candidate add failure
// is an expected consequence of having ignored the originating offer.
func (m *Machine) SwallowCandidateError() bool {
	return m.ignoreOffer
}
