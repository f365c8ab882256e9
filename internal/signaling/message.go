package signaling

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/olivermeyer777/post-translatorv1/internal/language"
)

// Role identifies one of the two fixed call parties. The customer is
// the impolite (initiating) side of negotiation, the agent the polite
// side.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
)

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleCustomer {
		return RoleAgent
	}
	return RoleCustomer
}

// Label returns the transcript display name for a role.
func (r Role) Label() string {
	if r == RoleCustomer {
		return "Client"
	}
	return "Agent"
}

// Message type constants.
const (
	TypePing         = "PING"
	TypeJoinRoom     = "JOIN_ROOM"
	TypeAudioChunk   = "AUDIO_CHUNK"
	TypeTranscript   = "TRANSCRIPT"
	TypeWebRTCSignal = "WEBRTC_SIGNAL"
	TypeWebRTCReady  = "WEBRTC_READY"
)

// Signal type constants (nested in WEBRTC_SIGNAL messages).
const (
	SignalOffer     = "OFFER"
	SignalAnswer    = "ANSWER"
	SignalCandidate = "CANDIDATE"
)

// Signal carries one WebRTC negotiation payload: an SDP offer or
// answer, or a trickled ICE candidate.
type Signal struct {
	Type      string                   `json:"type"`
	SDP       *pion.SessionDescription `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit   `json:"candidate,omitempty"`
}

// Message represents every payload exchanged on a room topic. The
// union is flat on the wire; Type decides which fields are meaningful.
// SenderID is not part of the logical schema and exists only for
// self-message suppression.
type Message struct {
	Type     string `json:"type"`
	SenderID string `json:"_senderId,omitempty"`

	// PING / JOIN_ROOM / WEBRTC_READY
	Role     Role               `json:"role,omitempty"`
	Language *language.Language `json:"language,omitempty"`

	// AUDIO_CHUNK / TRANSCRIPT / WEBRTC_SIGNAL
	SenderRole Role `json:"senderRole,omitempty"`

	// AUDIO_CHUNK: base64-encoded synthesized audio.
	Data string `json:"data,omitempty"`

	// TRANSCRIPT
	Text          string `json:"text,omitempty"`
	IsTranslation bool   `json:"isTranslation,omitempty"`

	// WEBRTC_SIGNAL
	Signal *Signal `json:"signal,omitempty"`
}

// From reports whether the message originates from the given role,
// regardless of which role field the message type uses.
func (m *Message) From(role Role) bool {
	return m.Role == role || m.SenderRole == role
}
