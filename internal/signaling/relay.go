// Package signaling forwards WebRTC offers, answers, and ICE candidates
// between peers in a room. The relay is stateless: it validates the payload,
// stamps the sender, and passes it through; peer connections live entirely in
// the clients.
package signaling

import (
	"encoding/json"

	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Sender delivers an event to a single connection. Implemented by the realtime hub.
type Sender interface {
	Unicast(clientID, event string, payload interface{})
}

// Relay is the pass-through signaling forwarder.
type Relay struct {
	sender Sender
	ice    []webrtc.ICEServer
	logger *zap.Logger
}

// NewRelay creates a relay with the STUN/TURN URLs handed out to clients.
func NewRelay(sender Sender, iceURLs []string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	ice := make([]webrtc.ICEServer, 0, len(iceURLs))
	for _, u := range iceURLs {
		if u != "" {
			ice = append(ice, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	return &Relay{sender: sender, ice: ice, logger: logger}
}

// ICEServers returns the ICE server set clients should use for their peer connections.
func (r *Relay) ICEServers() []webrtc.ICEServer {
	return r.ice
}

type descriptionPayload struct {
	TargetID string                    `json:"targetId"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

type candidatePayload struct {
	TargetID  string                  `json:"targetId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ForwardedDescription is the payload delivered to the target peer for an
// offer or answer.
type ForwardedDescription struct {
	FromID string                    `json:"fromId"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

// ForwardedCandidate is the payload delivered to the target peer for an ICE candidate.
type ForwardedCandidate struct {
	FromID    string                  `json:"fromId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// Forward validates and relays one signaling message from fromID to the
// target named in the payload. Malformed or incomplete payloads are dropped.
func (r *Relay) Forward(fromID, event string, data json.RawMessage) {
	switch event {
	case "webrtcOffer", "webrtcAnswer":
		var p descriptionPayload
		if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" || p.SDP.SDP == "" {
			return
		}
		want := webrtc.SDPTypeOffer
		if event == "webrtcAnswer" {
			want = webrtc.SDPTypeAnswer
		}
		if p.SDP.Type != want {
			r.logger.Debug("signaling type mismatch",
				zap.String("event", event),
				zap.String("type", p.SDP.Type.String()),
			)
			return
		}
		r.sender.Unicast(p.TargetID, event, ForwardedDescription{FromID: fromID, SDP: p.SDP})

	case "webrtcCandidate":
		var p candidatePayload
		if err := json.Unmarshal(data, &p); err != nil || p.TargetID == "" || p.Candidate.Candidate == "" {
			return
		}
		r.sender.Unicast(p.TargetID, event, ForwardedCandidate{FromID: fromID, Candidate: p.Candidate})
	}
}
