package session

// Participant is a connected member of a room. The ID is the connection ID and
// stays stable for the connection's lifetime. Name and Animal are cosmetic and
// opaque to the session core.
type Participant struct {
	ID     string `json:"userId"`
	Name   string `json:"userName"`
	Animal string `json:"animal"`
	MicOn  bool   `json:"micOn"`
	Ready  bool   `json:"isReady"`

	// extendVote is the participant's pending vote to extend the current
	// phase. Cleared whenever an extension is granted or a new speaking
	// turn begins.
	extendVote bool
}
