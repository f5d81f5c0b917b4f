package session

// Event names on the wire. Inbound names are matched by the realtime client
// dispatch; outbound names are the contract surface observed by room clients.
const (
	EventJoinOK             = "joinOK"
	EventRoomFull           = "roomFull"
	EventRoomAlreadyStarted = "roomAlreadyStarted"
	EventExistingUsers      = "existingUsers"
	EventUserJoined         = "userJoined"
	EventUserLeft           = "userLeft"
	EventRoomDestroyed      = "roomDestroyed"
	EventStartSession       = "startSession"
	EventSessionEnded       = "sessionEnded"
	EventUpdateSpeaker      = "updateSpeaker"
	EventUpdateTimer        = "updateTimer"
	EventSpeakExtended      = "speakExtended"
	EventPickButtonDisable  = "pickButtonDisable"
	EventToggleReady        = "toggleReady"
	EventToggleMic          = "toggleMic"
	EventInterestedSpeak    = "interestedSpeak"
	EventRoomMessage        = "roomMessage"
	EventAdminNotice        = "adminNotice"
)

// SpeakerPayload announces the current floor-holder.
type SpeakerPayload struct {
	SpeakerID       string `json:"speakerId"`
	IsOriginSpeaker bool   `json:"isOriginSpeaker"`
}

// TimerPayload is broadcast once per second so clients resynchronize their
// countdowns from server time.
type TimerPayload struct {
	TimeLeft int    `json:"timeLeft"`
	Phase    Phase  `json:"phase"`
	OriginID string `json:"originId"`
}

// ReadyPayload mirrors a readiness toggle to the room.
type ReadyPayload struct {
	UserID  string `json:"userId"`
	IsReady bool   `json:"isReady"`
}

// MicPayload mirrors a mic toggle to the room.
type MicPayload struct {
	UserID string `json:"userId"`
	MicOn  bool   `json:"micOn"`
}

// MessagePayload carries a room chat message.
type MessagePayload struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

// NoticePayload carries a server-originated notice.
type NoticePayload struct {
	Message string `json:"message"`
}

// InterestPayload acknowledges an extension vote.
type InterestPayload struct {
	UserID string `json:"userId"`
}

// LeftPayload announces a departed participant.
type LeftPayload struct {
	UserID string `json:"userId"`
}

// Broadcaster is the transport surface the session core emits through.
// Implementations must not block: the core calls these while holding the
// room's lock, so sends have to be buffered or dropped, never waited on.
type Broadcaster interface {
	// Broadcast fans an event out to every connection joined to a room.
	// Events issued for one room in sequence must reach each recipient in
	// that same relative order.
	Broadcast(roomCode, event string, payload interface{})
	// Publish fans a chat event out room-wide, crossing instances where the
	// transport supports it (pub/sub). Control events never use this path.
	Publish(roomCode, event string, payload interface{})
	// Unicast delivers an event to exactly one connection.
	Unicast(clientID, event string, payload interface{})
	// Join associates a connection with a room's fan-out group.
	Join(roomCode, clientID string)
	// Leave disassociates a connection from a room's fan-out group.
	Leave(roomCode, clientID string)
}
