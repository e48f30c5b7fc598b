package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Events lists the event kinds the client wants; empty means all.
	Events []string `json:"events,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Status          any    `json:"status"`
}

// Request actions.
const (
	ActionNewGame    = "NEW_GAME"
	ActionBackToMenu = "BACK_TO_MENU"
	ActionTeleport   = "TELEPORT"
	ActionInteract   = "INTERACT"
	ActionValue      = "VALUE"
	ActionSave       = "SAVE"
	ActionLoad       = "LOAD"
	ActionStatus     = "STATUS"
)

var knownActions = map[string]struct{}{
	ActionNewGame:    {},
	ActionBackToMenu: {},
	ActionTeleport:   {},
	ActionInteract:   {},
	ActionValue:      {},
	ActionSave:       {},
	ActionLoad:       {},
	ActionStatus:     {},
}

func IsKnownAction(a string) bool {
	_, ok := knownActions[a]
	return ok
}

// REQUEST (client -> server)
type RequestMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Ref             string  `json:"ref,omitempty"`
	Action          string  `json:"action"`
	Target          string  `json:"target,omitempty"`
	Index           int     `json:"index,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
}

// RESULT (server -> client), one per REQUEST.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Status          any    `json:"status,omitempty"`
}

// Event kinds.
const (
	EventLocationUnloading = "LOCATION_UNLOADING"
	EventLocationReady     = "LOCATION_READY"
	EventSaved             = "SAVED"
	EventLoaded            = "LOADED"
)

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Kind            string `json:"kind"`
	Location        string `json:"location,omitempty"`
	From            string `json:"from,omitempty"`
	Category        string `json:"category,omitempty"`
	SaveID          string `json:"save_id,omitempty"`
	Seq             uint64 `json:"seq,omitempty"`
}
