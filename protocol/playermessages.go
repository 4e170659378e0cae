package protocol

// InboundMessage is a message from a client to the sandbox
type InboundMessage struct {
	Command    Cmd    `json:"command"`
	UserID     int    `json:"userID,omitempty"`
	Property   string `json:"property,omitempty"`
	Delta      int    `json:"delta,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	DelayID    string `json:"delayID,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// OutboundMessage is a message from the sandbox to clients
type OutboundMessage struct {
	Command  Cmd    `json:"command"`
	UserID   int    `json:"userID"`
	Index    int    `json:"index,omitempty"`
	Property string `json:"property,omitempty"`
	Value    int    `json:"value"`
	Old      int    `json:"old,omitempty"`
	Team     string `json:"team,omitempty"`
	DelayID  string `json:"delayID,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorMessage builds an Error reply for userID
func ErrorMessage(userID int, err error) OutboundMessage {
	return OutboundMessage{
		Command: Error,
		UserID:  userID,
		Error:   err.Error(),
	}
}
