package session

// WebSocket close codes used by the streaming protocol.
const (
	CloseUnauthorized     = 4001
	CloseRateLimited      = 4008
	CloseLifetimeExceeded = 4009
	CloseHeartbeatTimeout = 4010
	CloseQuotaExceeded    = 4011
	CloseInternalError    = 1011
)

// Server-to-client message shapes. Field order and names are part of the
// wire contract.

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Error(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: message}
}

type WarningMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Warning(message string) WarningMessage {
	return WarningMessage{Type: "warning", Message: message}
}

type PongMessage struct {
	Type string `json:"type"`
}

func Pong() PongMessage {
	return PongMessage{Type: "pong"}
}

type StatusMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	TranslationID int64  `json:"translation_id,omitempty"`
}

func StatusProcessing(translationID int64) StatusMessage {
	return StatusMessage{Type: "status", Status: "processing", TranslationID: translationID}
}

func StatusStopped() StatusMessage {
	return StatusMessage{Type: "status", Status: "stopped"}
}

type PartialResultMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func PartialResult(text string) PartialResultMessage {
	return PartialResultMessage{Type: "partial_result", Text: text}
}

type FinalResultMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"` // base64
}

func FinalResult(text, audio string) FinalResultMessage {
	return FinalResultMessage{Type: "final_result", Text: text, Audio: audio}
}
