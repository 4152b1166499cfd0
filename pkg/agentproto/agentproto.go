// Package agentproto defines the JSON-line protocol spoken between the arena
// and an agent executable over the agent's stdin/stdout. One message per
// line; unknown fields are ignored so agents and arena can evolve
// independently.
package agentproto

// Message types. The arena sends Load and MoveRequest; an agent answers with
// Ready or LoadError, and Move or AgentError respectively.
const (
	TypeLoad        = "load"
	TypeReady       = "ready"
	TypeLoadError   = "load_error"
	TypeMoveRequest = "move_request"
	TypeMove        = "move"
	TypeAgentError  = "agent_error"
)

// Message is the single envelope for every exchange. Only the fields
// matching Type are populated.
type Message struct {
	Type string `json:"type"`

	// Load: where the agent's move logic came from. Informational; the
	// process is already running when it receives this.
	Resource string `json:"resource,omitempty"`

	// MoveRequest: position to move in (FEN) and the think budget.
	Position    string `json:"position,omitempty"`
	TimeLimitMs int64  `json:"time_limit_ms,omitempty"`

	// Move: the chosen move as a UCI code (e2e4, e7e8q, ...).
	Move string `json:"move,omitempty"`

	// LoadError / AgentError: human-readable failure description.
	Message string `json:"message,omitempty"`
}
