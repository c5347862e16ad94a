package session

// Entry is one login session enriched with monitor-computed facts. Each
// published batch is the complete current state, never a delta, and pids are
// unique within a batch.
type Entry struct {
	PID          int32  `json:"pid"`
	Label        string `json:"label"`
	Command      string `json:"command,omitempty"`
	IsCurrent    bool   `json:"isCurrent"`
	ShouldIgnore bool   `json:"shouldIgnore"`
	CanKill      bool   `json:"canKill"`
}

// IconState is the aggregate indicator the presentation layer shows.
type IconState string

const (
	StateNormal  IconState = "normal"
	StateWarning IconState = "warning"
)

// StateOf classifies a batch: warning iff some session is neither our own
// nor on the ignore list. Ignored non-current sessions (e.g. the login
// screen greeter) do not trigger the warning state.
func StateOf(entries []Entry) IconState {
	for _, e := range entries {
		if !e.IsCurrent && !e.ShouldIgnore {
			return StateWarning
		}
	}
	return StateNormal
}
