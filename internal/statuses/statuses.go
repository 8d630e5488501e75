package statuses

// Game lifecycle. Transitions are owned by the review pipeline; completed
// and failed are terminal.
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
