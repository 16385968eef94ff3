package bus

// Event types published by the core. External listeners (status panels,
// audit sinks) may consume them; nothing in the core depends on a consumer
// being present.
const (
	EventDispatchCompleted = "dispatch.completed"
	EventRecordAdded       = "history.record_added"
	EventRecordRemoved     = "history.record_removed"
	EventHistoryFlushed    = "history.flushed"
)

// Event is an observational notification about a completed core operation.
type Event struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}
