package core

// EventKind tags the variant of a progress event.
type EventKind int

const (
	// EventStatus is an informational progress update.
	EventStatus EventKind = iota + 1
	// EventResult is the terminal success event of a job, carrying its payload.
	EventResult
	// EventError is the terminal failure event of a job.
	EventError
)

// Stage identifies which of the two sibling ingestion jobs emitted an event.
type Stage string

const (
	// StageIndex is the chunking/embedding/upsert job.
	StageIndex Stage = "index"
	// StageSummary is the summarization job.
	StageSummary Stage = "summary"
)

// ProgressEvent is one entry in a task's progress stream.
// Events from a single stage arrive in emission order; events from the two
// sibling stages may interleave arbitrarily.
type ProgressEvent struct {
	TaskId  string
	Stage   Stage
	Kind    EventKind
	Message string // Status text or user-facing error message
	Payload any    // Result payload: string (full text) for StageIndex, Summary for StageSummary
}

// Terminal reports whether the event ends its stage's stream.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventResult || e.Kind == EventError
}

// StatusEvent builds an informational event.
func StatusEvent(taskID string, stage Stage, message string) ProgressEvent {
	return ProgressEvent{TaskId: taskID, Stage: stage, Kind: EventStatus, Message: message}
}

// ResultEvent builds a terminal success event.
func ResultEvent(taskID string, stage Stage, payload any) ProgressEvent {
	return ProgressEvent{TaskId: taskID, Stage: stage, Kind: EventResult, Payload: payload}
}

// ErrorEvent builds a terminal failure event.
func ErrorEvent(taskID string, stage Stage, message string) ProgressEvent {
	return ProgressEvent{TaskId: taskID, Stage: stage, Kind: EventError, Message: message}
}
