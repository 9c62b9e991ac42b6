package indexing

import "fmt"

// State is the pipeline position of a document.
type State string

const (
	Ready      State = "READY"
	Parsing    State = "PARSING"
	Extracting State = "EXTRACTING"
	Indexing   State = "INDEXING"
	Success    State = "SUCCESS"
	Failed     State = "FAILED"
)

// ReasonTerminated is the forced failure reason written by the re-index
// compensation protocol.
const ReasonTerminated = "Terminated because of re-indexing"

// ParseState validates a state string.
func ParseState(s string) (State, error) {
	switch State(s) {
	case Ready, Parsing, Extracting, Indexing, Success, Failed:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown indexing state %q", s)
	}
}

// Running reports whether the state is an in-flight stage.
func (s State) Running() bool {
	return s == Parsing || s == Extracting || s == Indexing
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool { return s == Success || s == Failed }

// Status is the per-document indexing status record. It is the single
// serialization point for a document's pipeline.
//
// Invariants: taskID is non-empty only while the state is a running stage;
// reason is empty whenever the state is not Failed; runID identifies the
// current run so a task superseded by re-indexing cannot write status late.
type Status struct {
	documentID string
	state      State
	reason     string
	taskID     string
	runID      string
}

// NewReady creates the initial status for a fresh run.
func NewReady(documentID, runID string) (Status, error) {
	if documentID == "" {
		return Status{}, fmt.Errorf("document ID is required")
	}
	if runID == "" {
		return Status{}, fmt.Errorf("run ID is required")
	}
	return Status{documentID: documentID, state: Ready, runID: runID}, nil
}

// Reconstruct creates a Status without validation (storage hydration).
func Reconstruct(documentID string, state State, reason, taskID, runID string) Status {
	return Status{documentID: documentID, state: state, reason: reason, taskID: taskID, runID: runID}
}

// DocumentID returns the owning document identifier.
func (s Status) DocumentID() string { return s.documentID }

// State returns the current state.
func (s Status) State() State { return s.state }

// Reason returns the failure or informational message, empty if none.
func (s Status) Reason() string { return s.reason }

// TaskID returns the id of the in-flight unit of work, empty if none.
func (s Status) TaskID() string { return s.taskID }

// RunID returns the current run token.
func (s Status) RunID() string { return s.runID }

// Begin transitions into a running stage. Parsing may start from any state
// (a fresh run restarts the machine); later stages require their
// predecessor. Reason is cleared, the task id recorded.
func (s Status) Begin(stage State, taskID string) (Status, error) {
	if !stage.Running() {
		return Status{}, fmt.Errorf("%s is not a stage", stage)
	}
	if taskID == "" {
		return Status{}, fmt.Errorf("task ID is required to begin %s", stage)
	}
	switch stage {
	case Extracting:
		if s.state != Parsing {
			return Status{}, fmt.Errorf("cannot begin %s from %s", stage, s.state)
		}
	case Indexing:
		if s.state != Extracting {
			return Status{}, fmt.Errorf("cannot begin %s from %s", stage, s.state)
		}
	}
	s.state = stage
	s.reason = ""
	s.taskID = taskID
	return s, nil
}

// Fail transitions to Failed with a reason and clears the task id.
func (s Status) Fail(reason string) Status {
	s.state = Failed
	s.reason = reason
	s.taskID = ""
	return s
}

// Succeed transitions to Success and clears reason and task id.
func (s Status) Succeed() (Status, error) {
	if s.state != Indexing {
		return Status{}, fmt.Errorf("cannot succeed from %s", s.state)
	}
	s.state = Success
	s.reason = ""
	s.taskID = ""
	return s, nil
}

// WithRun stamps the status with a new run token without touching the state.
func (s Status) WithRun(runID string) Status {
	s.runID = runID
	return s
}

// Supersede forces the terminal state written by the re-index protocol and
// stamps the status with the new run token.
func (s Status) Supersede(newRunID string) Status {
	s.state = Failed
	s.reason = ReasonTerminated
	s.taskID = ""
	s.runID = newRunID
	return s
}
