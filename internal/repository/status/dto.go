package status

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain/indexing"
)

const (
	fieldState  = "state"
	fieldReason = "reason"
	fieldTaskID = "task_id"
	fieldRunID  = "run_id"
)

func buildFields(st indexing.Status) map[string]string {
	return map[string]string{
		fieldState:  string(st.State()),
		fieldReason: st.Reason(),
		fieldTaskID: st.TaskID(),
		fieldRunID:  st.RunID(),
	}
}

func parseStatus(documentID string, m map[string]string) (indexing.Status, error) {
	state, err := indexing.ParseState(m[fieldState])
	if err != nil {
		return indexing.Status{}, fmt.Errorf("status record %s: %w", documentID, err)
	}
	return indexing.Reconstruct(documentID, state, m[fieldReason], m[fieldTaskID], m[fieldRunID]), nil
}
