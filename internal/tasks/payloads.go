package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type constants keep queue producers and consumers in sync.
const (
	TypeSnapshotPDF = "hosted:snapshot_pdf"
	TypeExpirySweep = "hosted:expiry_sweep"
	TypeQuotaReset  = "quota:reset"
)

// SnapshotPDFPayload identifies the hosted resume whose snapshot
// should be rendered to PDF.
type SnapshotPDFPayload struct {
	HostedID      string `json:"hosted_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewSnapshotPDFTask builds a snapshot render task.
func NewSnapshotPDFTask(hostedID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SnapshotPDFPayload{
		HostedID:      hostedID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSnapshotPDF, payload), nil
}

// NewExpirySweepTask builds the periodic hosted resume expiry sweep.
// The payload is empty; the sweep scans the whole table.
func NewExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TypeExpirySweep, nil)
}

// NewQuotaResetTask builds the periodic quota window reset.
func NewQuotaResetTask() *asynq.Task {
	return asynq.NewTask(TypeQuotaReset, nil)
}
