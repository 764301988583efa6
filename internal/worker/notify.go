package worker

// Messages relayed to the frontend over Redis Pub/Sub and WebSocket.
// Field names match what the hosted resume page parses.

// HostedNotifyMessage reports payment and PDF render progress for one
// hosted resume.
type HostedNotifyMessage struct {
	Event         string `json:"event"`
	Status        string `json:"status"`
	HostedID      string `json:"hosted_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	PdfObjectKey  string `json:"pdf_object_key,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

const (
	// EventPaymentVerified is published when the access flags flip.
	EventPaymentVerified = "payment_verified"
	// EventSnapshotPDF is published when the snapshot render finishes.
	EventSnapshotPDF = "snapshot_pdf"
)

// NotifyChannel returns the pub/sub channel for one hosted resume.
func NotifyChannel(hostedID string) string {
	return "hosted_notify:" + hostedID
}
