package models

// AuditEvent is one immutable entry of a document's audit log.
type AuditEvent struct {
	// ID is the log-assigned identifier. It is opaque but orders events
	// within one document's log.
	ID string `json:"id"`

	// Values holds the fields of the mutation that produced the event.
	Values map[string]any `json:"values"`
}
