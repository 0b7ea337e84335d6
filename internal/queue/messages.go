package queue

// DistillJob is the message enqueued by a distillation trigger and consumed by
// the worker. Empty SignalIDs means "all currently unprocessed signals".
type DistillJob struct {
	LabID     string   `json:"lab_id"`
	SignalIDs []string `json:"signal_ids,omitempty"`
	// TriggeredBy is the actor that requested the distillation, carried for the
	// run's audit trail.
	TriggeredBy string `json:"triggered_by,omitempty"`
}
