package domain

import "time"

// Entry represents one audit event. Entries are append-only and best-effort:
// the absence of an entry must never be read as absence of the underlying action.
type Entry struct {
	ID           string         `json:"id"`
	LabID        string         `json:"lab_id,omitempty"` // empty for events with no lab context
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
