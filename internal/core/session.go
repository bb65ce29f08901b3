package core

import "time"

// Session is a conversational unit bound to one workload. SessionUUID is
// the stable identifier handed to the agent CLI; Diff holds the captured
// workspace changes of the most recent run (overwritten, never appended).
type Session struct {
	ID          string    `json:"id"`
	WorkloadID  string    `json:"workload_id"`
	SessionUUID string    `json:"session_uuid"`
	Diff        *string   `json:"diff,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
