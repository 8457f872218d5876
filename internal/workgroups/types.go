package workgroups

import "time"

// Workgroup groups members for a shared task; roles associated to the
// workgroup are inherited by every one of its members.
type Workgroup struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
