package model

import "time"

// ChangeOp is the kind of local mutation queued for upload.
type ChangeOp string

const (
	ChangeOpCreate ChangeOp = "create"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// Change is one queued local mutation awaiting reconciliation with the
// remote authority. One entry is appended per create/update in the same
// transaction as the write itself.
type Change struct {
	ID         string    `json:"id" db:"id"`
	Collection string    `json:"collection" db:"collection"`
	RecordID   string    `json:"record_id" db:"record_id"`
	Op         ChangeOp  `json:"op" db:"op"`
	QueuedAt   time.Time `json:"queued_at" db:"queued_at"`
}
