// Package remote defines the contract with the remote authority the sync
// coordinator reconciles against. Only the success/failure signal matters
// here; the transport is an implementation detail.
package remote

import (
	"context"
	"encoding/json"

	"github.com/jwalitptl/clinic-sync/internal/model"
)

// Record is one local mutation offered for upload. Uploads are keyed by the
// record id; the authority is expected to upsert idempotently so re-sending
// after a partial failure creates no duplicates.
type Record struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Op         model.ChangeOp  `json:"op"`
	UpdatedAt  string          `json:"updated_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Result is the per-record outcome of a push.
type Result struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Authority accepts batched uploads of unsynced records.
type Authority interface {
	Push(ctx context.Context, records []Record) ([]Result, error)
}
