package model

import (
	"time"
)

// Base contains common fields for all persisted records. Synced is false
// whenever the record has local changes the remote authority has not
// confirmed; only the sync coordinator flips it back to true.
type Base struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	Synced    bool      `json:"synced" db:"synced"`
}

// Meta exposes the embedded metadata for generic repository code.
func (b *Base) Meta() *Base { return b }

// Entity is implemented by every persisted record type.
type Entity interface {
	Meta() *Base
	// IndexValues returns the secondary-index columns extracted from the
	// record at write time, keyed by index name.
	IndexValues() map[string]interface{}
}
