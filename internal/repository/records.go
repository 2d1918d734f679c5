package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/event"
)

// Records provides collection-agnostic CRUD over the store engine, stamping
// the base metadata on every mutation. Each create/update persists the
// record and appends a pending change in the same transaction, then fires a
// domain event.
type Records[T any, PT interface {
	*T
	model.Entity
}] struct {
	store      *store.Store
	collection string
	clock      clock.Clock
	events     event.Publisher
	topic      string
}

// NewRecords creates a generic repository for one collection.
func NewRecords[T any, PT interface {
	*T
	model.Entity
}](s *store.Store, collection string, clk clock.Clock, events event.Publisher, topic string) *Records[T, PT] {
	if clk == nil {
		clk = clock.System()
	}
	if events == nil {
		events = event.Nop{}
	}
	return &Records[T, PT]{
		store:      s,
		collection: collection,
		clock:      clk,
		events:     events,
		topic:      topic,
	}
}

// Add assigns a fresh id, sets both timestamps to now, clears the synced
// flag and persists the record together with its queue entry.
func (r *Records[T, PT]) Add(ctx context.Context, rec PT) (PT, error) {
	now := r.clock.Now().UTC()
	meta := rec.Meta()
	meta.ID = uuid.NewString()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.Synced = false

	if err := r.persist(ctx, rec, model.ChangeOpCreate); err != nil {
		return nil, err
	}
	r.events.Publish(r.topic, rec)
	return rec, nil
}

// Update refreshes UpdatedAt, clears the synced flag and upserts the record.
// The id must already be assigned.
func (r *Records[T, PT]) Update(ctx context.Context, rec PT) (PT, error) {
	meta := rec.Meta()
	if meta.ID == "" {
		return nil, apperror.Validation("record id is required for update")
	}
	meta.UpdatedAt = r.clock.Now().UTC()
	meta.Synced = false

	if err := r.persist(ctx, rec, model.ChangeOpUpdate); err != nil {
		return nil, err
	}
	r.events.Publish(r.topic, rec)
	return rec, nil
}

func (r *Records[T, PT]) persist(ctx context.Context, rec PT, op model.ChangeOp) error {
	meta := rec.Meta()
	data, err := json.Marshal(rec)
	if err != nil {
		return apperror.Internal(err)
	}

	row := store.Row{
		ID:        meta.ID,
		Data:      data,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Synced:    meta.Synced,
		Index:     rec.IndexValues(),
	}

	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.Put(ctx, r.collection, row); err != nil {
			return err
		}
		return tx.EnqueueChange(ctx, model.Change{
			ID:         uuid.NewString(),
			Collection: r.collection,
			RecordID:   meta.ID,
			Op:         op,
			QueuedAt:   meta.UpdatedAt,
		})
	})
}

// GetByID returns the record or a NotFound error; absence is an expected
// outcome callers check with apperror.IsNotFound.
func (r *Records[T, PT]) GetByID(ctx context.Context, id string) (PT, error) {
	row, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}
	return r.decode(row)
}

// GetAll returns the collection in store-native order.
func (r *Records[T, PT]) GetAll(ctx context.Context) ([]PT, error) {
	rows, err := r.store.GetAll(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows)
}

// GetAllByIndex returns the records whose index column equals value.
func (r *Records[T, PT]) GetAllByIndex(ctx context.Context, index string, value interface{}) ([]PT, error) {
	rows, err := r.store.GetAllByIndex(ctx, r.collection, index, value)
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows)
}

// Delete removes the record. Normal flows never delete; this exists for
// reset and administrative cleanup. Stale queue entries for the record are
// skipped and dequeued at the next drain.
func (r *Records[T, PT]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.collection, id)
}

// Clear wipes the collection. Irreversible.
func (r *Records[T, PT]) Clear(ctx context.Context) error {
	return r.store.Clear(ctx, r.collection)
}

func (r *Records[T, PT]) decode(row store.Row) (PT, error) {
	var rec T
	pt := PT(&rec)
	if err := json.Unmarshal(row.Data, pt); err != nil {
		return nil, apperror.Internal(err)
	}
	// The row columns are authoritative for the metadata; the synced flag
	// in particular may have been flipped after the document was written.
	meta := pt.Meta()
	meta.ID = row.ID
	meta.CreatedAt = row.CreatedAt.UTC()
	meta.UpdatedAt = row.UpdatedAt.UTC()
	meta.Synced = row.Synced
	return pt, nil
}

func (r *Records[T, PT]) decodeAll(rows []store.Row) ([]PT, error) {
	out := make([]PT, 0, len(rows))
	for _, row := range rows {
		rec, err := r.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
