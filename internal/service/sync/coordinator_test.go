package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/remote"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
)

// fakeAuthority records every push and can be told to fail or block.
type fakeAuthority struct {
	mu      sync.Mutex
	pushes  [][]remote.Record
	failing bool
	block   chan struct{}
}

func (f *fakeAuthority) Push(ctx context.Context, records []remote.Record) ([]remote.Result, error) {
	f.mu.Lock()
	failing, block := f.failing, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, apperror.SyncFailed(errors.New("remote unavailable"))
	}

	results := make([]remote.Result, 0, len(records))
	for _, r := range records {
		results = append(results, remote.Result{ID: r.ID, OK: true})
	}
	f.mu.Lock()
	f.pushes = append(f.pushes, records)
	f.mu.Unlock()
	return results, nil
}

func (f *fakeAuthority) setFailing(failing bool) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

func (f *fakeAuthority) pushedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, batch := range f.pushes {
		for _, r := range batch {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type syncEnv struct {
	store     *store.Store
	clock     *clock.Manual
	authority *fakeAuthority
	users     repository.UserRepository
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	s := store.New(store.Config{Path: ":memory:"}, nil, nil)
	t.Cleanup(func() { s.Close() })
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return &syncEnv{
		store:     s,
		clock:     clk,
		authority: &fakeAuthority{},
		users:     repository.NewUserRepository(s, clk, nil),
	}
}

func (e *syncEnv) coordinator(cfg Config) *Coordinator {
	return New(e.store, e.authority, e.clock, nil, nil, cfg)
}

func (e *syncEnv) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), &model.CreateUserRequest{
		Name:     "Test User",
		Email:    email,
		Password: "s3cret-pass",
		Role:     model.RolePatient,
	}, "hash")
	require.NoError(t, err)
	return user
}

func TestSyncNowDrainsQueueAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	u1 := env.createUser(t, "a@example.com")
	u2 := env.createUser(t, "b@example.com")

	require.NoError(t, env.coordinator(Config{}).SyncNow(ctx))

	for _, id := range []string{u1.ID, u2.ID} {
		got, err := env.users.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Synced)
	}
	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ElementsMatch(t, []string{u1.ID, u2.ID}, env.authority.pushedIDs())
}

func TestSyncNowWithEmptyQueueSkipsUpload(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	require.NoError(t, env.coordinator(Config{}).SyncNow(ctx))
	assert.Empty(t, env.authority.pushes)
}

func TestFailedDrainPreservesQueueThenRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	coordinator := env.coordinator(Config{})

	user := env.createUser(t, "a@example.com")
	env.authority.setFailing(true)

	err := coordinator.SyncNow(ctx)
	assert.True(t, apperror.IsSyncFailed(err))

	got, err := env.users.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced, "a failed drain must not flip the synced flag")
	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a failed drain must keep the queue intact")

	env.authority.setFailing(false)
	require.NoError(t, coordinator.SyncNow(ctx))

	got, err = env.users.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, []string{user.ID}, env.authority.pushedIDs(), "retry must not duplicate uploads")
}

func TestCoalescesMultipleChangesPerRecord(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	user := env.createUser(t, "a@example.com")
	user.Name = "Renamed"
	_, err := env.users.Update(ctx, user)
	require.NoError(t, err)

	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, env.coordinator(Config{}).SyncNow(ctx))

	assert.Equal(t, []string{user.ID}, env.authority.pushedIDs(), "one upload carries the current state")
	n, err = env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteChangesRetireLocally(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	require.NoError(t, env.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.EnqueueChange(ctx, model.Change{
			ID:         "c1",
			Collection: store.CollectionUsers,
			RecordID:   "gone",
			Op:         model.ChangeOpDelete,
			QueuedAt:   env.clock.Now(),
		})
	}))

	require.NoError(t, env.coordinator(Config{}).SyncNow(ctx))

	assert.Empty(t, env.authority.pushes)
	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVanishedRecordIsDequeuedWithoutUpload(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	user := env.createUser(t, "a@example.com")
	require.NoError(t, env.store.Delete(ctx, store.CollectionUsers, user.ID))

	require.NoError(t, env.coordinator(Config{}).SyncNow(ctx))

	assert.Empty(t, env.authority.pushes)
	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOverlappingSyncReturnsErrSyncInProgress(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	coordinator := env.coordinator(Config{})

	env.createUser(t, "a@example.com")
	release := make(chan struct{})
	env.authority.block = release

	firstDone := make(chan error, 1)
	go func() { firstDone <- coordinator.SyncNow(ctx) }()

	// Wait for the first drain to take the single-flight slot.
	require.Eventually(t, func() bool {
		return errors.Is(coordinator.SyncNow(ctx), ErrSyncInProgress)
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestOfflineToOnlineTransitionTriggersDrain(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	coordinator := env.coordinator(Config{InitiallyOnline: false})

	coordinator.Start(ctx)
	defer coordinator.Stop()

	u1 := env.createUser(t, "a@example.com")
	u2 := env.createUser(t, "b@example.com")
	assert.False(t, coordinator.Online())

	coordinator.SetOnline(true)

	require.Eventually(t, func() bool {
		n, err := env.store.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond, "coming online must drain the queue")

	for _, id := range []string{u1.ID, u2.ID} {
		got, err := env.users.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Synced)
	}
}

func TestPeriodicTickDrainsWhileOnline(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	coordinator := env.coordinator(Config{InitiallyOnline: true})

	coordinator.Start(ctx)
	defer coordinator.Stop()

	env.createUser(t, "a@example.com")
	env.clock.Tick()

	require.Eventually(t, func() bool {
		n, err := env.store.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTickWhileOfflineDoesNothing(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)
	coordinator := env.coordinator(Config{InitiallyOnline: false})

	coordinator.Start(ctx)
	defer coordinator.Stop()

	env.createUser(t, "a@example.com")
	env.clock.Tick()

	// Give the scheduler a moment to mishandle the tick if it were going to.
	time.Sleep(50 * time.Millisecond)
	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, env.authority.pushes)
}

func TestBatchingSplitsLargeQueues(t *testing.T) {
	ctx := context.Background()
	env := newSyncEnv(t)

	ids := make([]string, 0, 5)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"} {
		ids = append(ids, env.createUser(t, email).ID)
	}

	require.NoError(t, env.coordinator(Config{BatchSize: 2}).SyncNow(ctx))

	env.authority.mu.Lock()
	batches := len(env.authority.pushes)
	env.authority.mu.Unlock()
	assert.Equal(t, 3, batches)
	assert.ElementsMatch(t, ids, env.authority.pushedIDs())
}
