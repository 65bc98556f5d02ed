package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestHistoryStorage(t *testing.T) interfaces.JobHistoryStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Enabled: true, Path: t.TempDir()})
	require.NoError(t, err)
	storage := NewJobHistoryStorage(db, logger)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testRecord(id, session, kind string, finished time.Time) *models.JobRecord {
	return &models.JobRecord{
		ID:         id,
		Kind:       kind,
		Key:        kind + ":" + id,
		SessionID:  session,
		Target:     id,
		State:      models.JobStateSucceeded,
		Chunks:     3,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

func TestJobHistoryStorage_SaveAndGet(t *testing.T) {
	storage := newTestHistoryStorage(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	rec := testRecord("job_1", "s1", "export-module", now)
	rec.State = models.JobStateFailed
	rec.Error = "stage 1 (check links) failed: boom"
	rec.Stage = models.StageInfo{Index: 0, Name: "check links"}
	require.NoError(t, storage.SaveRecord(ctx, rec))

	got, err := storage.GetRecord(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, got.State)
	assert.Equal(t, rec.Error, got.Error)
	assert.Equal(t, "check links", got.Stage.Name)
	assert.Equal(t, time.Second, got.Duration())
}

func TestJobHistoryStorage_GetMissing(t *testing.T) {
	storage := newTestHistoryStorage(t)

	_, err := storage.GetRecord(context.Background(), "nope")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestJobHistoryStorage_SaveRequiresID(t *testing.T) {
	storage := newTestHistoryStorage(t)
	assert.Error(t, storage.SaveRecord(context.Background(), &models.JobRecord{}))
}

func TestJobHistoryStorage_ListFiltersAndOrders(t *testing.T) {
	storage := newTestHistoryStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, storage.SaveRecord(ctx, testRecord("a", "s1", "export-module", base)))
	require.NoError(t, storage.SaveRecord(ctx, testRecord("b", "s1", "delete-module", base.Add(time.Minute))))
	require.NoError(t, storage.SaveRecord(ctx, testRecord("c", "s2", "export-module", base.Add(2*time.Minute))))

	all, err := storage.ListRecords(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	s1, err := storage.ListRecords(ctx, &interfaces.HistoryListOptions{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, s1, 2)
	assert.Equal(t, "b", s1[0].ID)

	exports, err := storage.ListRecords(ctx, &interfaces.HistoryListOptions{Kind: "export-module", Limit: 1})
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "c", exports[0].ID)
}

func TestJobHistoryStorage_DeleteRecordsBefore(t *testing.T) {
	storage := newTestHistoryStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SaveRecord(ctx, testRecord("old", "s1", "export-module", now.Add(-48*time.Hour))))
	require.NoError(t, storage.SaveRecord(ctx, testRecord("new", "s1", "export-module", now)))

	deleted, err := storage.DeleteRecordsBefore(ctx, now.Add(-24*time.Hour).Unix())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = storage.GetRecord(ctx, "old")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	_, err = storage.GetRecord(ctx, "new")
	assert.NoError(t, err)
}

func TestJobHistoryStorage_InMemory(t *testing.T) {
	logger := arbor.NewLogger()
	db, err := NewInMemoryBadgerDB(logger)
	require.NoError(t, err)
	storage := NewJobHistoryStorage(db, logger)
	defer storage.Close()

	require.NoError(t, storage.SaveRecord(context.Background(), testRecord("m", "s", "k", time.Now())))
	_, err = storage.GetRecord(context.Background(), "m")
	assert.NoError(t, err)
}
