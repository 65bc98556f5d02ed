package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

func TestNewHistoryStorage_Disabled(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Enabled = false

	storage, err := NewHistoryStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.SaveRecord(ctx, &models.JobRecord{ID: "x"}))
	_, err = storage.GetRecord(ctx, "x")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	records, err := storage.ListRecords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewHistoryStorage_Badger(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()

	storage, err := NewHistoryStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	defer storage.Close()

	require.NoError(t, storage.SaveRecord(context.Background(), &models.JobRecord{ID: "y"}))
	rec, err := storage.GetRecord(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, "y", rec.ID)
}
