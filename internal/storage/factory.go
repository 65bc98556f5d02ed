package storage

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

// NewHistoryStorage opens the job history store. With badger disabled every
// write is discarded and listings are empty.
func NewHistoryStorage(logger arbor.ILogger, config *common.Config) (interfaces.JobHistoryStorage, error) {
	if !config.Storage.Badger.Enabled {
		logger.Info().Msg("Job history disabled (storage.badger.enabled=false)")
		return discardHistory{}, nil
	}

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Storage.Badger.Path).Msg("Job history storage initialized")
	return badger.NewJobHistoryStorage(db, logger), nil
}

type discardHistory struct{}

func (discardHistory) SaveRecord(ctx context.Context, record *models.JobRecord) error { return nil }

func (discardHistory) GetRecord(ctx context.Context, id string) (*models.JobRecord, error) {
	return nil, interfaces.ErrRecordNotFound
}

func (discardHistory) ListRecords(ctx context.Context, opts *interfaces.HistoryListOptions) ([]*models.JobRecord, error) {
	return []*models.JobRecord{}, nil
}

func (discardHistory) DeleteRecordsBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	return 0, nil
}

func (discardHistory) Close() error { return nil }
