package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/vigil/internal/models"
)

// ErrRecordNotFound is returned when a history record does not exist
var ErrRecordNotFound = errors.New("record not found")

// HistoryListOptions filters a history listing
type HistoryListOptions struct {
	SessionID string
	Kind      string
	Limit     int
}

// JobHistoryStorage persists summaries of finished jobs
type JobHistoryStorage interface {
	SaveRecord(ctx context.Context, record *models.JobRecord) error
	GetRecord(ctx context.Context, id string) (*models.JobRecord, error)
	ListRecords(ctx context.Context, opts *HistoryListOptions) ([]*models.JobRecord, error)
	DeleteRecordsBefore(ctx context.Context, cutoffUnix int64) (int, error)
	Close() error
}
