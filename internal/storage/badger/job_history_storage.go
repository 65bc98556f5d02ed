package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// jobRecordEntry is the stored form of a JobRecord. Query fields are lifted
// to the top level so badgerhold can filter and sort on them.
type jobRecordEntry struct {
	ID           string
	SessionID    string
	Kind         string
	FinishedUnix int64
	Record       models.JobRecord
}

// JobHistoryStorage implements the JobHistoryStorage interface for Badger
type JobHistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobHistoryStorage creates a new JobHistoryStorage instance
func NewJobHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobHistoryStorage {
	return &JobHistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobHistoryStorage) SaveRecord(ctx context.Context, record *models.JobRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	finished := record.FinishedAt.Unix()
	if record.FinishedAt.IsZero() {
		finished = 0
	}

	entry := &jobRecordEntry{
		ID:           record.ID,
		SessionID:    record.SessionID,
		Kind:         record.Kind,
		FinishedUnix: finished,
		Record:       *record,
	}

	if err := s.db.Store().Upsert(record.ID, entry); err != nil {
		return fmt.Errorf("failed to save job record %s: %w", record.ID, err)
	}
	return nil
}

func (s *JobHistoryStorage) GetRecord(ctx context.Context, id string) (*models.JobRecord, error) {
	var entry jobRecordEntry
	if err := s.db.Store().Get(id, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job record %s: %w", id, err)
	}
	record := entry.Record
	return &record, nil
}

// ListRecords returns records newest first
func (s *JobHistoryStorage) ListRecords(ctx context.Context, opts *interfaces.HistoryListOptions) ([]*models.JobRecord, error) {
	query := badgerhold.Where("FinishedUnix").Ge(int64(0))
	if opts != nil {
		if opts.SessionID != "" {
			query = query.And("SessionID").Eq(opts.SessionID)
		}
		if opts.Kind != "" {
			query = query.And("Kind").Eq(opts.Kind)
		}
	}
	query = query.SortBy("FinishedUnix").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var entries []jobRecordEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	records := make([]*models.JobRecord, 0, len(entries))
	for i := range entries {
		record := entries[i].Record
		records = append(records, &record)
	}
	return records, nil
}

// DeleteRecordsBefore removes records that finished before cutoffUnix
func (s *JobHistoryStorage) DeleteRecordsBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	var entries []jobRecordEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("FinishedUnix").Lt(cutoffUnix)); err != nil {
		return 0, fmt.Errorf("failed to find expired job records: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if err := s.db.Store().Delete(entry.ID, &jobRecordEntry{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete job record %s: %w", entry.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Int64("cutoff", cutoffUnix).Msg("Purged expired job records")
	}
	return deleted, nil
}

func (s *JobHistoryStorage) Close() error {
	return s.db.Close()
}
