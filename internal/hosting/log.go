package hosting

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"expertresume/internal/database"
)

// LogStore is the append-only store for payment attempt records.
// Entries are never updated or deleted once written.
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

// Append writes one payment log entry.
func (s *LogStore) Append(ctx context.Context, entry *database.PaymentLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append payment log: %w", err)
	}
	return nil
}

// ListByHosted returns the entries for one hosted resume, newest first.
func (s *LogStore) ListByHosted(ctx context.Context, hostedID string) ([]database.PaymentLog, error) {
	var logs []database.PaymentLog
	err := s.db.WithContext(ctx).
		Where("hosted_id = ?", hostedID).
		Order("timestamp DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list payment logs: %w", err)
	}
	return logs, nil
}

// ListByType returns every entry of the given type grouped by hosted
// resume id, newest first inside each group. The admin listing uses
// this to join logs onto records in one query.
func (s *LogStore) ListByType(ctx context.Context, logType string) (map[string][]database.PaymentLog, error) {
	var logs []database.PaymentLog
	err := s.db.WithContext(ctx).
		Where("type = ?", logType).
		Order("timestamp DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list payment logs by type: %w", err)
	}
	grouped := make(map[string][]database.PaymentLog)
	for _, l := range logs {
		grouped[l.HostedID] = append(grouped[l.HostedID], l)
	}
	return grouped, nil
}
