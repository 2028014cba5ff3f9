package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

const keyPrefix = "dagrun:report:"

// ReportStorage implements ports.RunStore using Redis
type ReportStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewReportStorage creates a new Redis report storage. A zero ttl keeps
// reports until deleted.
func NewReportStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportStorage {
	return &ReportStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveReport stores the report under its run ID, replacing any earlier copy
func (s *ReportStorage) SaveReport(ctx context.Context, report *domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := s.client.Set(ctx, reportKey(report.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Debug("report saved",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)))

	return nil
}

// GetReport retrieves a report
func (s *ReportStorage) GetReport(ctx context.Context, runID string) (*domain.RunReport, error) {
	data, err := s.client.Get(ctx, reportKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// DeleteReport deletes a report
func (s *ReportStorage) DeleteReport(ctx context.Context, runID string) error {
	n, err := s.client.Del(ctx, reportKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ports.ErrRunNotFound, runID)
	}

	s.logger.Debug("report deleted", zap.String("run_id", runID))
	return nil
}

// ListReports returns all stored reports, most recently submitted first
func (s *ReportStorage) ListReports(ctx context.Context) ([]*domain.RunReport, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	reports := make([]*domain.RunReport, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between SCAN and GET.
			continue
		}

		var report domain.RunReport
		if err := json.Unmarshal(data, &report); err != nil {
			s.logger.Warn("skipping unreadable report", zap.String("key", key), zap.Error(err))
			continue
		}

		reports = append(reports, &report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SubmittedAt.After(reports[j].SubmittedAt)
	})
	return reports, nil
}

func reportKey(runID string) string {
	return keyPrefix + runID
}
