package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

// ReportStorage implements ports.RunStore using an in-memory map
type ReportStorage struct {
	reports map[string]*domain.RunReport
	mu      sync.RWMutex
}

// NewReportStorage creates a new in-memory report storage
func NewReportStorage() *ReportStorage {
	return &ReportStorage{
		reports: make(map[string]*domain.RunReport),
	}
}

// SaveReport stores a copy of the report
func (s *ReportStorage) SaveReport(ctx context.Context, report *domain.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.RunID] = copyReport(report)
	return nil
}

// GetReport returns a copy of a stored report
func (s *ReportStorage) GetReport(ctx context.Context, runID string) (*domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrRunNotFound, runID)
	}
	return copyReport(report), nil
}

// DeleteReport removes a report
func (s *ReportStorage) DeleteReport(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[runID]; !ok {
		return fmt.Errorf("%w: %s", ports.ErrRunNotFound, runID)
	}
	delete(s.reports, runID)
	return nil
}

// ListReports returns all reports, most recently submitted first
func (s *ReportStorage) ListReports(ctx context.Context) ([]*domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*domain.RunReport, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, copyReport(r))
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SubmittedAt.After(reports[j].SubmittedAt)
	})
	return reports, nil
}

// copyReport copies the report and its job list so callers cannot mutate
// stored state. Per-job maps are never modified after a report is built.
func copyReport(r *domain.RunReport) *domain.RunReport {
	c := *r
	c.Jobs = append([]domain.JobReport(nil), r.Jobs...)
	return &c
}
