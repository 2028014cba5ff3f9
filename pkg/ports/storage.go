package ports

import (
	"context"
	"errors"

	"github.com/aescanero/dagrun/pkg/domain"
)

// ErrRunNotFound is returned when no report exists for a run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists run reports.
type RunStore interface {
	SaveReport(ctx context.Context, report *domain.RunReport) error
	GetReport(ctx context.Context, runID string) (*domain.RunReport, error)
	ListReports(ctx context.Context) ([]*domain.RunReport, error)
	DeleteReport(ctx context.Context, runID string) error
}
