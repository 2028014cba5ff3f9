package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

func TestReportStorage(t *testing.T) {
	ctx := context.Background()
	s := NewReportStorage()

	older := &domain.RunReport{RunID: "a", Status: domain.RunStatusSucceeded, SubmittedAt: time.Now().Add(-time.Minute)}
	newer := &domain.RunReport{RunID: "b", Status: domain.RunStatusRunning, SubmittedAt: time.Now(),
		Jobs: []domain.JobReport{{ID: "build", Status: domain.JobStatusRunning}}}
	require.NoError(t, s.SaveReport(ctx, older))
	require.NoError(t, s.SaveReport(ctx, newer))

	got, err := s.GetReport(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	// Stored copies are isolated from callers.
	got.Jobs[0].Status = domain.JobStatusFailed
	again, _ := s.GetReport(ctx, "b")
	assert.Equal(t, domain.JobStatusRunning, again.Jobs[0].Status)

	list, err := s.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].RunID)

	require.NoError(t, s.DeleteReport(ctx, "a"))
	_, err = s.GetReport(ctx, "a")
	assert.True(t, errors.Is(err, ports.ErrRunNotFound))
	assert.True(t, errors.Is(s.DeleteReport(ctx, "a"), ports.ErrRunNotFound))
}
