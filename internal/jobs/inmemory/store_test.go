package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bqflow/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	run := &jobs.TaskRun{JobID: "a", Kind: "load", Status: jobs.RunStatusPending}
	require.NoError(t, s.SaveRun(ctx, run))
	run.Status = jobs.RunStatusFailed

	got, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.RunStatusPending, got.Status)

	got.Status = jobs.RunStatusCompleted
	again, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.RunStatusPending, again.Status)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveRun(ctx, &jobs.TaskRun{}))
	_, err := s.GetRun(ctx, "missing")
	assert.Error(t, err)
	assert.Error(t, s.UpdateRunStatus(ctx, "missing", jobs.RunStatusFailed, "x"))
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, kind := range []string{"load", "query", "load", "copy"} {
		require.NoError(t, s.SaveRun(ctx, &jobs.TaskRun{
			JobID:     string(rune('a' + i)),
			Kind:      kind,
			Status:    jobs.RunStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.UpdateRunStatus(ctx, "d", jobs.RunStatusFailed, "boom"))

	tests := []struct {
		name   string
		filter jobs.RunFilter
		want   []string
	}{
		{name: "all oldest first", filter: jobs.RunFilter{}, want: []string{"a", "b", "c", "d"}},
		{name: "by kind", filter: jobs.RunFilter{Kind: "load"}, want: []string{"a", "c"}},
		{name: "by status", filter: jobs.RunFilter{Status: jobs.RunStatusFailed}, want: []string{"d"}},
		{name: "limit", filter: jobs.RunFilter{Limit: 2}, want: []string{"a", "b"}},
		{name: "offset", filter: jobs.RunFilter{Offset: 3}, want: []string{"d"}},
		{name: "offset past end", filter: jobs.RunFilter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(runs))
			for _, r := range runs {
				ids = append(ids, r.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	got, err := s.GetRun(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Error)
}
