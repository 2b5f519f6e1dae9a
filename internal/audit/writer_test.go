package audit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/task-event-pipeline/internal/correlation"
	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

type memoryRepo struct {
	records []*domain.AuditRecord
	err     error
}

func (r *memoryRepo) InsertAuditRecord(_ context.Context, rec *domain.AuditRecord) error {
	if r.err != nil {
		return r.err
	}
	rec.ID = "audit-1"
	rec.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.records = append(r.records, rec)
	return nil
}

func newTestWriter() *Writer {
	return NewWriter(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestAppend_EmptyChangesStoredAsNull(t *testing.T) {
	repo := &memoryRepo{}
	rec, err := newTestWriter().Append(context.Background(), repo, Entry{
		TaskID:  "t1",
		Action:  domain.AuditActionUpdated,
		Changes: []domain.ChangeRecord{},
	})

	require.NoError(t, err)
	assert.Nil(t, rec.Changes)
	assert.Equal(t, "audit-1", rec.ID)
	require.Len(t, repo.records, 1)
}

func TestAppend_ActorAndDisplayName(t *testing.T) {
	repo := &memoryRepo{}
	rec, err := newTestWriter().Append(context.Background(), repo, Entry{
		TaskID: "t1",
		Action: domain.AuditActionCreated,
		Actor:  &domain.Actor{ID: " u1 ", Name: "  ", Email: " ada@example.com "},
		Changes: []domain.ChangeRecord{
			{Field: "title", PreviousValue: nil, CurrentValue: "Ship"},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, "u1", *rec.ActorID)
	require.NotNil(t, rec.ActorDisplayName)
	assert.Equal(t, "ada@example.com", *rec.ActorDisplayName)
	assert.Len(t, rec.Changes, 1)
}

func TestAppend_NoActor(t *testing.T) {
	rec, err := newTestWriter().Append(context.Background(), &memoryRepo{}, Entry{
		TaskID: "t1",
		Action: domain.AuditActionDeleted,
	})

	require.NoError(t, err)
	assert.Nil(t, rec.ActorID)
	assert.Nil(t, rec.ActorDisplayName)
}

func TestAppend_PropagatesPersistenceFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := newTestWriter().Append(context.Background(), &memoryRepo{err: boom}, Entry{
		TaskID: "t1",
		Action: domain.AuditActionUpdated,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAppend_RequiresTaskID(t *testing.T) {
	repo := &memoryRepo{}
	_, err := newTestWriter().Append(context.Background(), repo, Entry{Action: domain.AuditActionCreated})
	assert.Error(t, err)
	assert.Empty(t, repo.records)
}

func TestAppend_RecordsRequestID(t *testing.T) {
	ctx := correlation.WithRequestID(context.Background(), "req-1")
	meta := map[string]any{"source": "api"}

	rec, err := newTestWriter().Append(ctx, &memoryRepo{}, Entry{
		TaskID:   "t1",
		Action:   domain.AuditActionUpdated,
		Metadata: meta,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "api", "requestId": "req-1"}, rec.Metadata)
	assert.NotContains(t, meta, "requestId", "caller metadata is not mutated")
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		actor *domain.Actor
		want  *string
	}{
		{"nil actor", nil, nil},
		{"name wins", &domain.Actor{ID: "u1", Name: " Ada ", Email: "ada@example.com"}, strPtr("Ada")},
		{"email fallback", &domain.Actor{ID: "u1", Email: "ada@example.com"}, strPtr("ada@example.com")},
		{"never the raw id", &domain.Actor{ID: "u1", Name: " ", Email: ""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.actor))
		})
	}
}

func strPtr(s string) *string { return &s }
