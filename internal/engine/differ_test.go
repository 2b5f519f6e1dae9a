package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func baseSnapshot() domain.TaskSnapshot {
	return domain.TaskSnapshot{
		Title:       "Write docs",
		Description: ptr("first draft"),
		Status:      domain.TaskStatusTodo,
		Priority:    domain.TaskPriorityMedium,
		DueDate:     ptr(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Assignees: []domain.Assignee{
			{ID: "u2", Name: "Grace"},
			{ID: "u1", Name: "Ada"},
		},
	}
}

func TestDiff_IdenticalSnapshots(t *testing.T) {
	s := baseSnapshot()
	assert.Empty(t, Diff(s, s))
}

func TestDiff_FieldOrderIsFixed(t *testing.T) {
	prev := baseSnapshot()
	curr := baseSnapshot()
	curr.Assignees = []domain.Assignee{{ID: "u3"}}
	curr.Status = domain.TaskStatusDone
	curr.Title = "Write better docs"

	changes := Diff(prev, curr)
	require.Len(t, changes, 3)
	assert.Equal(t, "title", changes[0].Field)
	assert.Equal(t, "status", changes[1].Field)
	assert.Equal(t, "assignees", changes[2].Field)

	assert.Equal(t, "Write docs", changes[0].PreviousValue)
	assert.Equal(t, "Write better docs", changes[0].CurrentValue)
	assert.Equal(t, "TODO", changes[1].PreviousValue)
	assert.Equal(t, "DONE", changes[1].CurrentValue)
}

func TestDiff_AssigneeOrderIgnored(t *testing.T) {
	prev := baseSnapshot()
	curr := baseSnapshot()
	curr.Assignees = []domain.Assignee{prev.Assignees[1], prev.Assignees[0]}

	assert.Empty(t, Diff(prev, curr))
}

func TestDiff_NilAndEmptyAssigneesAreEqual(t *testing.T) {
	prev := baseSnapshot()
	prev.Assignees = nil
	curr := baseSnapshot()
	curr.Assignees = []domain.Assignee{}

	assert.Empty(t, Diff(prev, curr))
}

func TestDiff_AssigneeDisplayFieldChange(t *testing.T) {
	prev := baseSnapshot()
	curr := baseSnapshot()
	curr.Assignees = []domain.Assignee{
		{ID: "u1", Name: "Ada Lovelace"},
		{ID: "u2", Name: "Grace"},
	}

	changes := Diff(prev, curr)
	require.Len(t, changes, 1)
	assert.Equal(t, "assignees", changes[0].Field)
	assert.Equal(t, []domain.Assignee{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Grace"}}, changes[0].PreviousValue)
}

func TestDiff_DueDate(t *testing.T) {
	t.Run("same instant in another zone", func(t *testing.T) {
		prev := baseSnapshot()
		curr := baseSnapshot()
		zone := time.FixedZone("UTC+2", 2*60*60)
		curr.DueDate = ptr(prev.DueDate.In(zone))
		assert.Empty(t, Diff(prev, curr))
	})

	t.Run("nil and zero are equal", func(t *testing.T) {
		prev := baseSnapshot()
		prev.DueDate = nil
		curr := baseSnapshot()
		curr.DueDate = &time.Time{}
		assert.Empty(t, Diff(prev, curr))
	})

	t.Run("cleared", func(t *testing.T) {
		prev := baseSnapshot()
		curr := baseSnapshot()
		curr.DueDate = nil

		changes := Diff(prev, curr)
		require.Len(t, changes, 1)
		assert.Equal(t, "dueDate", changes[0].Field)
		assert.Equal(t, "2026-03-01T12:00:00.000Z", changes[0].PreviousValue)
		assert.Nil(t, changes[0].CurrentValue)
	})
}

func TestDiff_DescriptionNullEquivalence(t *testing.T) {
	prev := baseSnapshot()
	prev.Description = nil
	curr := baseSnapshot()
	curr.Description = nil
	assert.Empty(t, Diff(prev, curr))

	curr.Description = ptr("")
	changes := Diff(prev, curr)
	require.Len(t, changes, 1)
	assert.Equal(t, "description", changes[0].Field)
}

func TestDiff_Idempotent(t *testing.T) {
	prev := baseSnapshot()
	curr := baseSnapshot()
	curr.Priority = domain.TaskPriorityUrgent

	first := Diff(prev, curr)
	second := Diff(prev, curr)
	assert.Equal(t, first, second)
}

func TestFormatInstant(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("X", -5*60*60))
	assert.Equal(t, "2026-01-02T08:04:05.006Z", FormatInstant(ts))
}
