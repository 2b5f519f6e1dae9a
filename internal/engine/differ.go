package engine

import (
	"reflect"
	"sort"
	"time"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

// isoMillis matches the ISO-8601 form other services emit for instants.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type diffField struct {
	name      string
	normalize func(s domain.TaskSnapshot) any
}

// diffFields is the fixed order change records are produced in.
var diffFields = []diffField{
	{"title", func(s domain.TaskSnapshot) any { return normalizeScalar(s.Title) }},
	{"description", func(s domain.TaskSnapshot) any { return normalizeOptional(s.Description) }},
	{"status", func(s domain.TaskSnapshot) any { return normalizeScalar(string(s.Status)) }},
	{"priority", func(s domain.TaskSnapshot) any { return normalizeScalar(string(s.Priority)) }},
	{"dueDate", func(s domain.TaskSnapshot) any { return normalizeInstant(s.DueDate) }},
	{"assignees", func(s domain.TaskSnapshot) any { return normalizeAssignees(s.Assignees) }},
}

// Diff returns one change record per field whose normalized value differs
// between previous and current. It has no side effects.
func Diff(previous, current domain.TaskSnapshot) []domain.ChangeRecord {
	var changes []domain.ChangeRecord
	for _, f := range diffFields {
		prev := f.normalize(previous)
		curr := f.normalize(current)
		if reflect.DeepEqual(prev, curr) {
			continue
		}
		changes = append(changes, domain.ChangeRecord{
			Field:         f.name,
			PreviousValue: prev,
			CurrentValue:  curr,
		})
	}
	return changes
}

// normalizeScalar maps the zero value to nil so an unset enum or title
// compares equal to null.
func normalizeScalar(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func normalizeOptional(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func normalizeInstant(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return FormatInstant(*t)
}

// FormatInstant renders t as a UTC ISO-8601 string with millisecond precision.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// normalizeAssignees treats nil and empty as the same value and ignores order.
func normalizeAssignees(in []domain.Assignee) any {
	out := make([]domain.Assignee, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Assignee{ID: a.ID, Name: a.Name, Email: a.Email})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
