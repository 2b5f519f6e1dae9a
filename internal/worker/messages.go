package worker

import (
	"fmt"
	"strings"

	"github.com/Priya8975/task-event-pipeline/internal/domain"
)

const (
	fallbackActorName  = "System"
	fallbackAuthorName = "Someone"
)

var taskVerbs = map[string]string{
	domain.PatternTaskCreated: "created",
	domain.PatternTaskUpdated: "updated",
	domain.PatternTaskDeleted: "deleted",
}

// trimmedName returns nil for missing or blank names so they are never
// stored as empty strings.
func trimmedName(name *string) *string {
	if name == nil {
		return nil
	}
	s := strings.TrimSpace(*name)
	if s == "" {
		return nil
	}
	return &s
}

func nameOr(name *string, fallback string) string {
	if n := trimmedName(name); n != nil {
		return *n
	}
	return fallback
}

func taskMessage(pattern string, actorName *string, title string, fields []string) string {
	actor := nameOr(actorName, fallbackActorName)
	verb := taskVerbs[pattern]
	if verb == "" {
		verb = "changed"
	}

	var msg string
	if t := strings.TrimSpace(title); t != "" {
		msg = fmt.Sprintf("%s %s task %q", actor, verb, t)
	} else {
		msg = fmt.Sprintf("%s %s a task", actor, verb)
	}
	if pattern == domain.PatternTaskUpdated && len(fields) > 0 {
		msg += " (" + strings.Join(fields, ", ") + ")"
	}
	return msg
}

func commentMessage(authorName *string, title, text string) string {
	author := nameOr(authorName, fallbackAuthorName)

	msg := author + " commented"
	if t := strings.TrimSpace(title); t != "" {
		msg += fmt.Sprintf(" on task %q", t)
	}
	if text = strings.TrimSpace(text); text != "" {
		msg += ": " + text
	}
	return msg
}
