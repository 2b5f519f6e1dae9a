package engine

import (
	"strings"
)

// recipientShape extracts candidate ids from one known recipient form.
// expand is only set on shapes that hold further recipient items.
type recipientShape struct {
	key    string
	nested string
	expand bool
}

// recipientShapes is tried in order; the first shape that yields at least
// one usable id wins for a given object.
var recipientShapes = []recipientShape{
	{key: "id"},
	{key: "userId"},
	{key: "recipientId"},
	{key: "ids", expand: true},
	{key: "user", nested: "id"},
	{key: "assignee", nested: "id"},
	{key: "values", expand: true},
}

// taskRecipientFields are the task fields recipients are derived from when
// an event names none explicitly.
var taskRecipientFields = []string{"assignees", "responsibles", "responsibleIds"}

// recipientSet keeps first-occurrence order.
type recipientSet struct {
	seen map[string]struct{}
	ids  []string
}

func newRecipientSet() *recipientSet {
	return &recipientSet{seen: make(map[string]struct{})}
}

func (s *recipientSet) add(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; !ok {
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return true
}

func (s *recipientSet) list() []string {
	if s.ids == nil {
		return []string{}
	}
	return s.ids
}

// ResolveRecipients normalizes heterogeneous recipient items into a
// deduplicated id list. Unusable candidates are discarded silently.
func ResolveRecipients(raw []any) []string {
	set := newRecipientSet()
	for _, item := range raw {
		collectRecipient(set, item, true)
	}
	return set.list()
}

// ResolveTaskRecipients resolves explicit recipients, falling back to the
// task's assignee-like fields and finally to the actor.
func ResolveTaskRecipients(raw []any, task map[string]any, actorID string) []string {
	if ids := ResolveRecipients(raw); len(ids) > 0 {
		return ids
	}

	set := newRecipientSet()
	for _, field := range taskRecipientFields {
		v, ok := task[field]
		if !ok || v == nil {
			continue
		}
		if items, ok := asList(v); ok {
			for _, item := range items {
				collectRecipient(set, item, true)
			}
			continue
		}
		collectRecipient(set, v, true)
	}
	if len(set.ids) > 0 {
		return set.ids
	}

	set.add(actorID)
	return set.list()
}

// collectRecipient adds ids found in item. Array-valued shapes (ids, values)
// recurse exactly one level: their items may be ids or objects, but an ids
// or values array inside one of those items is ignored.
func collectRecipient(set *recipientSet, item any, expand bool) bool {
	switch v := item.(type) {
	case string:
		return set.add(v)
	case map[string]any:
		for _, shape := range recipientShapes {
			if shape.expand && !expand {
				continue
			}
			if extractShape(set, v, shape) {
				return true
			}
		}
	case map[string]string:
		for _, key := range []string{"id", "userId", "recipientId"} {
			if set.add(v[key]) {
				return true
			}
		}
	}
	return false
}

func extractShape(set *recipientSet, obj map[string]any, shape recipientShape) bool {
	v, ok := obj[shape.key]
	if !ok || v == nil {
		return false
	}

	if shape.nested != "" {
		inner, ok := v.(map[string]any)
		if !ok {
			return false
		}
		s, ok := inner[shape.nested].(string)
		return ok && set.add(s)
	}

	if shape.expand {
		items, ok := asList(v)
		if !ok {
			return false
		}
		found := false
		for _, it := range items {
			if collectRecipient(set, it, false) {
				found = true
			}
		}
		return found
	}

	s, ok := v.(string)
	return ok && set.add(s)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
