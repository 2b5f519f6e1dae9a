package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Pick applies the propagation rule: an id already on the payload beats the
// ambient id; with neither, no id is emitted.
func Pick(payloadID, ambientID string) string {
	if id := strings.TrimSpace(payloadID); id != "" {
		return id
	}
	return strings.TrimSpace(ambientID)
}

// Attach returns body extended with the request id chosen by Pick, along
// with that id for the transport header. Object payloads that already carry
// a usable requestId, and non-object payloads, are returned untouched.
func Attach(ctx context.Context, body []byte) ([]byte, string, error) {
	ambient := RequestIDFromContext(ctx)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return body, ambient, nil
	}

	var existing string
	raw, present := fields[FieldRequestID]
	if present {
		_ = json.Unmarshal(raw, &existing)
	}

	id := Pick(existing, ambient)
	switch {
	case id == "":
		return body, "", nil
	case strings.TrimSpace(existing) != "":
		// A usable payload id stays byte-for-byte; only the header is trimmed.
		return body, id, nil
	case present:
		// The field exists but is unusable (null, empty, not a string).
		return replaceMember(body, id)
	}

	out, err := splice(body, id)
	if err != nil {
		return nil, "", err
	}
	return out, id, nil
}

// splice inserts the requestId field as the first member of a JSON object,
// preserving the original bytes of every other member.
func splice(body []byte, id string) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	encoded, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("encoding request id: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(trimmed) + len(encoded) + len(FieldRequestID) + 5)
	buf.WriteString(`{"` + FieldRequestID + `":`)
	buf.Write(encoded)

	inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
	if len(inner) == 0 {
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	buf.WriteByte(',')
	buf.Write(trimmed[1:])
	return buf.Bytes(), nil
}

// replaceMember rewrites every requestId member of a JSON object with id,
// keeping the other members and their order intact.
func replaceMember(body []byte, id string) ([]byte, string, error) {
	encoded, err := json.Marshal(id)
	if err != nil {
		return nil, "", fmt.Errorf("encoding request id: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, "", fmt.Errorf("reading envelope: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(encoded))
	buf.WriteByte('{')
	for i := 0; dec.More(); i++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, "", fmt.Errorf("reading envelope key: %w", err)
		}
		name, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, "", fmt.Errorf("reading envelope member %q: %w", name, err)
		}
		if name == FieldRequestID {
			value = encoded
		}

		key, err := json.Marshal(name)
		if err != nil {
			return nil, "", fmt.Errorf("encoding envelope key: %w", err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), id, nil
}

// FromPayload reads the requestId field of a JSON object body, if any.
func FromPayload(body []byte) string {
	var envelope struct {
		RequestID any `json:"requestId"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	s, _ := envelope.RequestID.(string)
	return strings.TrimSpace(s)
}
