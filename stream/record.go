package stream

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Kind tags which variant of the record union a line carried.
type Kind int

const (
	KindOther Kind = iota
	KindStatus
	KindError
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindContent:
		return "content"
	default:
		return "other"
	}
}

// Record is one parsed line of a generation stream.
type Record struct {
	Kind      Kind
	Status    string
	HasStatus bool
	Error     string
	Content   string
	Raw       gjson.Result
}

// contentPaths lists where backends put the incremental text delta, in
// lookup order: plain records, OpenAI-style chat and completion chunks,
// Ollama chat and generate chunks.
var contentPaths = []string{
	"content",
	"choices.0.delta.content",
	"choices.0.text",
	"message.content",
	"response",
}

// ParseError reports a line that is not valid JSON.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("stream: malformed record %q: %v", line, e.Err)
	}
	return fmt.Sprintf("stream: malformed record %q", line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRecord classifies one JSON line. Kind names the leading variant:
// error wins over status, status over content. Status and Content are filled
// whenever present, so a status record may still carry a delta.
func ParseRecord(line string) (Record, error) {
	if !gjson.Valid(line) {
		return Record{}, &ParseError{Line: line}
	}
	raw := gjson.Parse(line)
	rec := Record{Raw: raw}

	if !raw.IsObject() {
		return rec, nil
	}
	if v := raw.Get("status"); v.Exists() && v.Type != gjson.Null {
		rec.Status = v.String()
		rec.HasStatus = true
	}
	content := false
	for _, p := range contentPaths {
		if v := raw.Get(p); v.Exists() && v.Type != gjson.Null {
			rec.Content = v.String()
			content = true
			break
		}
	}
	// a choices chunk with an empty delta (role-only, finish_reason) still
	// counts as content so consumers see the wire cadence
	if !content && raw.Get("choices").Exists() {
		content = true
	}

	switch v := raw.Get("error"); {
	case v.Exists() && v.Type != gjson.Null:
		rec.Kind = KindError
		rec.Error = errorText(v)
	case rec.HasStatus:
		rec.Kind = KindStatus
	case content:
		rec.Kind = KindContent
	}
	return rec, nil
}

func errorText(v gjson.Result) string {
	if v.IsObject() {
		if m := v.Get("message"); m.Exists() {
			return m.String()
		}
		return v.Raw
	}
	return v.String()
}
