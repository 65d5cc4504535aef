package stream

import "strings"

// LineParser splits decoded text fragments into newline-terminated JSON
// records. The unterminated tail of each fragment is buffered and prefixed to
// the next one.
type LineParser struct {
	buf string
}

// Feed consumes one fragment and returns the records completed by it, in wire
// order. On a malformed line it returns the records parsed before it together
// with a *ParseError; the parser must not be fed again after that.
func (p *LineParser) Feed(fragment string) ([]Record, error) {
	chunk := fragment
	if p.buf != "" {
		chunk = p.buf + fragment
	}
	lines := strings.Split(chunk, "\n")
	p.buf = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var out []Record
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Pending returns the buffered partial line.
func (p *LineParser) Pending() string { return p.buf }
