// Package wire holds the small encode/decode helpers used by the cubed CLI
// client: JSON is the on-the-wire cube descriptor format, and jsonpath lets
// the CLI project a single field out of a decoded response.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/theory/jsonpath"
)

// Select evaluates a JSONPath expression against a raw JSON document and
// returns the matched values re-encoded as JSON. Used by the cubed CLI's
// `--select` flag to pull one field (e.g. a cube's band list) out of a
// `GET /cube/{id}` response.
func Select(raw json.RawMessage, path string) ([]json.RawMessage, error) {
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("wire: parse jsonpath %q: %w", path, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("wire: unmarshal document: %w", err)
	}

	matches := p.Select(doc)
	out := make([]json.RawMessage, 0, len(matches))
	for _, m := range matches {
		encoded, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("wire: re-encode match: %w", err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

// Pretty re-encodes raw as indented JSON, for human-facing CLI output.
func Pretty(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("wire: indent: %w", err)
	}
	return buf.Bytes(), nil
}
