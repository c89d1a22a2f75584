package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	startMarker = "```json"
	endMarker   = "```"
)

// Record is a decoded JSON object from a model reply. Numbers are kept as
// json.Number so integer fields can be checked exactly.
type Record map[string]any

// Action returns the action field, or "" when absent or not a string.
func (r Record) Action() string {
	s, _ := r["action"].(string)
	return s
}

// Extract returns the content between the first ```json marker and the last
// ``` marker, trimmed.
func Extract(raw string) (string, error) {
	start := strings.Index(raw, startMarker)
	if start == -1 {
		return "", fmt.Errorf("%w: could not find start marker %q", ErrMissingDelimiter, startMarker)
	}
	body := start + len(startMarker)
	end := strings.LastIndex(raw, endMarker)
	if end < body {
		return "", fmt.Errorf("%w: could not find end marker %q", ErrMissingDelimiter, endMarker)
	}
	return strings.TrimSpace(raw[body:end]), nil
}

// Parse extracts and decodes the fenced JSON block of a model reply and checks
// that it names an action.
func Parse(raw string) (Record, error) {
	block, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	rec, err := decodeObject(block)
	if err != nil {
		return nil, err
	}
	if _, ok := rec["action"]; !ok {
		return nil, missingField("", "action")
	}
	if rec.Action() == "" {
		return nil, invalidField("", "action", "Field action must be a non-empty string")
	}
	return rec, nil
}

func decodeObject(block string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSyntax, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedSyntax)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedSyntax)
	}
	return rec, nil
}

// Encode renders an action in its wire form as indented JSON.
func Encode(a Action) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(a); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Fence wraps an encoded action in a ```json block, the form models reply in.
func Fence(a Action) (string, error) {
	body, err := Encode(a)
	if err != nil {
		return "", err
	}
	return startMarker + "\n" + body + "\n" + endMarker, nil
}
