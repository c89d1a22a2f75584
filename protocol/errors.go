package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDelimiter means the reply has no ```json ... ``` block.
	ErrMissingDelimiter = errors.New("missing json code block")
	// ErrMalformedSyntax means the fenced block is not a valid JSON object.
	ErrMalformedSyntax = errors.New("malformed json")
	// ErrInvalidStructure means required fields are missing or mistyped.
	ErrInvalidStructure = errors.New("invalid structure")
)

// StructureError describes a field contract violation.
type StructureError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *StructureError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidStructure.
func (e *StructureError) Unwrap() error { return ErrInvalidStructure }

// UnknownActionError is returned by Decode for an unrecognized action kind.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("You requested an unknown action: %s", e.Action)
}

func missingField(k Kind, field string) *StructureError {
	return &StructureError{Kind: k, Field: field, Message: "Missing required field: " + field}
}

func invalidField(k Kind, field, msg string) *StructureError {
	return &StructureError{Kind: k, Field: field, Message: msg}
}

// Corrective instructions sent back to a model whose reply failed to parse.
const (
	CorrectionMissingDelimiter = "Did you forget you MUST respond with a JSON within a code block?"
	CorrectionMalformed        = "The JSON block you provided is malformed! Write it correctly!"
	CorrectionInvalidStructure = "Fix the JSON!"
)

// Correction maps a Parse error to the instruction that asks the model to fix
// its reply. It returns "" for errors that are not protocol failures.
func Correction(err error) string {
	switch {
	case errors.Is(err, ErrMissingDelimiter):
		return CorrectionMissingDelimiter
	case errors.Is(err, ErrMalformedSyntax):
		return CorrectionMalformed
	case errors.Is(err, ErrInvalidStructure):
		return CorrectionInvalidStructure
	default:
		return ""
	}
}
