package pattern

import "fmt"

// ValidationError is a schema-level problem with a pattern file (missing
// required fields, unsupported version).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// PatternError is a problem with one individual pattern (invalid regex,
// duplicate ID, unknown kind).
type PatternError struct {
	Index   int    // 0-based index of the pattern in the file
	ID      string // may be empty if the id field itself is missing
	Field   string
	Message string
	Cause   error
}

func (e *PatternError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("pattern %q: %s: %s", e.ID, e.Field, e.Message)
	}
	return fmt.Sprintf("pattern[%d]: %s: %s", e.Index, e.Field, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is/As.
func (e *PatternError) Unwrap() error {
	return e.Cause
}
