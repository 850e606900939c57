package services

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports every violated precondition of a request at once.
// Keys are input field names, values are human-readable messages. A request
// that fails validation is rejected wholesale; nothing is written.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}
