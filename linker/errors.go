package linker

import (
	"strings"
)

// LinkError provides context when a module fails to link.
type LinkError struct {
	Cause  error
	Phase  string
	Module string
	Reason string
}

func (e *LinkError) Error() string {
	var b strings.Builder
	b.WriteString("link failed")

	if e.Phase != "" {
		b.WriteString(" at ")
		b.WriteString(e.Phase)
	}

	if e.Module != "" {
		b.WriteString(" (module ")
		b.WriteString(e.Module)
		b.WriteString(")")
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *LinkError) Unwrap() error {
	return e.Cause
}

// linkError creates a LinkError with the given parameters
func linkError(phase, module, reason string, cause error) *LinkError {
	return &LinkError{
		Phase:  phase,
		Module: module,
		Reason: reason,
		Cause:  cause,
	}
}
