package flows

import (
	"fmt"
	"strings"
)

// ParseError is an error reading a flow definition.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// RunError is an error starting or resuming a run, e.g. resuming a run which
// has already completed.
type RunError struct {
	Message string
}

func (e *RunError) Error() string {
	return e.Message
}

// LoopError is returned when a run revisits a node without passing through a
// pause, i.e. the flow would run forever.
type LoopError struct {
	Path []string // UUIDs of the nodes visited before the loop was detected
}

func (e *LoopError) Error() string {
	return "Non-pausing loop detected after path: " + strings.Join(e.Path, ", ")
}
