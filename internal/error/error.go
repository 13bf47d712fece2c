package error

import (
	"fmt"
	"strings"
)

// HostToolError is returned when the host benchmarking tool fails. It keeps
// the tail of the tool's output so the caller can log what went wrong.
type HostToolError struct {
	Inner    error
	Message  string
	ExitCode int
	Output   []string
	Misc     map[string]any
}

func Wrap(err error, message string, exitCode int, output []string, misc map[string]any) *HostToolError {
	return &HostToolError{
		Inner:    err,
		Message:  message,
		ExitCode: exitCode,
		Output:   output,
		Misc:     misc,
	}
}

func (e *HostToolError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.ExitCode != 0 {
		fmt.Fprintf(&sb, " (exit code %d)", e.ExitCode)
	}
	if e.Inner != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Inner.Error())
	}
	return sb.String()
}

func (e *HostToolError) Unwrap() error {
	return e.Inner
}

// OutputTail joins the captured output lines for logging.
func (e *HostToolError) OutputTail() string {
	return strings.Join(e.Output, "\n")
}
