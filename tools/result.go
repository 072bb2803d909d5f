package tools

import "fmt"

// ErrorKind classifies a failed tool result.
type ErrorKind int

const (
	NoError ErrorKind = iota
	InvalidArguments
	ToolExecutionError
	SessionTimeout
	SessionDead
	SessionError
	UserDenied
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return ""
	case InvalidArguments:
		return "InvalidArguments"
	case ToolExecutionError:
		return "ToolExecutionError"
	case SessionTimeout:
		return "SessionTimeout"
	case SessionDead:
		return "SessionDead"
	case SessionError:
		return "SessionError"
	case UserDenied:
		return "UserDenied"
	}
	return "Unknown"
}

// Result is what a tool returns to the agent loop. Output is the text the
// model sees; Err is kept for logs only.
type Result struct {
	OK     bool
	Output string
	Error  ErrorKind
	Err    error
	// Fatal ends the run as failed.
	Fatal bool
}

func OK(output string) Result {
	return Result{OK: true, Output: output}
}

func Failf(kind ErrorKind, format string, a ...interface{}) Result {
	return Result{Error: kind, Output: fmt.Sprintf(format, a...)}
}

// ErrorResult wraps err as a ToolExecutionError.
func ErrorResult(err error) Result {
	return Result{Error: ToolExecutionError, Output: err.Error(), Err: err}
}

// Observation renders the result the way it is replayed to the model.
func (r Result) Observation() string {
	if r.OK {
		return r.Output
	}
	return fmt.Sprintf("ERROR (%s): %s", r.Error, r.Output)
}
