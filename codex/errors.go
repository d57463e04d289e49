package codex

import "fmt"

// LaunchError reports that the codex executable could not be located or
// spawned.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch codex app-server: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed inbound line or a stream that closed
// before the turn finished. It indicates a contract violation between the
// engine and the process and is never retried automatically.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ThreadError carries a server-reported error from the thread/start or
// thread/resume reply.
type ThreadError struct {
	Message string
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("thread request failed: %s", e.Message)
}

// TurnError carries a server-reported error from the turn/start reply.
type TurnError struct {
	Message string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn request failed: %s", e.Message)
}

// MissingThreadError reports that a turn ended without the server ever
// supplying a thread id. Without one there is nothing for the caller to
// resume, so the turn cannot be reported as successful.
type MissingThreadError struct{}

func (e *MissingThreadError) Error() string {
	return "turn completed without a thread id"
}
