package executor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/michaelbrown/pyexec/internal/storage"
)

// Kind classifies a failed execution.
type Kind int

const (
	// KindInput is a problem with the submission itself.
	KindInput Kind = iota + 1
	// KindInfrastructure is the service failing to stage or start the script.
	KindInfrastructure
	// KindExecution is the runner exiting non-zero: syntax errors,
	// exceptions, a missing main() or an unserializable result.
	KindExecution
	// KindProtocol is a zero exit without a usable result line.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindInfrastructure:
		return "infrastructure"
	case KindExecution:
		return "execution"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	if k == KindInfrastructure {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (k Kind) status() storage.ExecutionStatus {
	switch k {
	case KindExecution:
		return storage.StatusExecutionFailed
	case KindProtocol:
		return storage.StatusProtocolError
	default:
		return storage.StatusInfrastructureError
	}
}

// Error messages. Clients match on these, keep them stable.
const (
	MsgNotJSON         = "Request body must be JSON"
	MsgInvalidJSON     = "Invalid JSON"
	MsgScriptRequired  = "`script` must be a non-empty string"
	MsgExecutionFailed = "Script execution failed"
	MsgResultMissing   = "main() result not found. Ensure script defines main() and returns JSON."
	MsgResultNotJSON   = "main() did not return JSON-serializable object"
	MsgStagingFailed   = "Failed to prepare script for execution"
	MsgRunFailed       = "Failed to run script"
)

// Error is a classified pipeline failure. Its JSON form is the failure
// response body.
type Error struct {
	Kind     Kind
	Message  string
	ExitCode *int
	Stderr   *string
	Stdout   *string
	Degraded bool
	// Err is the underlying cause. It is logged, never sent to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON renders {"error", "exit_code"?, "stderr"?, "stdout"?}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error    string  `json:"error"`
		ExitCode *int    `json:"exit_code,omitempty"`
		Stderr   *string `json:"stderr,omitempty"`
		Stdout   *string `json:"stdout,omitempty"`
	}{e.Message, e.ExitCode, e.Stderr, e.Stdout})
}

// InputError returns a KindInput error with the given message.
func InputError(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg}
}

// AsError returns err as an *Error. Unclassified errors become
// infrastructure errors so nothing internal reaches a client.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInfrastructure, Message: MsgRunFailed, Err: err}
}

// Response is a successful execution.
type Response struct {
	Result   json.RawMessage `json:"result"`
	Stdout   string          `json:"stdout"`
	Degraded bool            `json:"-"`
}
