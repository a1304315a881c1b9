package store

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Status Codes
// --------------------------------------------------------------------------

// StatusCode is the outcome of a store operation.
// The numeric values are part of the wire format and must not change.
type StatusCode uint8

const (
	StatusOK               StatusCode = iota // 0: Operation succeeded.
	StatusInvalidArgument                    // 1: The request was malformed (e.g. empty path).
	StatusLookupError                        // 2: The key does not exist.
	StatusTypeError                          // 3: The entry has the wrong type for the operation.
	StatusTimeout                            // 4: The client-specified timeout elapsed.
	StatusOperationError                     // 5: The storage engine failed.
	StatusConditionNotMet                    // 6: A precondition of the operation was not satisfied.
	StatusUnknownError                       // 7: Anything else.
	StatusSessionExpired                     // 8: The client session is no longer known to the cluster.
)

// TimeoutMessage is the error message of every TIMEOUT result.
const TimeoutMessage = "Client-specified timeout elapsed"

var statusNames = [...]string{
	StatusOK:              "OK",
	StatusInvalidArgument: "INVALID_ARGUMENT",
	StatusLookupError:     "LOOKUP_ERROR",
	StatusTypeError:       "TYPE_ERROR",
	StatusTimeout:         "TIMEOUT",
	StatusOperationError:  "OPERATION_ERROR",
	StatusConditionNotMet: "CONDITION_NOT_MET",
	StatusUnknownError:    "UNKNOWN_ERROR",
	StatusSessionExpired:  "SESSION_EXPIRED",
}

// Valid reports whether s is one of the defined status codes.
func (s StatusCode) Valid() bool {
	return int(s) < len(statusNames)
}

func (s StatusCode) String() string {
	if !s.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return statusNames[s]
}

// UnmarshalJSON accepts both the numeric value (the encoding used by json.Marshal) and the name
func (s *StatusCode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for code, n := range statusNames {
			if n == name {
				*s = StatusCode(code)
				return nil
			}
		}
		return fmt.Errorf("unknown status code %q", name)
	}

	var code uint8
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("invalid status code: %s", data)
	}
	*s = StatusCode(code)
	return nil
}

// --------------------------------------------------------------------------
// Result
// --------------------------------------------------------------------------

// Result is the outcome of a single store operation.
// An OK result never carries an error message, every other status does.
type Result struct {
	Status StatusCode `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// OK returns a successful result
func OK() Result {
	return Result{Status: StatusOK}
}

// NewResult creates a result with a formatted error message.
// A status of StatusOK drops the message.
func NewResult(status StatusCode, format string, args ...any) Result {
	if status == StatusOK {
		return OK()
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if msg == "" {
		msg = status.String()
	}
	return Result{Status: status, Error: msg}
}

// TimeoutResult is returned when the client-specified deadline passed
func TimeoutResult() Result {
	return Result{Status: StatusTimeout, Error: TimeoutMessage}
}

// IsOK reports whether the operation succeeded
func (r Result) IsOK() bool {
	return r.Status == StatusOK
}

// Err converts the result into an error, nil for OK results
func (r Result) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &Error{Code: r.Status, Msg: r.Error}
}

func (r Result) String() string {
	if r.Status == StatusOK {
		return r.Status.String()
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Error)
}

// StatusFromWire builds a result from a status code and message received from a peer.
// Unknown codes become INVALID_ARGUMENT, keeping the original message.
func StatusFromWire(code uint8, msg string) Result {
	status := StatusCode(code)
	if !status.Valid() {
		return Result{
			Status: StatusInvalidArgument,
			Error: fmt.Sprintf("Did not understand status code in response (%d). Original error was: %s",
				code, msg),
		}
	}
	return NewResult(status, msg)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a status code and an error message.
type Error struct {
	Code StatusCode // The status code
	Msg  string     // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: StatusTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code StatusCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// ResultOf converts an error into a result.
// *Error values keep their code, all other errors become UNKNOWN_ERROR.
func ResultOf(err error) Result {
	if err == nil {
		return OK()
	}
	if se, ok := err.(*Error); ok {
		return NewResult(se.Code, "%s", se.Msg)
	}
	return NewResult(StatusUnknownError, "%s", err.Error())
}
