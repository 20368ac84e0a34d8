// Package apperr defines the error taxonomy shared by the session
// controller, the job poller and the transport adapter.
//
// Every failure that crosses a package boundary is an *Error carrying a
// Kind. Callers branch on the kind with KindOf or errors.As rather than by
// matching message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes failures.
type Kind int

const (
	// KindUnknown is reported for errors that are not an *Error.
	KindUnknown Kind = iota
	// KindInput indicates a missing or invalid input artifact.
	KindInput
	// KindState indicates an operation invoked in the wrong session state.
	KindState
	// KindNetwork indicates the remote service could not be reached.
	KindNetwork
	// KindServer indicates the remote service rejected the request or
	// returned a malformed payload.
	KindServer
	// KindTimeout indicates poll attempts were exhausted.
	KindTimeout
	// KindNotFound indicates a download target does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindState:
		return "StateError"
	case KindNetwork:
		return "NetworkError"
	case KindServer:
		return "ServerError"
	case KindTimeout:
		return "TimeoutError"
	case KindNotFound:
		return "NotFoundError"
	default:
		return "UnknownError"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized names map to
// KindUnknown.
func ParseKind(name string) Kind {
	for k := KindInput; k <= KindNotFound; k++ {
		if k.String() == name {
			return k
		}
	}
	return KindUnknown
}

// Error is a classified failure. Code holds the HTTP status for server and
// not-found errors and is zero otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (%d): %s", e.Kind, e.Code, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input returns an InputError.
func Input(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg}
}

// State returns a StateError describing an operation refused in state.
func State(op, state string) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf("%s not allowed in state %s", op, state)}
}

// Network returns a NetworkError wrapping the underlying transport failure.
func Network(msg string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

// Server returns a ServerError with the remote status code and message.
func Server(code int, msg string) *Error {
	return &Error{Kind: KindServer, Code: code, Message: msg}
}

// Timeout returns a TimeoutError.
func Timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

// NotFound returns a NotFoundError.
func NotFound(code int, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DisplayMessage returns the message suitable for showing to a user: the
// remote message for classified errors, the error text otherwise.
func DisplayMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
