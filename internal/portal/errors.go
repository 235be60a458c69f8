package portal

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the monitor can tell an ordinary disconnect or rejected
// login from a browser that has died underneath it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindProbe: navigation, timeout or missing indicator while checking connectivity.
	KindProbe
	// KindLogin: navigation, timeout or missing form element while logging in.
	KindLogin
	// KindSession: the browser, context or page is no longer usable.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindProbe:
		return "probe"
	case KindLogin:
		return "login"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

var (
	ErrSessionClosed   = errors.New("portal session closed")
	ErrElementNotFound = errors.New("element not found")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func IsSessionError(err error) bool {
	return KindOf(err) == KindSession
}

// Classify wraps err as kind unless it is already a session failure, which always wins.
func Classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsSessionError(err) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
