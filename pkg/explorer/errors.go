package explorer

import (
	"errors"
	"fmt"
)

// Operations reported in FetchError.
const (
	OpUser      = "user"
	OpFirst     = "first"
	OpMore      = "more"
	OpComponent = "component"
	OpChange    = "change"
	OpBulk      = "bulk"
)

// ErrAuthRequired is reported when the current view needs a logged-in user
// and there is none.
var ErrAuthRequired = errors.New("authentication required")

// FetchError is a failed background operation.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// authError is implemented by backend errors that mean the request needs
// (other) credentials.
type authError interface {
	AuthRequired() bool
}

// IsAuthError reports whether err is an unauthorized or forbidden failure.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	var ae authError
	return errors.As(err, &ae) && ae.AuthRequired()
}
