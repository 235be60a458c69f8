package portal

import (
	"context"
	"time"
)

// Session is the browser capability driven by the probe and the authenticator.
// Elements are addressed by their DOM id. Only Close may run concurrently with another call;
// it makes the in-flight operation fail with a session error.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	// HTML returns the markup of the current page.
	HTML(ctx context.Context) (string, error)
	// WaitFor polls until the element is attached to the page or timeout elapses.
	// A timeout yields an error wrapping ErrElementNotFound.
	WaitFor(ctx context.Context, elementID string, timeout time.Duration) error
	Fill(ctx context.Context, elementID, value string) error
	// Select picks the option with the given value in a <select> element.
	Select(ctx context.Context, elementID, value string) error
	Click(ctx context.Context, elementID string) error
	// Healthy reports a non-nil error once the underlying browser or page is gone.
	Healthy() error
	// Close releases the browser. Calling it more than once is a no-op.
	Close() error
}

// Factory creates sessions. The monitor asks for a fresh one when the current session dies.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}
