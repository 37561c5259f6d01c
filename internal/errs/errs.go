package errs

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrTicketCompleted = errors.New("ticket is completed")
	ErrInvalidInput    = errors.New("invalid input")

	// Platform-side failures. ErrChannelNotFound and ErrForbidden are permanent,
	// anything else coming back from the platform is treated as transient.
	ErrChannelNotFound = errors.New("channel not found")
	ErrForbidden       = errors.New("forbidden")

	// Bridge failures.
	ErrNotReady = errors.New("platform client not ready")
	ErrTimeout  = errors.New("platform call timed out")
)

// Reason returns a short machine-readable reason for err, used in API responses.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrChannelNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrTicketCompleted):
		return "conflict"
	default:
		return "internal"
	}
}

// Permanent reports whether retrying err against the platform cannot succeed.
func Permanent(err error) bool {
	return errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrForbidden)
}
