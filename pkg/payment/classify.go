package payment

import (
	"context"
	"errors"
	"net/http"
)

// NewRemoteError classifies a failed remote call by its HTTP status.
// A zero status means the request never produced a response.
func NewRemoteError(p Provider, op string, status int, message string, cause error) *RemoteError {
	return &RemoteError{
		Provider:   p,
		Op:         op,
		StatusCode: status,
		Message:    message,
		Kind:       KindForStatus(status),
		Err:        cause,
	}
}

// Rejected reports a response the provider accepted but that carries nothing
// usable. It is terminal for the attempt.
func Rejected(p Provider, op, message string) *RemoteError {
	return &RemoteError{Provider: p, Op: op, Message: message, Kind: KindRemoteRejected}
}

// KindForStatus maps an HTTP status to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return KindTransient
	case status >= 400 && status < 500, status == http.StatusNotImplemented:
		return KindRemoteRejected
	default:
		return KindTransient
	}
}

// Classify returns the kind of err. Errors already carrying a RemoteError
// keep the kind computed when they were created.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, ErrMissingIdentity):
		return KindMissingIdentity
	case errors.Is(err, ErrMissingProductMapping):
		return KindMissingProductMapping
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRemoteRejected):
		return KindRemoteRejected
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrUnsupportedOperation),
		errors.Is(err, ErrPlanNotFound),
		errors.Is(err, ErrInvalidInterval),
		errors.Is(err, ErrUnknownProvider):
		return KindUnknown
	}

	// Network failures, timeouts and anything unrecognised are transient.
	return KindTransient
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var re *RemoteError
	if errors.As(err, &re) && re.Kind == KindRemoteRejected && re.Message != "" {
		return re.Message
	}

	switch Classify(err) {
	case KindMissingIdentity:
		return "Please sign in to continue."
	case KindMissingProductMapping:
		return "This plan is not available with the selected payment provider."
	case KindRemoteRejected:
		return "The payment provider rejected the request. Please try again."
	case KindUnauthorized:
		return "Your session is not authorized. Please sign in again."
	case KindNotFound:
		return "Subscription not found."
	}

	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return "Checkout is currently unavailable."
	case errors.Is(err, ErrUnsupportedOperation):
		return "This action is not supported by your payment provider."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}
	return "Something went wrong. Please try again later."
}
