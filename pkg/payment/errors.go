package payment

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentity       = errors.New("sign in required to start checkout")
	ErrMissingProductMapping = errors.New("plan is not available for this payment provider")
	ErrRemoteRejected        = errors.New("payment provider rejected the request")
	ErrTransient             = errors.New("payment provider temporarily unavailable")
	ErrUnauthorized          = errors.New("not authorized by payment provider")
	ErrNotFound              = errors.New("subscription not found")

	ErrProviderUnavailable  = errors.New("no payment provider is configured")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrInvalidInterval      = errors.New("invalid billing interval")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrDuplicatePlan        = errors.New("duplicate plan id")
	ErrUnsupportedOperation = errors.New("operation not supported by payment provider")
	ErrMissingCredentials   = errors.New("payment provider credentials are missing")
)

// Kind is the classification of a failure. It is computed once and reused by
// the retry decision and the user-facing message.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingIdentity
	KindMissingProductMapping
	KindRemoteRejected
	KindTransient
	KindUnauthorized
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindMissingIdentity:       "missing_identity",
	KindMissingProductMapping: "missing_product_mapping",
	KindRemoteRejected:        "remote_rejected",
	KindTransient:             "transient",
	KindUnauthorized:          "unauthorized",
	KindNotFound:              "not_found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Retryable reports whether a failure of this kind may be retried automatically.
func (k Kind) Retryable() bool { return k == KindTransient }

// IsConfiguration reports whether the kind is a precondition failure caught
// before any network call. These are expected states, not incidents.
func (k Kind) IsConfiguration() bool {
	return k == KindMissingIdentity || k == KindMissingProductMapping
}

// Sentinel returns the package error matching the kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindMissingIdentity:
		return ErrMissingIdentity
	case KindMissingProductMapping:
		return ErrMissingProductMapping
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindTransient:
		return ErrTransient
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// RemoteError is the classified form of a failed remote call.
type RemoteError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Message    string
	Kind       Kind
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
