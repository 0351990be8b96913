package logger

import (
	"fmt"
	"log/slog"
)

// Error records err under "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under "user_id". Empty ids are dropped.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// Provider records a payment provider name. Accepts any fmt.Stringer so the
// payment package does not have to be imported here.
func Provider(p fmt.Stringer) slog.Attr {
	if p == nil {
		return slog.Attr{}
	}
	return slog.String("provider", p.String())
}

func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

// AttemptID records a checkout attempt identifier and its sequence number.
func AttemptID(id fmt.Stringer, seq uint64) slog.Attr {
	return slog.Group("attempt", slog.String("id", id.String()), slog.Uint64("seq", seq))
}

func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

func CacheKey(key string) slog.Attr {
	return slog.String("cache_key", key)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
