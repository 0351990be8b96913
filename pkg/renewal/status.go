package renewal

import (
	"context"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// Status is the renewal state of one subscription as this client models it.
type Status struct {
	SubscriptionID    string           `json:"subscription_id"`
	AutoRenewal       bool             `json:"auto_renewal"`
	CancelAtPeriodEnd bool             `json:"cancel_at_period_end"`
	EndDate           *time.Time       `json:"end_date"`
	Provider          payment.Provider `json:"provider"`
}

// Normalize derives CancelAtPeriodEnd from AutoRenewal so the two never agree.
func (s Status) Normalize() Status {
	s.CancelAtPeriodEnd = !s.AutoRenewal
	return s
}

// FromState converts a provider adapter's view into a Status.
func FromState(p payment.Provider, st payment.RenewalState) Status {
	return Status{
		SubscriptionID:    st.SubscriptionID,
		AutoRenewal:       st.AutoRenewal,
		CancelAtPeriodEnd: st.CancelAtPeriodEnd,
		EndDate:           st.EndDate,
		Provider:          p,
	}.Normalize()
}

// UpdateResult is the server's answer to a renewal toggle.
type UpdateResult struct {
	Subscription Status `json:"subscription"`
	Message      string `json:"message,omitempty"`
}

// Remote reads and writes renewal state on the server.
type Remote interface {
	Fetch(ctx context.Context, subscriptionID string, provider payment.Provider) (Status, error)
	Update(ctx context.Context, subscriptionID string, enabled bool, provider payment.Provider) (UpdateResult, error)
}
