package renewal

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// GatewayRemote talks to the provider adapters directly. The HTTP module
// serves it; in-process callers may use it instead of HTTPRemote.
type GatewayRemote struct {
	adapters map[payment.Provider]payment.RenewalAdapter
}

// NewGatewayRemote panics on a nil adapter.
func NewGatewayRemote(adapters ...payment.RenewalAdapter) *GatewayRemote {
	g := &GatewayRemote{adapters: make(map[payment.Provider]payment.RenewalAdapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			panic("renewal: nil renewal adapter")
		}
		g.adapters[a.Provider()] = a
	}
	return g
}

func (g *GatewayRemote) adapter(p payment.Provider) (payment.RenewalAdapter, error) {
	a, ok := g.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s auto-renewal", payment.ErrUnsupportedOperation, p)
	}
	return a, nil
}

func (g *GatewayRemote) Fetch(ctx context.Context, subscriptionID string, p payment.Provider) (Status, error) {
	a, err := g.adapter(p)
	if err != nil {
		return Status{}, err
	}
	st, err := a.GetRenewal(ctx, subscriptionID)
	if err != nil {
		return Status{}, err
	}
	return FromState(p, st), nil
}

func (g *GatewayRemote) Update(ctx context.Context, subscriptionID string, enabled bool, p payment.Provider) (UpdateResult, error) {
	a, err := g.adapter(p)
	if err != nil {
		return UpdateResult{}, err
	}
	st, err := a.SetRenewal(ctx, subscriptionID, enabled)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Subscription: FromState(p, st), Message: ToggleMessage(enabled)}, nil
}

// ToggleMessage is the default confirmation for a renewal change.
func ToggleMessage(enabled bool) string {
	if enabled {
		return "Auto-renewal enabled."
	}
	return "Auto-renewal disabled. Your subscription will end at the close of the current period."
}
