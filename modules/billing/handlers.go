package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/renewal"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
)

type handlers struct {
	RouterOptions
}

type plansRequest struct {
	Interval string `query:"interval"`
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Interval string `json:"interval"`
	Provider string `json:"provider"`
	Embedded bool   `json:"embedded"`
}

type providerRequest struct {
	Provider string `json:"provider"`
}

type providerResponse struct {
	Active     payment.Provider   `json:"active"`
	Configured []payment.Provider `json:"configured"`
}

type subscriptionRequest struct {
	ID       string `path:"id"`
	Provider string `query:"provider" json:"provider"`
	Enabled  *bool  `json:"enabled"`
}

// provider picks the explicitly requested provider, else the user's active
// one.
func (h *handlers) provider(requested string, user *payment.User) (payment.Provider, error) {
	if requested != "" {
		p, err := payment.ParseProvider(requested)
		if err != nil {
			return "", err
		}
		if !h.Registry.IsConfigured(p) {
			return "", payment.ErrProviderUnavailable
		}
		return p, nil
	}
	var selected payment.Provider
	if user != nil {
		selected = h.Preferences.Selected(user.ID)
	}
	p, ok := h.Registry.GetActive(selected)
	if !ok {
		return "", payment.ErrProviderUnavailable
	}
	return p, nil
}

func (h *handlers) plans(ctx handler.Context, req plansRequest) handler.Response {
	interval, err := payment.ParseBillingInterval(req.Interval)
	if err != nil {
		return h.fail(ctx, err)
	}
	user := h.Identity(ctx.Request())
	p, _ := h.provider("", user)
	if p != "" && (h.Builder == nil || !h.Builder.Supports(p)) {
		p = ""
	}
	return handler.JSON(billingsvc.BuildOffers(h.Catalog, interval, p, user != nil))
}

func (h *handlers) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	user := h.Identity(ctx.Request())
	if user == nil {
		return h.fail(ctx, payment.ErrMissingIdentity)
	}
	plan, err := h.Catalog.Get(req.PlanID)
	if err != nil {
		return h.fail(ctx, err)
	}
	interval, err := payment.ParseBillingInterval(req.Interval)
	if err != nil {
		return h.fail(ctx, err)
	}
	p, err := h.provider(req.Provider, user)
	if err != nil {
		return h.fail(ctx, err)
	}

	res, err := h.Builder.Initiate(ctx, payment.CheckoutRequest{
		Plan:     plan,
		User:     user,
		Interval: interval,
		Provider: p,
		Embedded: req.Embedded,
	})
	if err != nil {
		return h.fail(ctx, err)
	}
	return handler.JSON(res, handler.WithStatus(http.StatusCreated))
}

func (h *handlers) activeProvider(ctx handler.Context, _ struct{}) handler.Response {
	p, err := h.provider("", h.Identity(ctx.Request()))
	if err != nil {
		return h.fail(ctx, err)
	}
	return handler.JSON(providerResponse{Active: p, Configured: h.Registry.ListConfigured()})
}

func (h *handlers) selectProvider(ctx handler.Context, req providerRequest) handler.Response {
	user := h.Identity(ctx.Request())
	if user == nil {
		return h.fail(ctx, payment.ErrMissingIdentity)
	}
	if req.Provider == "" {
		return handler.JSONError(handler.ErrBadRequest, "provider is required")
	}
	p, err := h.provider(req.Provider, user)
	if err != nil {
		return h.fail(ctx, err)
	}
	if err := h.Preferences.Select(user.ID, p); err != nil {
		return h.fail(ctx, err)
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, cache.DependentsOf(user.ID)...); err != nil {
			h.Logger.WarnContext(ctx, "invalidate after provider change", logger.Error(err))
		}
	}
	h.Logger.InfoContext(ctx, "payment provider selected", logger.UserID(user.ID), logger.Provider(p))
	return handler.JSON(providerResponse{Active: p, Configured: h.Registry.ListConfigured()})
}

// managed reports whether requests for p go through the cached manager,
// which only serves the user's active provider.
func (h *handlers) managed(user *payment.User, p payment.Provider) bool {
	if h.Manager == nil {
		return false
	}
	active, err := h.Manager.ActiveProvider(user.ID)
	return err == nil && active == p
}

func (h *handlers) renewalStatus(ctx handler.Context, req subscriptionRequest) handler.Response {
	user := h.Identity(ctx.Request())
	if user == nil {
		return h.fail(ctx, payment.ErrMissingIdentity)
	}
	p, err := h.provider(req.Provider, user)
	if err != nil {
		return h.fail(ctx, err)
	}

	var st renewal.Status
	switch {
	case h.managed(user, p):
		st, err = h.Manager.GetStatus(ctx, user.ID, req.ID)
	case h.Renewal != nil:
		st, err = h.Renewal.Fetch(ctx, req.ID, p)
	default:
		return handler.JSONError(handler.ErrUnprocessableEntity, msgInactiveProvider)
	}
	if err != nil {
		return h.fail(ctx, err)
	}
	return handler.JSON(st)
}

func (h *handlers) setRenewal(ctx handler.Context, req subscriptionRequest) handler.Response {
	user := h.Identity(ctx.Request())
	if user == nil {
		return h.fail(ctx, payment.ErrMissingIdentity)
	}
	if req.Enabled == nil {
		return handler.JSONError(handler.ErrBadRequest, "enabled is required")
	}
	p, err := h.provider(req.Provider, user)
	if err != nil {
		return h.fail(ctx, err)
	}

	var res renewal.UpdateResult
	switch {
	case h.managed(user, p):
		var st renewal.Status
		st, err = h.Manager.SetAutoRenewal(ctx, user.ID, req.ID, *req.Enabled)
		res = renewal.UpdateResult{Subscription: st, Message: renewal.ToggleMessage(*req.Enabled)}
	case h.Renewal != nil:
		res, err = h.Renewal.Update(ctx, req.ID, *req.Enabled, p)
	default:
		return handler.JSONError(handler.ErrUnprocessableEntity, msgInactiveProvider)
	}
	if err != nil {
		return h.fail(ctx, err)
	}
	h.Logger.InfoContext(ctx, "auto-renewal changed",
		logger.UserID(user.ID),
		logger.Provider(p),
		logger.SubscriptionID(req.ID),
		slog.Bool("enabled", *req.Enabled))
	return handler.JSON(res)
}

const msgInactiveProvider = "Subscriptions can only be managed through your active payment provider."

// fail maps a billing error to an HTTP error response.
func (h *handlers) fail(ctx handler.Context, err error) handler.Response {
	herr, msg := httpError(err)
	level := slog.LevelDebug
	if herr.Code >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	h.Logger.LogAttrs(ctx, level, "billing request failed",
		logger.Error(err),
		slog.Int("status_code", herr.Code),
		slog.String("path", ctx.Request().URL.Path))
	return handler.JSONError(herr, msg)
}

func httpError(err error) (handler.HTTPError, string) {
	switch {
	case errors.Is(err, payment.ErrUnknownProvider), errors.Is(err, payment.ErrInvalidInterval):
		return handler.ErrBadRequest, err.Error()
	case errors.Is(err, payment.ErrPlanNotFound):
		return handler.ErrNotFound, "Plan not found."
	case errors.Is(err, payment.ErrMissingProductMapping):
		return handler.ErrUnprocessableEntity, "This plan is not available with the selected provider."
	case errors.Is(err, payment.ErrUnsupportedOperation):
		return handler.ErrNotImplemented, err.Error()
	case errors.Is(err, payment.ErrProviderUnavailable):
		return handler.ErrServiceUnavailable, payment.UserMessage(err)
	}

	msg := payment.UserMessage(err)
	switch payment.Classify(err) {
	case payment.KindMissingIdentity, payment.KindUnauthorized:
		return handler.ErrUnauthorized, msg
	case payment.KindNotFound:
		return handler.ErrNotFound, msg
	case payment.KindRemoteRejected:
		return handler.ErrUnprocessableEntity, msg
	case payment.KindTransient:
		return handler.ErrBadGateway, msg
	default:
		return handler.ErrInternalServerError, msg
	}
}
