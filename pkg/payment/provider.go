package payment

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Provider identifies a payment backend.
type Provider string

const (
	ProviderStripe       Provider = "stripe"
	ProviderLemonSqueezy Provider = "lemonsqueezy"
	ProviderPolar        Provider = "polar"
	ProviderPaddle       Provider = "paddle"
)

// Providers lists every known provider in fallback preference order.
var Providers = []Provider{ProviderStripe, ProviderLemonSqueezy, ProviderPolar, ProviderPaddle}

// ParseProvider converts a raw value into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return slices.Contains(Providers, p)
}

func (p Provider) String() string { return string(p) }

// Availability is a snapshot of which providers have credentials present.
type Availability map[Provider]bool

// Configured returns the configured providers in preference order.
func (a Availability) Configured() []Provider {
	out := make([]Provider, 0, len(Providers))
	for _, p := range Providers {
		if a[p] {
			out = append(out, p)
		}
	}
	return out
}

// Registry answers which providers can take a checkout. It holds an
// immutable snapshot and is safe for concurrent use.
type Registry struct {
	configured []Provider
}

// NewRegistry builds a registry from an availability snapshot.
func NewRegistry(a Availability) *Registry {
	return &Registry{configured: a.Configured()}
}

// ListConfigured returns the configured providers; the first one is the fallback.
func (r *Registry) ListConfigured() []Provider {
	return slices.Clone(r.configured)
}

// IsConfigured reports whether p has credentials present.
func (r *Registry) IsConfigured(p Provider) bool {
	return slices.Contains(r.configured, p)
}

// GetActive resolves the provider to use for the given user selection.
// The boolean is false when no provider is configured.
func (r *Registry) GetActive(selected Provider) (Provider, bool) {
	return ResolveActiveProvider(selected, r.configured)
}

// ResolveActiveProvider returns selected if it is configured, else the first
// configured provider. It returns false when configured is empty.
func ResolveActiveProvider(selected Provider, configured []Provider) (Provider, bool) {
	if selected != "" && slices.Contains(configured, selected) {
		return selected, true
	}
	if len(configured) == 0 {
		return "", false
	}
	return configured[0], true
}

// PreferenceStore persists the provider a user picked explicitly.
type PreferenceStore interface {
	Selected(userID string) Provider
	Select(userID string, p Provider) error
}

// MemoryPreferences is an in-process PreferenceStore.
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]Provider
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]Provider)}
}

// Selected returns the stored preference or an empty provider.
func (m *MemoryPreferences) Selected(userID string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs[userID]
}

// Select stores p for the user. An empty provider clears the preference.
func (m *MemoryPreferences) Select(userID string, p Provider) error {
	if p != "" && !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == "" {
		delete(m.prefs, userID)
		return nil
	}
	m.prefs[userID] = p
	return nil
}
