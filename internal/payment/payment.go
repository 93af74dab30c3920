// Package payment abstracts the external charge gateways. Each supported
// payment method maps to a Gateway; gateways are constructed lazily from
// whatever credentials are currently on file so credential updates take
// effect without a restart.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured reports that the gateway for the requested method
	// has no usable credentials.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrRejected reports that the gateway declined or has not completed
	// the charge.
	ErrRejected = errors.New("payment rejected by gateway")
)

// InitiateRequest carries everything a gateway needs to open a charge.
// Amounts are in the platform's base currency; LocalAmountCents and
// Currency describe what the buyer sees.
type InitiateRequest struct {
	UserID           string
	BaseAmountCents  int64
	LocalAmountCents int64
	Currency         string
	Description      string
	PhoneNumber      string
}

// PendingCharge is a charge the gateway has opened but not yet settled.
type PendingCharge struct {
	Reference    string
	ClientSecret string
	RedirectURL  string
}

// ChargeResult is the gateway's final word on a charge.
type ChargeResult struct {
	Reference   string
	Settled     bool
	UserID      string
	AmountCents int64
}

// Gateway is implemented once per payment rail.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*PendingCharge, error)
	Confirm(ctx context.Context, reference string) (*ChargeResult, error)
}

// Registry resolves a payment method name to its gateway.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Register(g Gateway) {
	r.gateways[g.Name()] = g
}

// Lookup returns the gateway for method, or ErrNotConfigured when no
// gateway handles it.
func (r *Registry) Lookup(method string) (Gateway, error) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, ErrNotConfigured
	}
	return g, nil
}
