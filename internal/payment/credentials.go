package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
)

// Gateway names used as credential row keys and Registry method keys.
const (
	MethodCard   = "card"
	MethodWallet = "wallet"
	MethodMobile = "mobile"
)

// CredentialProvider serves the per-gateway credential sets. Database rows
// win over environment defaults so admins can rotate keys at runtime; a
// snapshot is held in memory and replaced only by an explicit Reload, so a
// checkout never observes a half-applied rotation.
type CredentialProvider struct {
	repo     store.Repository
	defaults map[string]map[string]string
	logger   *zap.Logger

	mu   sync.RWMutex
	snap map[string]map[string]string
}

func NewCredentialProvider(repo store.Repository, defaults map[string]map[string]string, logger *zap.Logger) *CredentialProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &CredentialProvider{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
		snap:     make(map[string]map[string]string),
	}
	for gateway, values := range defaults {
		p.snap[gateway] = cloneValues(values)
	}
	return p
}

// Reload replaces the in-memory snapshot with the current database state,
// falling back to environment defaults for gateways with no stored row.
// It returns only after the new snapshot is visible to subsequent Get calls.
func (p *CredentialProvider) Reload(ctx context.Context) error {
	rows, err := p.repo.ListGatewayCredentials(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]map[string]string)
	for gateway, values := range p.defaults {
		next[gateway] = cloneValues(values)
	}
	for _, row := range rows {
		next[row.Gateway] = cloneValues(row.Values)
	}

	p.mu.Lock()
	p.snap = next
	p.mu.Unlock()

	p.logger.Info("gateway credentials reloaded", zap.Int("gateways", len(rows)))
	return nil
}

// Get returns the credential set for a gateway. A missing or empty set
// yields ErrNotConfigured.
func (p *CredentialProvider) Get(gateway string) (map[string]string, error) {
	p.mu.RLock()
	values, ok := p.snap[gateway]
	p.mu.RUnlock()

	if !ok || len(values) == 0 {
		return nil, ErrNotConfigured
	}
	return cloneValues(values), nil
}

// Update stores a credential set and reloads the snapshot so the change is
// effective immediately.
func (p *CredentialProvider) Update(ctx context.Context, gateway string, values map[string]string) error {
	if len(values) == 0 {
		return errors.New("credential values must not be empty")
	}
	cred := domain.GatewayCredential{Gateway: gateway, Values: values, UpdatedAt: time.Now().UTC()}
	if err := p.repo.UpsertGatewayCredential(ctx, cred); err != nil {
		return err
	}
	return p.Reload(ctx)
}

func cloneValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
