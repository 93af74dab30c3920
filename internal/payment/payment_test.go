package payment

import (
	"context"
	"errors"
	"testing"

	"shopcenter/backend/internal/store/memory"
)

type stubGateway struct{ name string }

func (g stubGateway) Name() string { return g.name }
func (g stubGateway) Initiate(context.Context, InitiateRequest) (*PendingCharge, error) {
	return &PendingCharge{Reference: "ref-" + g.name}, nil
}
func (g stubGateway) Confirm(context.Context, string) (*ChargeResult, error) {
	return &ChargeResult{Settled: true}, nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(stubGateway{name: MethodCard}, stubGateway{name: MethodWallet})

	if _, err := registry.Lookup(MethodCard); err != nil {
		t.Fatalf("expected card gateway, got %v", err)
	}
	if _, err := registry.Lookup(MethodMobile); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing gateway, got %v", err)
	}
}

func TestCredentialProviderDefaultsAndOverrides(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()

	provider := NewCredentialProvider(repo, map[string]map[string]string{
		MethodCard: {"secret_key": "sk_from_env"},
	}, nil)

	values, err := provider.Get(MethodCard)
	if err != nil {
		t.Fatalf("expected env defaults before any reload: %v", err)
	}
	if values["secret_key"] != "sk_from_env" {
		t.Fatalf("expected env secret, got %q", values["secret_key"])
	}

	if _, err := provider.Get(MethodWallet); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for wallet, got %v", err)
	}

	// A stored row wins over the environment default.
	if err := provider.Update(ctx, MethodCard, map[string]string{"secret_key": "sk_rotated"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	values, err = provider.Get(MethodCard)
	if err != nil {
		t.Fatalf("get after rotate failed: %v", err)
	}
	if values["secret_key"] != "sk_rotated" {
		t.Fatalf("expected rotated secret, got %q", values["secret_key"])
	}
}

func TestCredentialProviderGetReturnsCopy(t *testing.T) {
	repo := memory.NewSeeded()
	provider := NewCredentialProvider(repo, map[string]map[string]string{
		MethodCard: {"secret_key": "sk_one"},
	}, nil)

	values, err := provider.Get(MethodCard)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	values["secret_key"] = "tampered"

	again, err := provider.Get(MethodCard)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again["secret_key"] != "sk_one" {
		t.Fatalf("caller mutation must not leak into the snapshot, got %q", again["secret_key"])
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		100:   "1.00",
		5497:  "54.97",
		12000: "120.00",
	}
	for cents, want := range cases {
		if got := formatCents(cents); got != want {
			t.Fatalf("formatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestWholeUnitsRoundsUp(t *testing.T) {
	cases := map[int64]int64{
		0:     0,
		1:     1,
		99:    1,
		100:   1,
		101:   2,
		12950: 130,
	}
	for cents, want := range cases {
		if got := wholeUnits(cents); got != want {
			t.Fatalf("wholeUnits(%d) = %d, want %d", cents, got, want)
		}
	}
}
