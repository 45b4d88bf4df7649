package strategy

import (
	"context"
	"errors"
	"testing"

	"papertrade/internal/domain"
	"papertrade/internal/storage/memory"
)

// fakeActivator records registry calls.
type fakeActivator struct {
	activated   []string
	deactivated []string
	reconciled  []string
}

func (f *fakeActivator) Activate(st *domain.Strategy) error {
	f.activated = append(f.activated, st.StrategyID)
	return nil
}

func (f *fakeActivator) Deactivate(strategyID string, _ []string) error {
	f.deactivated = append(f.deactivated, strategyID)
	return nil
}

func (f *fakeActivator) ReconcileSymbols(st *domain.Strategy, _ []string) error {
	f.reconciled = append(f.reconciled, st.StrategyID)
	return nil
}

func newTestService() (*Service, *fakeActivator) {
	reg := &fakeActivator{}
	return NewService(memory.NewStrategyStore(), reg), reg
}

func validInput() CreateInput {
	return CreateInput{
		Name:    "btc crossover",
		Type:    domain.StrategyTypeMACrossover,
		Symbols: []string{"BTCUSDT"},
		RiskParameters: domain.RiskParameters{
			MaxPositionSize: 1000,
		},
	}
}

func TestService_CreateStartsPaused(t *testing.T) {
	svc, reg := newTestService()
	ctx := context.Background()

	st, err := svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.Status != domain.StrategyStatusPaused {
		t.Fatalf("new strategy must start paused, got %s", st.Status)
	}
	if st.StrategyID == "" {
		t.Fatal("missing strategy id")
	}
	if len(reg.activated) != 0 {
		t.Fatal("create must not activate")
	}
}

func TestService_CreateDedupesSymbols(t *testing.T) {
	svc, _ := newTestService()
	in := validInput()
	in.Symbols = []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", ""}

	st, err := svc.Create(context.Background(), "owner-1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(st.Symbols) != 2 || st.Symbols[0] != "BTCUSDT" || st.Symbols[1] != "ETHUSDT" {
		t.Fatalf("symbols = %v", st.Symbols)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty name", func(in *CreateInput) { in.Name = "" }},
		{"bad type", func(in *CreateInput) { in.Type = "SCALPER" }},
		{"no symbols", func(in *CreateInput) { in.Symbols = nil }},
		{"zero position size", func(in *CreateInput) { in.RiskParameters.MaxPositionSize = 0 }},
		{"bad params", func(in *CreateInput) { in.Parameters = map[string]float64{"fastMAPeriod": 50} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Create(ctx, "owner-1", in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestService_StatusTransitionsDriveRegistry(t *testing.T) {
	svc, reg := newTestService()
	ctx := context.Background()

	st, err := svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active := domain.StrategyStatusActive
	paused := domain.StrategyStatusPaused

	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &active}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(reg.activated) != 1 {
		t.Fatalf("expected 1 activation, got %d", len(reg.activated))
	}

	// Active -> Active is a subscription no-op
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &active}); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if len(reg.activated) != 1 || len(reg.reconciled) != 0 {
		t.Fatal("unchanged active status must not touch the registry")
	}

	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &paused}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if len(reg.deactivated) != 1 {
		t.Fatalf("expected 1 deactivation, got %d", len(reg.deactivated))
	}

	// Paused -> Paused is also a no-op
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &paused}); err != nil {
		t.Fatalf("re-pause: %v", err)
	}
	if len(reg.deactivated) != 1 {
		t.Fatal("unchanged paused status must not touch the registry")
	}
}

func TestService_SymbolChangeWhileActiveReconciles(t *testing.T) {
	svc, reg := newTestService()
	ctx := context.Background()

	st, err := svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active := domain.StrategyStatusActive
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &active}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Symbols: []string{"ETHUSDT"}}); err != nil {
		t.Fatalf("update symbols: %v", err)
	}
	if len(reg.reconciled) != 1 {
		t.Fatalf("expected 1 reconciliation, got %d", len(reg.reconciled))
	}

	// Symbol change while paused must not reconcile
	paused := domain.StrategyStatusPaused
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &paused}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Symbols: []string{"SOLUSDT"}}); err != nil {
		t.Fatalf("update symbols: %v", err)
	}
	if len(reg.reconciled) != 1 {
		t.Fatal("paused symbol change must not reconcile subscriptions")
	}
}

func TestService_OwnershipEnforced(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	st, err := svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "intruder", st.StrategyID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Update(ctx, "intruder", st.StrategyID, UpdateInput{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.Delete(ctx, "intruder", st.StrategyID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.Get(ctx, "owner-1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_DeleteActiveDeactivatesFirst(t *testing.T) {
	svc, reg := newTestService()
	ctx := context.Background()

	st, err := svc.Create(ctx, "owner-1", validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active := domain.StrategyStatusActive
	if _, err := svc.Update(ctx, "owner-1", st.StrategyID, UpdateInput{Status: &active}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := svc.Delete(ctx, "owner-1", st.StrategyID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(reg.deactivated) != 1 {
		t.Fatalf("expected deactivation before delete, got %d", len(reg.deactivated))
	}

	if _, err := svc.Get(ctx, "owner-1", st.StrategyID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	list, err := svc.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}
