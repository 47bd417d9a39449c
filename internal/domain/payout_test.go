package domain_test

import (
	"testing"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/shopspring/decimal"
)

// TestSettleMath validates the win/loss settlement arithmetic recorded on a
// bet. No I/O — pure arithmetic.
//
//	Scenario (win):
//	  bet_amount = 10 000 sats, multiplier = 2.0
//	  payout = floor(10000 × 2.0) = 20 000
//	  profit = 20000 - 10000     = 10 000
//
//	Scenario (loss):
//	  payout = 0
//	  profit = -10 000
//
//	Scenario (fractional multiplier):
//	  bet_amount = 601, multiplier = 1.5
//	  payout = floor(601 × 1.5) = floor(901.5) = 901
func TestSettleMath(t *testing.T) {
	amount := decimal.NewFromInt(10_000)
	mult := decimal.NewFromFloat(2.0)

	payout := amount.Mul(mult).Floor()
	profit := payout.Sub(amount)

	if !payout.Equal(decimal.NewFromInt(20_000)) {
		t.Errorf("win payout = %s, want 20000", payout)
	}
	if !profit.Equal(decimal.NewFromInt(10_000)) {
		t.Errorf("win profit = %s, want 10000", profit)
	}

	// Loss: payout 0, profit is the full stake lost.
	lossProfit := decimal.Zero.Sub(amount)
	if !lossProfit.Equal(decimal.NewFromInt(-10_000)) {
		t.Errorf("loss profit = %s, want -10000", lossProfit)
	}

	// Fractional multiplier floors, never rounds up.
	odd := decimal.NewFromInt(601).Mul(decimal.NewFromFloat(1.5)).Floor()
	if !odd.Equal(decimal.NewFromInt(901)) {
		t.Errorf("floor(601 × 1.5) = %s, want 901", odd)
	}

	t.Logf("win payout=%s profit=%s, loss profit=%s", payout, profit, lossProfit)
}

// ── Payout retry budget ───────────────────────────────────────────────────────

func TestPayout_CanRetry(t *testing.T) {
	const maxRetries = 3

	p := &domain.Payout{Status: domain.PayoutStatusPending, RetryCount: 0}
	if !p.CanRetry(maxRetries) {
		t.Error("fresh pending payout should be retryable")
	}

	p.RetryCount = maxRetries
	if p.CanRetry(maxRetries) {
		t.Error("payout at the retry budget should not be retryable")
	}

	p = &domain.Payout{Status: domain.PayoutStatusFailed, RetryCount: 2}
	if !p.CanRetry(maxRetries) {
		t.Error("failed payout below the budget should be retryable")
	}

	p.Status = domain.PayoutStatusBroadcast
	if p.CanRetry(maxRetries) {
		t.Error("broadcast payout must never be re-attempted")
	}

	p.Status = domain.PayoutStatusConfirmed
	if p.CanRetry(maxRetries) {
		t.Error("confirmed payout must never be re-attempted")
	}
}

func TestPayout_IsTerminal(t *testing.T) {
	cases := []struct {
		status domain.PayoutStatus
		want   bool
	}{
		{domain.PayoutStatusPending, false},
		{domain.PayoutStatusBroadcast, false},
		{domain.PayoutStatusConfirmed, true},
		{domain.PayoutStatusFailed, true},
	}
	for _, c := range cases {
		p := &domain.Payout{Status: c.status}
		if p.IsTerminal() != c.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.status, p.IsTerminal(), c.want)
		}
	}
}
