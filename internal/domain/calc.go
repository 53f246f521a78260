package domain

import (
	"errors"
	"fmt"
	"math"

	"floorpos/backend/internal/xid"
)

var (
	ErrBillNotPayable = errors.New("bill is already paid or empty")
	ErrBadSplit       = errors.New("invalid split request")
)

// UpdateCalculatedValues recomputes every bill's derived totals from its line
// items and rate configuration. Must run after any structural mutation and
// before persistence; downstream payment and settlement math assumes totals
// are consistent with the items.
func (o *Order) UpdateCalculatedValues() {
	for i := range o.Bills {
		b := &o.Bills[i]

		var subtotal int64
		for _, item := range b.Items {
			subtotal += item.SubtotalCents()
		}
		subtotal -= b.DiscountCents
		if subtotal < 0 {
			subtotal = 0
		}

		b.SubtotalCents = subtotal
		b.TaxCents = rateCents(subtotal, b.TaxRatePercent)
		b.ServiceFeeCents = rateCents(subtotal, b.ServiceFeeRatePercent)
		b.TotalCents = subtotal + b.TaxCents + b.ServiceFeeCents
	}
}

func rateCents(amount int64, ratePercent float64) int64 {
	if ratePercent <= 0 || amount <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * ratePercent / 100))
}

// SplitByCount divides the bill's payable total into n even pieces. The
// rounding remainder lands on the first piece, so the piece totals always sum
// to the original total.
func SplitByCount(b Bill, n int) ([]Bill, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: piece count must be at least 2", ErrBadSplit)
	}
	if !b.Payable() {
		return nil, ErrBillNotPayable
	}

	base := b.TotalCents / int64(n)
	shares := make([]int64, n)
	for i := 1; i < n; i++ {
		shares[i] = base
	}
	shares[0] = b.TotalCents - base*int64(n-1)
	return buildPieces(shares)
}

// SplitByPercent divides the bill's payable total by the given percentages,
// which must sum to 100. Each piece after the first is rounded independently;
// the first absorbs the remainder.
func SplitByPercent(b Bill, percents []float64) ([]Bill, error) {
	if len(percents) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 percentages", ErrBadSplit)
	}
	if !b.Payable() {
		return nil, ErrBillNotPayable
	}

	var sum float64
	for _, p := range percents {
		if p <= 0 {
			return nil, fmt.Errorf("%w: percentages must be positive", ErrBadSplit)
		}
		sum += p
	}
	if math.Abs(sum-100) > 0.001 {
		return nil, fmt.Errorf("%w: percentages sum to %.2f, want 100", ErrBadSplit, sum)
	}

	shares := make([]int64, len(percents))
	var rest int64
	for i := 1; i < len(percents); i++ {
		shares[i] = int64(math.Round(float64(b.TotalCents) * percents[i] / 100))
		rest += shares[i]
	}
	shares[0] = b.TotalCents - rest
	if shares[0] <= 0 {
		return nil, fmt.Errorf("%w: first piece would be %d cents", ErrBadSplit, shares[0])
	}
	return buildPieces(shares)
}

// SplitByAmounts divides the bill's payable total into pieces of the given
// amounts. Amounts after the first are taken literally; the first piece is
// the remainder, which keeps the sum exact.
func SplitByAmounts(b Bill, amounts []int64) ([]Bill, error) {
	if len(amounts) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 amounts", ErrBadSplit)
	}
	if !b.Payable() {
		return nil, ErrBillNotPayable
	}

	shares := make([]int64, len(amounts))
	var rest int64
	for i := 1; i < len(amounts); i++ {
		if amounts[i] <= 0 {
			return nil, fmt.Errorf("%w: amounts must be positive", ErrBadSplit)
		}
		shares[i] = amounts[i]
		rest += amounts[i]
	}
	shares[0] = b.TotalCents - rest
	if shares[0] <= 0 {
		return nil, fmt.Errorf("%w: remaining first piece would be %d cents", ErrBadSplit, shares[0])
	}
	return buildPieces(shares)
}

// buildPieces turns the computed share amounts into standalone bills. The
// shares are tax-inclusive fractions of the source bill's final total, so the
// pieces carry a single line item and zeroed rates; recomputation leaves
// their totals untouched.
func buildPieces(shares []int64) ([]Bill, error) {
	pieces := make([]Bill, 0, len(shares))
	for i, share := range shares {
		pieces = append(pieces, Bill{
			ID: xid.New("bill"),
			Items: []OrderItem{{
				ID:        xid.New("item"),
				Name:      fmt.Sprintf("Split %d of %d", i+1, len(shares)),
				UnitCents: share,
				Qty:       1,
			}},
			SubtotalCents: share,
			TotalCents:    share,
		})
	}
	return pieces, nil
}
