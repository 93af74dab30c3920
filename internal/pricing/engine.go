package pricing

import (
	"math"

	"shopcenter/backend/internal/domain"
)

// All amounts are cents in the base currency. The same functions serve live
// cart previews and commit-time totals, so preview and receipt can never
// disagree by a rounding step.

// roundHalfUp rounds to the nearest cent, ties away from zero.
func roundHalfUp(v float64) int64 {
	return int64(math.Round(v))
}

// ItemSubtotal computes a line's subtotal after its optional item-level
// discount. Percent discounts are rounded half-up against the full line
// amount; fixed discounts apply per unit and are capped so a line can never
// go negative.
func ItemSubtotal(unitPriceCents int64, qty int, discount *domain.ItemDiscount) int64 {
	if qty <= 0 || unitPriceCents < 0 {
		return 0
	}
	gross := unitPriceCents * int64(qty)
	if discount == nil {
		return gross
	}

	var off int64
	switch discount.Type {
	case domain.DiscountPercent:
		off = roundHalfUp(float64(discount.Value) / 100 * float64(gross))
	case domain.DiscountFixed:
		off = discount.Value * int64(qty)
	}
	if off > gross {
		off = gross
	}
	if off < 0 {
		off = 0
	}
	return gross - off
}

// CouponDiscount computes the order-level discount against the subtotal that
// remains after item-level discounts. It never compounds on the pre-discount
// total and never exceeds the subtotal.
func CouponDiscount(discountedSubtotalCents int64, coupon *domain.Coupon) int64 {
	if coupon == nil || discountedSubtotalCents <= 0 {
		return 0
	}

	var off int64
	switch coupon.Type {
	case domain.DiscountPercent:
		off = roundHalfUp(float64(coupon.Value) / 100 * float64(discountedSubtotalCents))
	case domain.DiscountFixed:
		off = coupon.Value
	}
	if off > discountedSubtotalCents {
		off = discountedSubtotalCents
	}
	if off < 0 {
		off = 0
	}
	return off
}

// GrandTotal is the final amount owed: item subtotals less the coupon
// discount, floored at zero.
func GrandTotal(itemSubtotalCents []int64, couponDiscountCents int64) int64 {
	sum := int64(0)
	for _, s := range itemSubtotalCents {
		sum += s
	}
	total := sum - couponDiscountCents
	if total < 0 {
		total = 0
	}
	return total
}

// Convert translates a base-currency amount into a display currency using a
// multiplicative rate, rounding half-up to the target's minor unit.
func Convert(baseAmountCents int64, rate float64) int64 {
	if rate <= 0 {
		return baseAmountCents
	}
	return roundHalfUp(float64(baseAmountCents) * rate)
}
