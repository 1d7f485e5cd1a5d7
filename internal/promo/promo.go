package promo

import "context"

// Resolver is the external promo lookup collaborator. Given a code and the
// pre-discount cart total it returns the discount in cents. A zero discount
// with nil error means the code exists but does not apply.
type Resolver interface {
	ResolvePromo(ctx context.Context, code string, cartTotalCents int64) (int64, error)
}

// NoopResolver rejects nothing and discounts nothing; used when no promo
// service is configured.
type NoopResolver struct{}

func (NoopResolver) ResolvePromo(ctx context.Context, code string, cartTotalCents int64) (int64, error) {
	return 0, nil
}

// Clamp bounds a resolved discount so the order total can never go negative.
func Clamp(discountCents, cartTotalCents int64) int64 {
	if discountCents < 0 {
		return 0
	}
	if discountCents > cartTotalCents {
		return cartTotalCents
	}
	return discountCents
}
