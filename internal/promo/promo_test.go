package promo_test

import (
	"context"
	"testing"

	"ms-purchase/internal/promo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBoundsDiscount(t *testing.T) {
	assert.Equal(t, int64(500), promo.Clamp(500, 1000))
	assert.Equal(t, int64(1000), promo.Clamp(5000, 1000))
	assert.Equal(t, int64(0), promo.Clamp(-100, 1000))
	assert.Equal(t, int64(0), promo.Clamp(0, 1000))
}

func TestNoopResolverNeverDiscounts(t *testing.T) {
	discount, err := promo.NoopResolver{}.ResolvePromo(context.Background(), "ANYTHING", 10000)
	require.NoError(t, err)
	assert.Zero(t, discount)
}
