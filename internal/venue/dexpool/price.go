package dexpool

import (
	"math/big"

	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

// AdjustedReserve converts a raw reserve into whole tokens.
func AdjustedReserve(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// NativePriceFunc supplies the chain's wrapped-native price in stable terms.
type NativePriceFunc func() (decimal.Decimal, error)

// PoolPrice derives the target token's price in USD-pegged terms from a
// pool's reserves. The stable-quote path is preferred; a target/native pool
// falls back to the cached native price; anything else has no quote path.
func PoolPrice(chain Chain, meta PoolMeta, reserve0, reserve1 *big.Int, nativePrice NativePriceFunc) (decimal.Decimal, error) {
	r0 := AdjustedReserve(reserve0, meta.Decimals0)
	r1 := AdjustedReserve(reserve1, meta.Decimals1)

	quote0 := chain.IsStable(meta.Token0)
	quote1 := chain.IsStable(meta.Token1)

	switch {
	case quote0 && !quote1:
		return ratio(r0, r1)
	case quote1 && !quote0:
		return ratio(r1, r0)
	}

	// No stable side; try pricing through the wrapped native.
	if nativePrice != nil {
		var inNative decimal.Decimal
		var err error
		switch {
		case chain.IsWrappedNative(meta.Token0) && !chain.IsWrappedNative(meta.Token1):
			inNative, err = ratio(r0, r1)
		case chain.IsWrappedNative(meta.Token1) && !chain.IsWrappedNative(meta.Token0):
			inNative, err = ratio(r1, r0)
		default:
			return decimal.Zero, apperrors.ErrNoQuotePath
		}
		if err != nil {
			return decimal.Zero, err
		}
		native, err := nativePrice()
		if err != nil {
			return decimal.Zero, err
		}
		return inNative.Mul(native), nil
	}

	return decimal.Zero, apperrors.ErrNoQuotePath
}

func ratio(quote, target decimal.Decimal) (decimal.Decimal, error) {
	if target.IsZero() {
		return decimal.Zero, apperrors.ErrNoQuotePath
	}
	return quote.Div(target), nil
}
