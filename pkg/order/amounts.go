package order

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// collateral and outcome tokens both carry 6 decimals
const tokenDecimals = 6

const sizeDecimals = 2

// roundConfig holds the decimal places allowed for a tick size.
// A tick of 0.01 allows 2 for price, 2 for size and 4 for amounts.
type roundConfig struct {
	price  int32
	size   int32
	amount int32
}

func roundConfigFor(tick decimal.Decimal) (roundConfig, error) {
	if !tick.IsPositive() || tick.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return roundConfig{}, fmt.Errorf("unsupported tick size %s", tick)
	}
	p := decimalPlaces(tick)
	return roundConfig{price: p, size: sizeDecimals, amount: p + 2}, nil
}

// decimalPlaces counts significant fractional digits, ignoring trailing zeros.
func decimalPlaces(d decimal.Decimal) int32 {
	var n int32
	for !d.Shift(n).IsInteger() {
		n++
	}
	return n
}

// validatePrice requires price to sit on the tick grid inside [tick, 1-tick].
func validatePrice(price, tick decimal.Decimal) error {
	if !price.Mod(tick).IsZero() {
		return fmt.Errorf("price %s is not a multiple of tick size %s", price, tick)
	}
	upper := decimal.NewFromInt(1).Sub(tick)
	if price.LessThan(tick) || price.GreaterThan(upper) {
		return fmt.Errorf("price %s outside [%s, %s]", price, tick, upper)
	}
	return nil
}

// amounts returns maker and taker amounts in 6-decimal fixed point.
// BUY pays price*size collateral for size tokens; SELL gives size tokens for
// price*size collateral.
func amounts(side Side, price, size decimal.Decimal, rc roundConfig) (maker, taker *big.Int, err error) {
	shares := size.RoundDown(rc.size)
	if !shares.IsPositive() {
		return nil, nil, fmt.Errorf("size %s rounds to zero", size)
	}
	notional := fitAmount(shares.Mul(price.Round(rc.price)), rc.amount)
	if !notional.IsPositive() {
		return nil, nil, fmt.Errorf("notional of %s x %s rounds to zero", size, price)
	}

	switch side {
	case Buy:
		return toTokenUnits(notional), toTokenUnits(shares), nil
	case Sell:
		return toTokenUnits(shares), toTokenUnits(notional), nil
	default:
		return nil, nil, fmt.Errorf("unknown side %d", side)
	}
}

// fitAmount trims x to places decimals, first rounding up at places+4 so
// float-like tails (0.12999999) land on the intended value.
func fitAmount(x decimal.Decimal, places int32) decimal.Decimal {
	if decimalPlaces(x) > places {
		x = x.RoundUp(places + 4)
		if decimalPlaces(x) > places {
			x = x.RoundDown(places)
		}
	}
	return x
}

func toTokenUnits(x decimal.Decimal) *big.Int {
	return x.Shift(tokenDecimals).Round(0).BigInt()
}
