package lendingpool

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed-point kernels. All balances and indexes are unsigned 128-bit values
// carried as *big.Int; every multiply-then-divide runs through a 256-bit
// uint256 intermediate so the product cannot overflow before the division.
// Rounding direction is explicit in the function name.

var (
	oneE6  = big.NewInt(1_000_000)
	oneE8  = big.NewInt(100_000_000)
	oneE10 = big.NewInt(10_000_000_000)
	oneE18 = big.NewInt(1_000_000_000_000_000_000)

	maxBalance = maxU128()
)

func maxU128() *uint256.Int {
	max := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return max.SubUint64(max, 1)
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrMathUnderflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func boundToBalance(v *uint256.Int) (*big.Int, error) {
	if v.Gt(maxBalance) {
		return nil, ErrMathOverflow
	}
	return v.ToBig(), nil
}

// mulDivDown computes floor(a*b/c) with a 512-bit internal product.
func mulDivDown(a, b, c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() == 0 {
		return nil, ErrDivByZero
	}
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	d, err := toU256(c)
	if err != nil {
		return nil, err
	}
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	return boundToBalance(res)
}

// mulDivUp computes ceil(a*b/c) with a 512-bit internal product.
func mulDivUp(a, b, c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() == 0 {
		return nil, ErrDivByZero
	}
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	d, err := toU256(c)
	if err != nil {
		return nil, err
	}
	res, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	rem := new(uint256.Int).MulMod(x, y, d)
	if !rem.IsZero() {
		var carried bool
		res, carried = res.AddOverflow(res, uint256.NewInt(1))
		if carried {
			return nil, ErrMathOverflow
		}
	}
	return boundToBalance(res)
}

// e18MulE18Down multiplies two E18-scaled values, result at E18, rounded down.
func e18MulE18Down(a, b *big.Int) (*big.Int, error) {
	return mulDivDown(a, b, oneE18)
}

// e18MulE18Up multiplies two E18-scaled values, result at E18, rounded up.
func e18MulE18Up(a, b *big.Int) (*big.Int, error) {
	return mulDivUp(a, b, oneE18)
}

// e24MulE0ToE18Down multiplies a per-millisecond rate by a raw duration and
// rescales to E18, rounded down.
func e24MulE0ToE18Down(a, b *big.Int) (*big.Int, error) {
	return mulDivDown(a, b, oneE6)
}

// e24MulE0ToE18Up is the round-up variant of e24MulE0ToE18Down.
func e24MulE0ToE18Up(a, b *big.Int) (*big.Int, error) {
	return mulDivUp(a, b, oneE6)
}

// e8MulE6ToE6Down multiplies an E8-scaled USD value by an E6 coefficient,
// result at E6, rounded down.
func e8MulE6ToE6Down(a, b *big.Int) (*big.Int, error) {
	return mulDivDown(a, b, oneE8)
}

// e8MulE6ToE6Up is the round-up variant of e8MulE6ToE6Down. Debt power uses
// it so a borrow cannot ride on a fractional power unit.
func e8MulE6ToE6Up(a, b *big.Int) (*big.Int, error) {
	return mulDivUp(a, b, oneE8)
}

// calculateAmountToTake converts a repaid debt amount into the collateral a
// liquidator seizes, applying both penalties from the liquidated account's
// market rule. Every step rounds down so the protocol never over-credits the
// liquidator.
func calculateAmountToTake(amountToRepay, priceRepayE18, priceTakeE18, repayDecimalMult, takeDecimalMult, penaltyRepayE6, penaltyTakeE6 *big.Int) (*big.Int, error) {
	bonusE6 := new(big.Int).Add(penaltyRepayE6, penaltyTakeE6)
	bonusE6.Add(bonusE6, oneE6)
	scaled, err := mulDivDown(amountToRepay, priceRepayE18, priceTakeE18)
	if err != nil {
		return nil, err
	}
	scaled, err = mulDivDown(scaled, takeDecimalMult, repayDecimalMult)
	if err != nil {
		return nil, err
	}
	return mulDivDown(scaled, bonusE6, oneE6)
}

// checkBalance rejects values outside the unsigned 128-bit balance range.
func checkBalance(v *big.Int) error {
	u, err := toU256(v)
	if err != nil {
		return err
	}
	if u.Gt(maxBalance) {
		return ErrMathOverflow
	}
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
