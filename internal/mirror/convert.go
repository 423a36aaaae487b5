package mirror

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// HbarDecimals is the tinybar precision of HBAR amounts on the mirror node.
const HbarDecimals = 8

// NormalizeWallet lower-cases a wallet identifier (EVM address or shard.realm.num
// account id) before it is used in a query.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// Timestamp encodes a time in the mirror node's fractional-seconds format:
// integer seconds, a dot, and exactly nine nanosecond digits.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// ParseTimestamp decodes a mirror node timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	secPart, nanoPart, _ := strings.Cut(s, ".")

	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid mirror timestamp %q: %w", s, err)
	}

	var nanos int64
	if nanoPart != "" {
		// Right-pad to nine digits so "5.1" parses as 100ms, not 1ns.
		if len(nanoPart) < 9 {
			nanoPart += strings.Repeat("0", 9-len(nanoPart))
		}
		nanos, err = strconv.ParseInt(nanoPart[:9], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid mirror timestamp %q: %w", s, err)
		}
	}

	return time.Unix(sec, nanos).UTC(), nil
}

// ToDisplay converts an integer base-unit amount to display units. The whole
// part is computed with integer division and only the sub-unit remainder goes
// through floating point, so large balances do not lose precision.
func ToDisplay(base *big.Int, decimals int) float64 {
	if base == nil || base.Sign() == 0 {
		return 0
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(base, scale, new(big.Int))

	fracAbs := new(big.Int).Abs(frac)
	fracPart, _ := new(big.Float).Quo(
		new(big.Float).SetInt(fracAbs),
		new(big.Float).SetInt(scale),
	).Float64()

	wholeF, _ := new(big.Float).SetInt(whole).Float64()
	if base.Sign() < 0 && whole.Sign() == 0 {
		return -fracPart
	}
	if base.Sign() < 0 {
		return wholeF - fracPart
	}
	return wholeF + fracPart
}

// TinyToHbar converts a tinybar amount to HBAR display units.
func TinyToHbar(tiny int64) float64 {
	return ToDisplay(big.NewInt(tiny), HbarDecimals)
}
