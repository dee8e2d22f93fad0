package util

import (
	"fmt"
	"math/big"
	"strings"
)

const WeiDecimals = 18

var weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(WeiDecimals), nil)

// ParseAmountToWei parses positive decimal amount in main units (like '0.25') into wei
func ParseAmountToWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && fracPart == "" && intPart == "" {
		return nil, fmt.Errorf("wrong amount '%s'", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > WeiDecimals {
		return nil, fmt.Errorf("amount '%s' has more than %d decimals", s, WeiDecimals)
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, fmt.Errorf("wrong amount '%s'", s)
	}
	ret, ok := new(big.Int).SetString(intPart+fracPart+strings.Repeat("0", WeiDecimals-len(fracPart)), 10)
	if !ok {
		return nil, fmt.Errorf("wrong amount '%s'", s)
	}
	if ret.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: '%s'", s)
	}
	return ret, nil
}

// ParseWei parses non-negative decimal integer
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return nil, fmt.Errorf("wrong wei amount '%s'", s)
	}
	ret, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("wrong wei amount '%s'", s)
	}
	return ret, nil
}

// FormatWei formats wei as decimal amount in main units, trailing zeros removed
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(wei, weiPerUnit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := new(big.Int).Abs(r).String()
	frac = strings.Repeat("0", WeiDecimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
