// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
)

var (
	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	weiPerGwei  = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
)

// FormatWei formats a wei amount as a decimal ether string.
// For example, FormatWei(1500000000000000000) returns "1.5".
func FormatWei(wei *big.Int) string {
	return formatUnits(wei, weiPerEther, 18)
}

// FormatGwei formats a wei amount as a decimal gwei string.
func FormatGwei(wei *big.Int) string {
	return formatUnits(wei, weiPerGwei, 9)
}

// ParseEther parses a decimal ether string into wei.
// For example, ParseEther("0.01") returns 10000000000000000.
func ParseEther(s string) (*big.Int, error) {
	return parseUnits(s, 18)
}

// ParseGwei parses a decimal gwei string into wei.
func ParseGwei(s string) (*big.Int, error) {
	return parseUnits(s, 9)
}

func formatUnits(wei, divisor *big.Int, decimals int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}

	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	whole := new(big.Int).Div(abs, divisor)
	frac := new(big.Int).Mod(abs, divisor)

	out := whole.String()
	if frac.Sign() != 0 {
		fracStr := fmt.Sprintf("%0*d", decimals, frac)
		for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
			fracStr = fracStr[:len(fracStr)-1]
		}
		out = out + "." + fracStr
	}
	if neg {
		out = "-" + out
	}
	return out
}

func parseUnits(s string, decimals int) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}

	wholeStr := s
	fracStr := ""
	for i, c := range s {
		if c == '.' {
			wholeStr = s[:i]
			fracStr = s[i+1:]
			break
		}
	}
	if wholeStr == "" {
		wholeStr = "0"
	}

	for _, c := range wholeStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}
	for _, c := range fracStr {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}
	if len(fracStr) > decimals {
		return nil, fmt.Errorf("too many decimal places in amount: %s", s)
	}
	for len(fracStr) < decimals {
		fracStr += "0"
	}

	amount, ok := new(big.Int).SetString(wholeStr+fracStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}
