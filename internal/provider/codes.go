package provider

import (
	"fmt"
	"strings"
)

// Canonical symbol form is the exchange-prefixed lowercase code used by the
// Tencent and Sina quote endpoints: "sh600519", "sz000001", "bj830799".
// Everything internal keys on this form; only the Eastmoney adapter needs
// its own secid encoding.

// NormalizeSymbol maps a bare or prefixed A-share code to canonical form.
func NormalizeSymbol(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "sh.")
	s = strings.TrimPrefix(s, "sz.")
	s = strings.TrimPrefix(s, "bj.")

	if len(s) == 8 {
		prefix, code := s[:2], s[2:]
		switch prefix {
		case "sh", "sz", "bj":
			if !allDigits(code) {
				return "", fmt.Errorf("invalid symbol %q", raw)
			}
			return s, nil
		}
	}
	if len(s) != 6 || !allDigits(s) {
		return "", fmt.Errorf("invalid symbol %q", raw)
	}

	switch s[0] {
	case '6', '9', '5': // 6xx mainboard/STAR, 9xx B-share, 5xx SH funds
		return "sh" + s, nil
	case '0', '2', '3', '1': // SZ mainboard, B-share, ChiNext, SZ funds
		return "sz" + s, nil
	case '4', '8': // NEEQ / Beijing exchange
		return "bj" + s, nil
	}
	return "", fmt.Errorf("unrecognized symbol %q", raw)
}

// BareCode strips the exchange prefix: "sh600519" -> "600519".
func BareCode(symbol string) string {
	if len(symbol) == 8 {
		return symbol[2:]
	}
	return symbol
}

// eastmoneySecID renders the push2 market-prefixed id: "1.600519" for
// Shanghai, "0.000001" for Shenzhen and Beijing.
func eastmoneySecID(symbol string) string {
	if strings.HasPrefix(symbol, "sh") {
		return "1." + BareCode(symbol)
	}
	return "0." + BareCode(symbol)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
