package model

import "strings"

// Exchange identifiers.
const (
	ExchangeShanghai = "SH"
	ExchangeShenzhen = "SZ"
	ExchangeBeijing  = "BJ"
)

// NormalizeCode reduces a stock code such as "sz000001", "000001.SZ" or
// " 000001 " to its six digits. Codes that do not contain six digits are
// returned trimmed and unchanged.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	digits := make([]byte, 0, 6)
	for i := 0; i < len(code); i++ {
		if c := code[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) != 6 {
		return code
	}
	return string(digits)
}

// Exchange infers the listing exchange from a six-digit A-share code, or
// returns "" if the code is not recognized.
func Exchange(code string) string {
	code = NormalizeCode(code)
	if len(code) != 6 {
		return ""
	}
	switch code[0] {
	case '6', '9', '5':
		return ExchangeShanghai
	case '0', '2', '3', '1':
		return ExchangeShenzhen
	case '4', '8':
		return ExchangeBeijing
	}
	return ""
}
