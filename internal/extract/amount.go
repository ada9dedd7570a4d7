package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`([0-9][0-9,，.]*)\s*(亿元|万元|元)`)

var unitScale = map[string]decimal.Decimal{
	"元":  decimal.NewFromInt(1),
	"万元": decimal.NewFromInt(10_000),
	"亿元": decimal.NewFromInt(100_000_000),
}

// ParseAmountCNY converts a free-text price such as "12.5亿元" or
// "1,234,567.89元" into yuan. Text without a recognizable amount yields an
// invalid NullDecimal.
func ParseAmountCNY(price string) decimal.NullDecimal {
	m := amountPattern.FindStringSubmatch(price)
	if m == nil {
		return decimal.NullDecimal{}
	}
	digits := strings.NewReplacer(",", "", "，", "").Replace(m[1])
	digits = strings.TrimRight(digits, ".")
	v, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.Mul(unitScale[m[2]]).Round(2))
}
