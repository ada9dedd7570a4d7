package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// exchangeZone is the time zone announcement timestamps are published in.
var exchangeZone = time.FixedZone("CST", 8*60*60)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"20060102",
	"2006/01/02",
}

// ParseDate accepts epoch milliseconds, 2006-01-02, "2006-01-02 15:04:05",
// RFC3339 and 20060102. Epoch values are interpreted in exchange time.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if len(s) >= 11 && isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).In(exchangeZone), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, exchangeZone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
