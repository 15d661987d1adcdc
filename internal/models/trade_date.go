package models

import (
	"fmt"
	"strings"
	"time"
)

// TradeDateLayout is the wire format used by the stocks API and the CSV export
// (M/d/yyyy h:mm:ss tt).
const TradeDateLayout = "1/2/2006 3:04:05 PM"

var fallbackDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTradeDate parses a trade date in the primary layout, falling back to
// ISO-8601 variants the JSON endpoint may emit.
func ParseTradeDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty trade date")
	}

	if t, err := time.Parse(TradeDateLayout, value); err == nil {
		return t, nil
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid trade date %q, expected layout %q", value, TradeDateLayout)
}

// FormatTradeDate renders t in the primary trade date layout
func FormatTradeDate(t time.Time) string {
	return t.Format(TradeDateLayout)
}
