package pipeline

import "strings"

// ParseTickers splits user input on commas and spaces, dropping empty tokens.
// Order and duplicates are preserved.
func ParseTickers(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// normalizeTickers trims each ticker and drops the empty ones
func normalizeTickers(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
