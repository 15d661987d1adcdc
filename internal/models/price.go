package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint represents a single trade record for a ticker
type PricePoint struct {
	Ticker        string          `json:"ticker"`
	TradeDate     time.Time       `json:"trade_date"`
	Volume        int64           `json:"volume"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// PriceSeries is the ordered history of price points for one ticker.
// A series is produced by exactly one fetch and is not mutated afterwards.
type PriceSeries struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// DerivedValue is the per-ticker result of the aggregation stage
type DerivedValue struct {
	Ticker string          `json:"ticker"`
	Result decimal.Decimal `json:"result"`
}

// NewPriceSeries builds a series for ticker from the given points
func NewPriceSeries(ticker string, points []PricePoint) PriceSeries {
	if points == nil {
		points = []PricePoint{}
	}
	return PriceSeries{Ticker: ticker, Points: points}
}

// Len returns the number of points in the series
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// IsEmpty reports whether the series has no points
func (s PriceSeries) IsEmpty() bool {
	return len(s.Points) == 0
}

// TotalChange sums the Change field over every point
func (s PriceSeries) TotalChange() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Points {
		total = total.Add(p.Change)
	}
	return total
}

// Head returns at most n leading points of the series
func (s PriceSeries) Head(n int) PriceSeries {
	if n < 0 || n >= len(s.Points) {
		return s
	}
	return PriceSeries{Ticker: s.Ticker, Points: s.Points[:n]}
}

// TimeRange returns the earliest and latest trade dates in the series
func (s PriceSeries) TimeRange() (from, to time.Time) {
	for i, p := range s.Points {
		if i == 0 || p.TradeDate.Before(from) {
			from = p.TradeDate
		}
		if i == 0 || p.TradeDate.After(to) {
			to = p.TradeDate
		}
	}
	return from, to
}

// ToJSON converts the series to JSON bytes
func (s PriceSeries) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON fills the series from JSON bytes
func (s *PriceSeries) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// SumResults adds up the Result field of a list of derived values
func SumResults(values []DerivedValue) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.Result)
	}
	return total
}
