package stocksapi

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"stock-analyzer/internal/models"
	"stock-analyzer/internal/types"
)

// stockPriceRow is one element of the /api/stocks/{ticker} response. Field
// names match case-insensitively, so both camelCase and PascalCase payloads decode.
type stockPriceRow struct {
	Ticker        string      `json:"ticker"`
	TradeDate     string      `json:"tradeDate"`
	Volume        json.Number `json:"volume"`
	Change        json.Number `json:"change"`
	ChangePercent json.Number `json:"changePercent"`
}

// toPricePoints maps every row or fails the whole series on the first bad row
func toPricePoints(ticker string, rows []stockPriceRow) ([]models.PricePoint, error) {
	points := make([]models.PricePoint, 0, len(rows))

	for i, row := range rows {
		rowNum := i + 1
		fail := func(field, value string, err error) error {
			return &types.ParseError{Ticker: ticker, Row: rowNum, Field: field, Value: value, Err: err}
		}

		tradeDate, err := models.ParseTradeDate(row.TradeDate)
		if err != nil {
			return nil, fail("TradeDate", row.TradeDate, err)
		}

		var volume int64
		if row.Volume != "" {
			v, err := decimal.NewFromString(row.Volume.String())
			if err != nil {
				return nil, fail("Volume", row.Volume.String(), err)
			}
			if !v.IsInteger() {
				return nil, fail("Volume", row.Volume.String(), fmt.Errorf("not a whole number"))
			}
			volume = v.IntPart()
		}

		change, err := parseDecimal(row.Change)
		if err != nil {
			return nil, fail("Change", row.Change.String(), err)
		}

		changePercent, err := parseDecimal(row.ChangePercent)
		if err != nil {
			return nil, fail("ChangePercent", row.ChangePercent.String(), err)
		}

		rowTicker := row.Ticker
		if rowTicker == "" {
			rowTicker = ticker
		}

		points = append(points, models.PricePoint{
			Ticker:        rowTicker,
			TradeDate:     tradeDate,
			Volume:        volume,
			Change:        change,
			ChangePercent: changePercent,
		})
	}

	return points, nil
}

func parseDecimal(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
