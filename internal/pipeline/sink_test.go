package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analyzer/internal/models"
)

func TestRecorder(t *testing.T) {
	t.Run("keeps what was reported", func(t *testing.T) {
		r := NewRecorder()

		_, ok := r.Values()
		assert.False(t, ok)

		r.ReportValues([]models.DerivedValue{{Ticker: "MSFT", Result: decimal.NewFromInt(1)}})
		r.ReportTotal(decimal.NewFromInt(42))
		r.Log("one")

		values, ok := r.Values()
		assert.True(t, ok)
		assert.Len(t, values, 1)
		total, ok := r.Total()
		assert.True(t, ok)
		assert.Equal(t, "42", total.String())
		assert.Equal(t, []string{"one"}, r.Notes())
	})

	t.Run("subscribers get backlog then live notes", func(t *testing.T) {
		r := NewRecorder()
		r.Log("first")

		backlog, ch, cancel := r.Subscribe(4)
		defer cancel()
		assert.Equal(t, []string{"first"}, backlog)

		r.Log("second")
		select {
		case note := <-ch:
			assert.Equal(t, "second", note)
		case <-time.After(time.Second):
			t.Fatal("note not delivered")
		}

		r.Close()
		_, open := <-ch
		assert.False(t, open)
	})

	t.Run("subscribe after close gets a closed channel", func(t *testing.T) {
		r := NewRecorder()
		r.Log("done")
		r.Close()

		backlog, ch, cancel := r.Subscribe(1)
		defer cancel()

		assert.Equal(t, []string{"done"}, backlog)
		_, open := <-ch
		assert.False(t, open)
	})

	t.Run("cancel is idempotent with close", func(t *testing.T) {
		r := NewRecorder()
		_, _, cancel := r.Subscribe(1)
		cancel()
		assert.NotPanics(t, func() {
			r.Close()
			cancel()
		})
	})
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	sink.ReportValues([]models.DerivedValue{{Ticker: "MSFT", Result: decimal.RequireFromString("1.5")}})
	sink.ReportTotal(decimal.NewFromInt(3900))
	sink.Log("Stock price total: 3,900.00")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "MSFT     1.50\n")
	assert.Contains(t, out, "total    3900\n")
	assert.Contains(t, out, "Stock price total: 3,900.00\n")
}
