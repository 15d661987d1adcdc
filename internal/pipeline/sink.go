package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/shopspring/decimal"

	"stock-analyzer/internal/models"
)

// Sink receives a run's user-facing output. The pipeline calls it
// synchronously, but the cancellation notice may arrive from another
// goroutine, so implementations must be safe for concurrent use.
type Sink interface {
	ReportValues(values []models.DerivedValue)
	ReportTotal(total decimal.Decimal)
	Log(message string)
}

// ArrivalSink is implemented by sinks that preview series as they land
type ArrivalSink interface {
	ReportArrival(series models.PriceSeries)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) ReportValues([]models.DerivedValue) {}
func (NopSink) ReportTotal(decimal.Decimal)        {}
func (NopSink) Log(string)                         {}

// Recorder keeps everything a run reports and fans note lines out to
// subscribers
type Recorder struct {
	mu             sync.Mutex
	notes          []string
	values         []models.DerivedValue
	valuesReported bool
	total          decimal.Decimal
	totalReported  bool
	previews       []models.PriceSeries
	subscribers    map[int]chan string
	nextID         int
	closed         bool
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{subscribers: make(map[int]chan string)}
}

func (r *Recorder) ReportValues(values []models.DerivedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append([]models.DerivedValue(nil), values...)
	r.valuesReported = true
}

func (r *Recorder) ReportTotal(total decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.totalReported = true
}

func (r *Recorder) ReportArrival(series models.PriceSeries) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previews = append(r.previews, series)
}

// Log appends a note and forwards it to subscribers. A subscriber whose
// buffer is full misses the line but can re-read it from Notes.
func (r *Recorder) Log(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, message)
	for _, ch := range r.subscribers {
		select {
		case ch <- message:
		default:
		}
	}
}

// Notes returns a copy of the note lines so far
func (r *Recorder) Notes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}

// Values returns the reported values and whether they were reported
func (r *Recorder) Values() ([]models.DerivedValue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DerivedValue(nil), r.values...), r.valuesReported
}

// Total returns the reported total and whether it was reported
func (r *Recorder) Total() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.totalReported
}

// Previews returns the arrival previews in arrival order
func (r *Recorder) Previews() []models.PriceSeries {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PriceSeries(nil), r.previews...)
}

// Subscribe returns the notes logged so far and a channel carrying the ones
// that follow. The channel is closed by Close or by the returned cancel func.
func (r *Recorder) Subscribe(buffer int) ([]string, <-chan string, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	backlog := append([]string(nil), r.notes...)
	ch := make(chan string, buffer)
	if r.closed {
		close(ch)
		return backlog, ch, func() {}
	}

	id := r.nextID
	r.nextID++
	r.subscribers[id] = ch

	return backlog, ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
}

// Close ends every subscription. Later notes are still recorded.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}

// WriterSink prints a run's output as plain text lines
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) ReportValues(values []models.DerivedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		fmt.Fprintf(s.w, "%-8s %s\n", v.Ticker, v.Result.StringFixed(2))
	}
}

func (s *WriterSink) ReportTotal(total decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "total    %s\n", total.String())
}

func (s *WriterSink) ReportArrival(series models.PriceSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range series.Points {
		fmt.Fprintf(s.w, "  %-8s %s  vol=%d  change=%s (%s%%)\n",
			p.Ticker, models.FormatTradeDate(p.TradeDate), p.Volume, p.Change.String(), p.ChangePercent.String())
	}
}

func (s *WriterSink) Log(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, message)
}
