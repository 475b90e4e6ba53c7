package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	// MaxHistoryMonths is the capacity of monthly histories
	MaxHistoryMonths = 24
	// MaxLedgerEntries is the capacity of the recent sales ledger
	MaxLedgerEntries = 10
)

// MonthlyHistory is an immutable newest-first sequence of monthly quantities
// capped at MaxHistoryMonths. Index 0 is the current month. Reads past the
// end return 0.
type MonthlyHistory struct {
	values []int
}

// NewMonthlyHistory builds a history from newest-first values, keeping the
// newest MaxHistoryMonths.
func NewMonthlyHistory(values ...int) MonthlyHistory {
	if len(values) > MaxHistoryMonths {
		values = values[:MaxHistoryMonths]
	}
	out := make([]int, len(values))
	copy(out, values)
	return MonthlyHistory{values: out}
}

// Len returns the number of recorded months
func (h MonthlyHistory) Len() int { return len(h.values) }

// At returns the value i months ago, 0 when missing
func (h MonthlyHistory) At(i int) int {
	if i < 0 || i >= len(h.values) {
		return 0
	}
	return h.values[i]
}

// Values returns a copy of the values, newest first
func (h MonthlyHistory) Values() []int {
	out := make([]int, len(h.values))
	copy(out, h.values)
	return out
}

// From returns the history starting i months ago
func (h MonthlyHistory) From(i int) MonthlyHistory {
	if i >= len(h.values) {
		return MonthlyHistory{}
	}
	if i < 0 {
		i = 0
	}
	return NewMonthlyHistory(h.values[i:]...)
}

// PushFront returns a new history with v as the current month
func (h MonthlyHistory) PushFront(v int) MonthlyHistory {
	out := make([]int, 0, len(h.values)+1)
	out = append(out, v)
	out = append(out, h.values...)
	return NewMonthlyHistory(out...)
}

// PadFront pushes n zero months to the front
func (h MonthlyHistory) PadFront(n int) MonthlyHistory {
	for i := 0; i < n; i++ {
		h = h.PushFront(0)
	}
	return h
}

// WithCurrent returns a new history whose current month is v. An empty
// history gains one entry.
func (h MonthlyHistory) WithCurrent(v int) MonthlyHistory {
	if len(h.values) == 0 {
		return NewMonthlyHistory(v)
	}
	out := h.Values()
	out[0] = v
	return MonthlyHistory{values: out}
}

// Plus adds other elementwise over the length of h. Months of other beyond
// h's length are ignored.
func (h MonthlyHistory) Plus(other MonthlyHistory) MonthlyHistory {
	out := h.Values()
	for i := range out {
		out[i] += other.At(i)
	}
	return MonthlyHistory{values: out}
}

func (h MonthlyHistory) MarshalJSON() ([]byte, error) {
	if h.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.values)
}

func (h *MonthlyHistory) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode monthly history: %w", err)
	}
	*h = NewMonthlyHistory(values...)
	return nil
}

// Value stores the history as a JSON array
func (h MonthlyHistory) Value() (driver.Value, error) {
	b, err := h.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array column
func (h *MonthlyHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// SalesEntry is a [delta, days] pair: delta units sold over days days
type SalesEntry struct {
	Delta int
	Days  int
}

func (e SalesEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{e.Delta, e.Days})
}

func (e *SalesEntry) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode sales entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode sales entry: expected pair, got %d values", len(pair))
	}
	e.Delta, e.Days = pair[0], pair[1]
	return nil
}

// SalesLedger is an immutable newest-first list of recent sales entries
// capped at MaxLedgerEntries.
type SalesLedger struct {
	entries []SalesEntry
}

// NewSalesLedger builds a ledger from newest-first entries
func NewSalesLedger(entries ...SalesEntry) SalesLedger {
	if len(entries) > MaxLedgerEntries {
		entries = entries[:MaxLedgerEntries]
	}
	out := make([]SalesEntry, len(entries))
	copy(out, entries)
	return SalesLedger{entries: out}
}

// Len returns the number of entries
func (l SalesLedger) Len() int { return len(l.entries) }

// Entries returns a copy of the entries, newest first
func (l SalesLedger) Entries() []SalesEntry {
	out := make([]SalesEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// PushFront returns a new ledger with e as the newest entry
func (l SalesLedger) PushFront(e SalesEntry) SalesLedger {
	out := make([]SalesEntry, 0, len(l.entries)+1)
	out = append(out, e)
	out = append(out, l.entries...)
	return NewSalesLedger(out...)
}

// DailySeries expands the ledger into one value per observed day, newest
// first. An entry covering n days contributes n values of delta/n. Entries
// with no days are dropped.
func (l SalesLedger) DailySeries() []float64 {
	var series []float64
	for _, e := range l.entries {
		if e.Days <= 0 {
			continue
		}
		perDay := float64(e.Delta) / float64(e.Days)
		for i := 0; i < e.Days; i++ {
			series = append(series, perDay)
		}
	}
	return series
}

func (l SalesLedger) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

func (l *SalesLedger) UnmarshalJSON(data []byte) error {
	var entries []SalesEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode sales ledger: %w", err)
	}
	*l = NewSalesLedger(entries...)
	return nil
}

// Value stores the ledger as a JSON array of pairs
func (l SalesLedger) Value() (driver.Value, error) {
	b, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array column
func (l *SalesLedger) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dst json.Unmarshaler) error {
	switch v := src.(type) {
	case nil:
		return dst.UnmarshalJSON([]byte("[]"))
	case []byte:
		if len(v) == 0 {
			return dst.UnmarshalJSON([]byte("[]"))
		}
		return dst.UnmarshalJSON(v)
	case string:
		if v == "" {
			return dst.UnmarshalJSON([]byte("[]"))
		}
		return dst.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
