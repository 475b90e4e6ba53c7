package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/rs/zerolog/log"
)

var orderHeader = []string{"cod", "var", "qty", "discount", "rule"}

// OrderExporter writes the orders of a decision set as CSV to object storage
type OrderExporter struct {
	storage ObjectStorage
	prefix  string
}

var _ pipeline.Exporter = (*OrderExporter)(nil)

func NewOrderExporter(storage ObjectStorage, prefix string) *OrderExporter {
	return &OrderExporter{storage: storage, prefix: prefix}
}

// OrderKey returns <prefix>/<sector>/<date>.csv
func (e *OrderExporter) OrderKey(set *domain.DecisionSet) string {
	return path.Join(e.prefix, set.Sector, set.Date.Format("2006-01-02")+".csv")
}

func (e *OrderExporter) Export(ctx context.Context, set *domain.DecisionSet) (string, error) {
	data, err := RenderOrdersCSV(set)
	if err != nil {
		return "", err
	}

	key := e.OrderKey(set)
	if err := e.storage.UploadObject(ctx, key, data, "text/csv"); err != nil {
		return "", err
	}

	uri := e.storage.URI(key)
	log.Info().
		Str("sector", set.Sector).
		Int("orders", len(set.Orders)).
		Str("uri", uri).
		Msg("storage: orders exported")
	return uri, nil
}

// RenderOrdersCSV renders one line per order. Orders without a discount
// leave the discount column empty.
func RenderOrdersCSV(set *domain.DecisionSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(orderHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range set.Orders {
		discount := ""
		if o.DiscountPct != nil {
			discount = strconv.FormatFloat(*o.DiscountPct, 'f', -1, 64)
		}
		record := []string{
			strconv.Itoa(o.Key.Code),
			strconv.Itoa(o.Key.Variant),
			strconv.Itoa(o.Quantity),
			discount,
			strconv.Itoa(o.RuleID),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write order %s: %w", o.Key, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
