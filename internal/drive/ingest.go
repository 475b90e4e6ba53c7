package drive

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/rs/zerolog/log"
)

// SheetKind selects how a downloaded sheet is interpreted
type SheetKind string

const (
	SheetVerification SheetKind = "verification"
	SheetLosses       SheetKind = "losses"
	SheetObservations SheetKind = "observations"
)

// columns accepted for each field, lower case
var (
	codeColumns    = []string{"cod", "code"}
	variantColumns = []string{"v", "var", "variant"}
	stockColumns   = []string{"stock"}
	typeColumns    = []string{"type", "loss_type"}
	lossQtyColumns = []string{"qty", "quantity"}
	soldColumns    = []string{"sold", "venduto"}
	boughtColumns  = []string{"bought", "comprato"}
	prevSold       = []string{"prev_sold"}
	prevBought     = []string{"prev_bought"}
)

type IngestService struct {
	files     Files
	inventory *service.InventoryService
}

func NewIngestService(files Files, inventory *service.InventoryService) *IngestService {
	return &IngestService{
		files:     files,
		inventory: inventory,
	}
}

// IngestFile downloads a sheet from Drive and applies its rows
func (s *IngestService) IngestFile(ctx context.Context, fileID string, kind SheetKind, date time.Time) (*service.IngestReport, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.files.DownloadFile(ctx, fileID, &buf); err != nil {
		return nil, err
	}

	records, err := ReadSheet(file.Name, &buf)
	if err != nil {
		return nil, err
	}

	report, err := s.ApplySheet(ctx, records, kind, date)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", file.Name, err)
	}
	log.Info().
		Str("file", file.Name).
		Str("kind", string(kind)).
		Int("applied", report.Applied).
		Int("failed", report.Failed).
		Msg("drive: sheet ingested")
	return report, nil
}

// IngestFolder ingests every sheet of a folder whose name starts with a
// sheet kind; other files are ignored
func (s *IngestService) IngestFolder(ctx context.Context, path string, date time.Time) (map[string]*service.IngestReport, error) {
	folderID, err := s.files.FindFolderByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}

	reports := make(map[string]*service.IngestReport)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		kind, ok := kindOf(f.Name)
		if !ok || f.MimeType == folderMimeType {
			continue
		}
		report, err := s.IngestFile(ctx, f.ID, kind, date)
		if err != nil {
			return reports, err
		}
		reports[f.Name] = report
	}
	return reports, nil
}

func kindOf(name string) (SheetKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, string(SheetVerification)):
		return SheetVerification, true
	case strings.HasPrefix(lower, string(SheetLosses)):
		return SheetLosses, true
	case strings.HasPrefix(lower, string(SheetObservations)):
		return SheetObservations, true
	}
	return "", false
}

// ApplySheet parses records of the given kind and applies them to the inventory
func (s *IngestService) ApplySheet(ctx context.Context, records [][]string, kind SheetKind, date time.Time) (*service.IngestReport, error) {
	switch kind {
	case SheetVerification:
		counts, rowErrs, err := ParseVerification(records)
		if err != nil {
			return nil, err
		}
		report, err := s.inventory.ApplyVerification(ctx, counts, date)
		return withRowErrors(report, rowErrs), err
	case SheetLosses:
		entries, rowErrs, err := ParseLosses(records)
		if err != nil {
			return nil, err
		}
		report, err := s.inventory.ApplyLosses(ctx, entries, date)
		return withRowErrors(report, rowErrs), err
	case SheetObservations:
		observations, rowErrs, err := ParseObservations(records)
		if err != nil {
			return nil, err
		}
		report, err := s.inventory.ApplyObservations(ctx, observations, date)
		return withRowErrors(report, rowErrs), err
	default:
		return nil, fmt.Errorf("unknown sheet kind %q", kind)
	}
}

func withRowErrors(report *service.IngestReport, rowErrs []string) *service.IngestReport {
	if report == nil {
		return nil
	}
	report.Failed += len(rowErrs)
	report.Errors = append(rowErrs, report.Errors...)
	return report
}

// sheet maps header names to column indices
type sheet struct {
	columns map[string]int
}

func newSheet(header []string) sheet {
	columns := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}
	return sheet{columns: columns}
}

func (s sheet) index(names []string) (int, bool) {
	for _, name := range names {
		if i, ok := s.columns[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func (s sheet) require(names ...[]string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, alternatives := range names {
		i, ok := s.index(alternatives)
		if !ok {
			return nil, fmt.Errorf("%w: missing required column %s", ErrMalformedSheet, alternatives[0])
		}
		out = append(out, i)
	}
	return out, nil
}

func cell(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

// parseInt accepts integral spreadsheet numbers such as "12" or "12.0"
func parseInt(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return int(f), nil
}

func parseKey(record []string, codeIdx, varIdx int) (domain.ProductKey, error) {
	code, err := parseInt(cell(record, codeIdx))
	if err != nil {
		return domain.ProductKey{}, fmt.Errorf("cod: %w", err)
	}
	variant, err := parseInt(cell(record, varIdx))
	if err != nil {
		return domain.ProductKey{}, fmt.Errorf("v: %w", err)
	}
	return domain.ProductKey{Code: code, Variant: variant}, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseVerification reads cod, v and stock columns. Malformed rows are
// reported by line and skipped.
func ParseVerification(records [][]string) ([]service.StockCount, []string, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet is empty", ErrMalformedSheet)
	}
	idx, err := newSheet(records[0]).require(codeColumns, variantColumns, stockColumns)
	if err != nil {
		return nil, nil, err
	}

	var (
		counts  []service.StockCount
		rowErrs []string
	)
	for n, record := range records[1:] {
		if blank(record) {
			continue
		}
		line := n + 2
		key, err := parseKey(record, idx[0], idx[1])
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		stock, err := parseInt(cell(record, idx[2]))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: stock: %v", line, err))
			continue
		}
		counts = append(counts, service.StockCount{Key: key, Stock: stock})
	}
	return counts, rowErrs, nil
}

// ParseLosses reads cod, v, type and qty columns
func ParseLosses(records [][]string) ([]service.LossEntry, []string, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet is empty", ErrMalformedSheet)
	}
	idx, err := newSheet(records[0]).require(codeColumns, variantColumns, typeColumns, lossQtyColumns)
	if err != nil {
		return nil, nil, err
	}

	var (
		entries []service.LossEntry
		rowErrs []string
	)
	for n, record := range records[1:] {
		if blank(record) {
			continue
		}
		line := n + 2
		key, err := parseKey(record, idx[0], idx[1])
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		lossType := domain.LossType(strings.ToLower(cell(record, idx[2])))
		if !lossType.Valid() {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: unknown loss type %q", line, lossType))
			continue
		}
		qty, err := parseInt(cell(record, idx[3]))
		if err != nil || qty <= 0 {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: qty must be a positive integer", line))
			continue
		}
		entries = append(entries, service.LossEntry{Key: key, Type: lossType, Qty: qty})
	}
	return entries, rowErrs, nil
}

// ParseObservations reads cod, v, sold and bought columns, plus the optional
// prev_sold and prev_bought final totals of the previous month
func ParseObservations(records [][]string) ([]service.Observation, []string, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet is empty", ErrMalformedSheet)
	}
	sh := newSheet(records[0])
	idx, err := sh.require(codeColumns, variantColumns, soldColumns, boughtColumns)
	if err != nil {
		return nil, nil, err
	}
	prevSoldIdx, hasPrevSold := sh.index(prevSold)
	prevBoughtIdx, hasPrevBought := sh.index(prevBought)

	optional := func(record []string, i int, ok bool) (*int, error) {
		if !ok || cell(record, i) == "" {
			return nil, nil
		}
		v, err := parseInt(cell(record, i))
		if err != nil {
			return nil, err
		}
		return &v, nil
	}

	var (
		observations []service.Observation
		rowErrs      []string
	)
	for n, record := range records[1:] {
		if blank(record) {
			continue
		}
		line := n + 2
		key, err := parseKey(record, idx[0], idx[1])
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		sold, errSold := parseInt(cell(record, idx[2]))
		bought, errBought := parseInt(cell(record, idx[3]))
		if errSold != nil || errBought != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: sold and bought must be integers", line))
			continue
		}
		ps, errPS := optional(record, prevSoldIdx, hasPrevSold)
		pb, errPB := optional(record, prevBoughtIdx, hasPrevBought)
		if errPS != nil || errPB != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: previous month totals must be integers", line))
			continue
		}
		observations = append(observations, service.Observation{
			Key:        key,
			Sold:       sold,
			Bought:     bought,
			PrevSold:   ps,
			PrevBought: pb,
		})
	}
	return observations, rowErrs, nil
}
