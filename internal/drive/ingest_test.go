package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/repository/memory"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/gorilla/mux"
	"github.com/xuri/excelize/v2"
)

type fakeFile struct {
	file    File
	content []byte
}

type fakeFiles struct {
	folders map[string]string // path -> folder id
	files   map[string][]fakeFile
}

func (f *fakeFiles) find(fileID string) (*fakeFile, bool) {
	for _, files := range f.files {
		for i := range files {
			if files[i].file.ID == fileID {
				return &files[i], true
			}
		}
	}
	return nil, false
}

func (f *fakeFiles) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	var out []*File
	for _, ff := range f.files[folderID] {
		file := ff.file
		out = append(out, &file)
	}
	return out, nil
}

func (f *fakeFiles) GetFile(ctx context.Context, fileID string) (*File, error) {
	ff, ok := f.find(fileID)
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	file := ff.file
	return &file, nil
}

func (f *fakeFiles) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	ff, ok := f.find(fileID)
	if !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	_, err := w.Write(ff.content)
	return err
}

func (f *fakeFiles) FindFolderByPath(ctx context.Context, path string) (string, error) {
	if id, ok := f.folders[path]; ok {
		return id, nil
	}
	return "", fmt.Errorf("folder %s: %w", path, ErrFolderNotFound)
}

var ingestDay = time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParseVerification(t *testing.T) {
	records := [][]string{
		{"\ufeffCOD", "Var", "Stock"},
		{"10", "1", "24"},
		{"11", "2", "12.0"},
		{"", "", ""},
		{"x", "1", "3"},
		{"12", "1", "1.5"},
	}

	counts, rowErrs, err := ParseVerification(records)
	if err != nil {
		t.Fatalf("ParseVerification: %v", err)
	}
	want := []service.StockCount{
		{Key: domain.ProductKey{Code: 10, Variant: 1}, Stock: 24},
		{Key: domain.ProductKey{Code: 11, Variant: 2}, Stock: 12},
	}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
	if len(rowErrs) != 2 {
		t.Errorf("row errors = %v, want 2", rowErrs)
	}
}

func TestParseLosses(t *testing.T) {
	records := [][]string{
		{"cod", "v", "type", "qty"},
		{"10", "1", "Broken", "2"},
		{"10", "1", "stolen", "1"},
		{"11", "1", "internal", "0"},
		{"11", "1", "expired", "3"},
	}

	entries, rowErrs, err := ParseLosses(records)
	if err != nil {
		t.Fatalf("ParseLosses: %v", err)
	}
	want := []service.LossEntry{
		{Key: domain.ProductKey{Code: 10, Variant: 1}, Type: domain.LossBroken, Qty: 2},
		{Key: domain.ProductKey{Code: 11, Variant: 1}, Type: domain.LossExpired, Qty: 3},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %+v, want %+v", entries, want)
	}
	if len(rowErrs) != 2 {
		t.Errorf("row errors = %v, want 2", rowErrs)
	}
}

func TestParseMissingColumn(t *testing.T) {
	if _, _, err := ParseVerification([][]string{{"cod", "stock"}}); err == nil {
		t.Error("expected an error for a missing variant column")
	}
	if _, _, err := ParseLosses(nil); err == nil {
		t.Error("expected an error for an empty sheet")
	}
}

func TestReadSheet(t *testing.T) {
	xlsx := workbook(t, []interface{}{"cod", "v", "stock"}, []interface{}{10, 1, 7})

	tests := []struct {
		name    string
		content []byte
		want    [][]string
		wantErr bool
	}{
		{name: "counts.csv", content: []byte("cod,v,stock\n10,1,7\n"), want: [][]string{{"cod", "v", "stock"}, {"10", "1", "7"}}},
		{name: "counts.xlsx", content: xlsx, want: [][]string{{"cod", "v", "stock"}, {"10", "1", "7"}}},
		{name: "counts.pdf", content: []byte("%PDF"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSheet(tt.name, bytes.NewReader(tt.content))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadSheet: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("records = %v, want %v", got, tt.want)
			}
		})
	}
}

func newIngestFixture(t *testing.T) (*fakeFiles, *memory.Store, *mux.Router) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	for _, code := range []int{10, 11} {
		if err := store.UpsertProduct(ctx, domain.ProductVariant{Key: domain.ProductKey{Code: code, Variant: 1}, PackageSize: 6}); err != nil {
			t.Fatalf("UpsertProduct: %v", err)
		}
	}

	files := &fakeFiles{
		folders: map[string]string{"inventory/inbox": "inbox"},
		files: map[string][]fakeFile{
			"inbox": {
				{file: File{ID: "f1", Name: "verification-0411.xlsx"}, content: workbook(t,
					[]interface{}{"cod", "v", "stock"},
					[]interface{}{10, 1, 30},
					[]interface{}{11, 1, 8},
				)},
				{file: File{ID: "f2", Name: "losses-0411.csv"}, content: []byte("cod,v,type,qty\n10,1,broken,4\n")},
				{file: File{ID: "f3", Name: "notes.txt"}, content: []byte("ignored")},
			},
		},
	}

	svc := NewIngestService(files, service.NewInventoryService(store))
	router := mux.NewRouter()
	NewHandler(files, svc).RegisterRoutes(router)
	return files, store, router
}

func stockOf(t *testing.T, store *memory.Store, code int) int {
	t.Helper()
	stats, err := store.GetStats(context.Background(), domain.ProductKey{Code: code, Variant: 1})
	if err != nil || stats == nil || stats.Stock == nil {
		t.Fatalf("GetStats(%d) = %+v, %v", code, stats, err)
	}
	return *stats.Stock
}

func TestIngestEndpoints(t *testing.T) {
	_, store, router := newIngestFixture(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drive/ingest/verification?fileId=f1&date=2025-04-11", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("verification status = %d body %s", w.Code, w.Body.String())
	}
	var report service.IngestReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Applied != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drive/ingest/losses?fileId=f2&date=2025-04-11", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("losses status = %d body %s", w.Code, w.Body.String())
	}
	if got := stockOf(t, store, 10); got != 26 {
		t.Errorf("stock of 10 = %d, want 26", got)
	}

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"missing file id", http.MethodPost, "/api/drive/ingest/losses", http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/drive/ingest/losses?fileId=f2&date=yesterday", http.StatusBadRequest},
		{"unsupported format", http.MethodPost, "/api/drive/ingest/verification?fileId=f3", http.StatusUnprocessableEntity},
		{"wrong columns", http.MethodPost, "/api/drive/ingest/verification?fileId=f2", http.StatusUnprocessableEntity},
		{"unknown folder", http.MethodGet, "/api/drive/files?path=missing", http.StatusNotFound},
		{"list folder", http.MethodGet, "/api/drive/files?path=inventory/inbox", http.StatusOK},
		{"health", http.MethodGet, "/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestIngestFolder(t *testing.T) {
	files, store, _ := newIngestFixture(t)
	svc := NewIngestService(files, service.NewInventoryService(store))

	reports, err := svc.IngestFolder(context.Background(), "inventory/inbox", ingestDay)
	if err != nil {
		t.Fatalf("IngestFolder: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %v, want verification and losses", reports)
	}
	if got := stockOf(t, store, 10); got != 26 {
		t.Errorf("stock of 10 = %d, want 26", got)
	}
	if got := stockOf(t, store, 11); got != 8 {
		t.Errorf("stock of 11 = %d, want 8", got)
	}
}

func TestParseObservations(t *testing.T) {
	records := [][]string{
		{"cod", "v", "sold", "bought", "prev_sold", "prev_bought"},
		{"10", "1", "4", "12", "", ""},
		{"11", "1", "2", "0", "30", "24"},
		{"12", "1", "x", "0", "", ""},
	}

	observations, rowErrs, err := ParseObservations(records)
	if err != nil {
		t.Fatalf("ParseObservations: %v", err)
	}
	if len(observations) != 2 || len(rowErrs) != 1 {
		t.Fatalf("observations = %+v, errors = %v", observations, rowErrs)
	}
	if observations[0].PrevSold != nil || observations[0].Bought != 12 {
		t.Errorf("first observation = %+v", observations[0])
	}
	if observations[1].PrevSold == nil || *observations[1].PrevSold != 30 || *observations[1].PrevBought != 24 {
		t.Errorf("second observation = %+v", observations[1])
	}
}

func TestApplyObservationSheet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewIngestService(nil, service.NewInventoryService(store))

	report, err := svc.ApplySheet(ctx, [][]string{
		{"cod", "v", "sold", "bought"},
		{"10", "1", "4", "12"},
	}, SheetObservations, ingestDay)
	if err != nil {
		t.Fatalf("ApplySheet: %v", err)
	}
	if report.Applied != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := stockOf(t, store, 10); got != 8 {
		t.Errorf("stock = %d, want 8", got)
	}
}
