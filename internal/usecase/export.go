package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"interaction-export/internal/domain"
)

const (
	lookbackYears  = 2
	contentTypeCSV = "text/csv"
)

// RecordPages is one day-window query consumed page by page, in order.
type RecordPages interface {
	Next(ctx context.Context) bool
	Records() []domain.Interaction
	Err() error
}

// RecordStore is the document-store surface the exporter needs.
type RecordStore interface {
	QueryWindow(window domain.DayWindow) RecordPages
	MinCreatedAt(ctx context.Context) (time.Time, bool, error)
}

// BlobStore is the object-store surface for day files.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// WatermarkStore tracks the last fully exported day.
type WatermarkStore interface {
	Read(ctx context.Context) (time.Time, bool)
	Write(ctx context.Context, day time.Time) error
}

// ExportService drives one incremental export run end to end.
type ExportService struct {
	records    RecordStore
	blobs      BlobStore
	watermarks WatermarkStore

	outputPrefix string
	outputSuffix string

	now func() time.Time
}

// RunSummary describes one completed export run.
type RunSummary struct {
	RunID        string
	DaysExported int
	Watermark    string
	TodayRecords int
}

// NewExportService creates the export controller.
func NewExportService(records RecordStore, blobs BlobStore, watermarks WatermarkStore, outputPrefix, outputSuffix string) (*ExportService, error) {
	if records == nil {
		return nil, newError(ErrorConfig, "record_store_nil", nil)
	}
	if blobs == nil {
		return nil, newError(ErrorConfig, "blob_store_nil", nil)
	}
	if watermarks == nil {
		return nil, newError(ErrorConfig, "watermark_store_nil", nil)
	}
	outputPrefix = strings.Trim(strings.TrimSpace(outputPrefix), "/")
	if outputPrefix == "" {
		return nil, newError(ErrorConfig, "output_prefix_empty", nil)
	}
	outputSuffix = strings.TrimSpace(outputSuffix)
	if outputSuffix == "" {
		return nil, newError(ErrorConfig, "output_suffix_empty", nil)
	}
	return &ExportService{
		records:      records,
		blobs:        blobs,
		watermarks:   watermarks,
		outputPrefix: outputPrefix,
		outputSuffix: outputSuffix,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run performs one full export pass: historical days in ascending order,
// each committed to the watermark only after its file is durable, then a
// refresh of the current day that leaves the watermark untouched.
func (s *ExportService) Run(ctx context.Context) (RunSummary, error) {
	runID := newRunID()
	log := slog.With("runId", runID)
	summary := RunSummary{RunID: runID}

	today := domain.StartOfDayUTC(s.now())
	lastExported := s.resolveLastExported(ctx, log, today)
	end := today.AddDate(0, 0, -1)

	first := lastExported.AddDate(0, 0, 1)
	if first.After(end) {
		log.Info("no historical days to export", "lastExported", lastExported.Format(domain.DateLayout))
	} else {
		log.Info("exporting historical days", "from", first.Format(domain.DateLayout), "to", end.Format(domain.DateLayout))
	}

	for day := first; !day.After(end); day = day.AddDate(0, 0, 1) {
		if _, err := s.exportDay(ctx, log, day); err != nil {
			return summary, err
		}
		if err := s.watermarks.Write(ctx, day); err != nil {
			return summary, Classify(ErrorObjectStore, "watermark_write_error", err)
		}
		summary.DaysExported++
		summary.Watermark = day.Format(domain.DateLayout)
	}

	// Today is rebuilt from scratch on every run: the day is still filling,
	// so its file reflects the latest state and never moves the watermark.
	count, err := s.exportDay(ctx, log, today)
	if err != nil {
		return summary, err
	}
	summary.TodayRecords = count

	log.Info("export run complete",
		"daysExported", summary.DaysExported,
		"watermark", summary.Watermark,
		"todayRecords", summary.TodayRecords)
	return summary, nil
}

// startStrategy yields the effective last-exported day; ok=false falls
// through to the next strategy in order.
type startStrategy func(ctx context.Context, log *slog.Logger) (time.Time, bool)

// resolveLastExported picks the day historical processing treats as already
// done: the watermark if valid, else the day before the earliest record in
// the store, else the fixed lookback horizon.
func (s *ExportService) resolveLastExported(ctx context.Context, log *slog.Logger, today time.Time) time.Time {
	strategies := []startStrategy{
		s.fromWatermark,
		s.fromEarliestRecord,
		func(_ context.Context, log *slog.Logger) (time.Time, bool) {
			horizon := today.AddDate(-lookbackYears, 0, 0)
			log.Info("no watermark or probe result, using lookback horizon", "startDate", horizon.Format(domain.DateLayout))
			return horizon.AddDate(0, 0, -1), true
		},
	}
	for _, resolve := range strategies {
		if day, ok := resolve(ctx, log); ok {
			return day
		}
	}
	// The horizon strategy always resolves.
	return today.AddDate(-lookbackYears, 0, -1)
}

func (s *ExportService) fromWatermark(ctx context.Context, log *slog.Logger) (time.Time, bool) {
	day, ok := s.watermarks.Read(ctx)
	if !ok {
		return time.Time{}, false
	}
	log.Info("resuming from watermark", "lastExported", day.Format(domain.DateLayout))
	return day, true
}

func (s *ExportService) fromEarliestRecord(ctx context.Context, log *slog.Logger) (time.Time, bool) {
	minCreated, found, err := s.records.MinCreatedAt(ctx)
	if err != nil {
		log.Warn("earliest-record probe failed, falling back", "err", err)
		return time.Time{}, false
	}
	if !found {
		log.Info("store has no records, falling back")
		return time.Time{}, false
	}
	// Day before the earliest record, so the range planner starts exactly
	// on the earliest record's date.
	day := domain.StartOfDayUTC(minCreated).AddDate(0, 0, -1)
	log.Info("starting from earliest record", "earliest", minCreated.Format(time.RFC3339))
	return day, true
}

// exportDay materializes one calendar day: query the window, transform,
// upload the CSV, or delete a stale file when the day has no records.
// Returns the number of records written.
func (s *ExportService) exportDay(ctx context.Context, log *slog.Logger, day time.Time) (int, error) {
	window := domain.WindowForDay(day)

	pages := s.records.QueryWindow(window)
	var recs []domain.Interaction
	for pages.Next(ctx) {
		recs = append(recs, pages.Records()...)
	}
	if err := pages.Err(); err != nil {
		status, ok := upstreamStatusCode(err)
		if !ok || status != http.StatusRequestEntityTooLarge {
			return 0, Classify(ErrorDocumentStore, "window_query_error", err)
		}
		// Oversize page: keep what was accumulated and export the day
		// partially rather than failing the whole run.
		log.Warn("query response exceeded size limit, exporting partial day",
			"date", window.Date(), "recordsKept", len(recs), "err", err)
	}

	key := s.dayKey(day)
	if len(recs) == 0 {
		exists, err := s.blobs.Exists(ctx, key)
		if err != nil {
			return 0, Classify(ErrorObjectStore, "day_file_head_error", err)
		}
		if !exists {
			return 0, nil
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			return 0, Classify(ErrorObjectStore, "stale_file_delete_error", err)
		}
		log.Info("deleted stale day file", "date", window.Date(), "key", key)
		return 0, nil
	}

	data, err := encodeDayCSV(recs)
	if err != nil {
		return 0, newError(ErrorInternal, "csv_encode_error", err)
	}
	if err := s.blobs.Put(ctx, key, data, contentTypeCSV); err != nil {
		return 0, Classify(ErrorObjectStore, "day_file_upload_error", err)
	}
	log.Info("exported day file", "date", window.Date(), "key", key, "records", len(recs))
	return len(recs), nil
}

func (s *ExportService) dayKey(day time.Time) string {
	return s.outputPrefix + "/" + day.Format(domain.DateLayout) + "-" + s.outputSuffix
}

var newRunID = func() string {
	return uuid.NewString()
}
