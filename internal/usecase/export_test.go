package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"interaction-export/internal/domain"
)

// fakePages serves scripted pages, then surfaces err the way a failed
// mid-iteration query would.
type fakePages struct {
	pages [][]domain.Interaction
	err   error
	idx   int
	cur   []domain.Interaction
}

func (p *fakePages) Next(_ context.Context) bool {
	if p.idx >= len(p.pages) {
		return false
	}
	p.cur = p.pages[p.idx]
	p.idx++
	return true
}

func (p *fakePages) Records() []domain.Interaction { return p.cur }
func (p *fakePages) Err() error                    { return p.err }

type fakeRecords struct {
	byDate   map[string][]domain.Interaction
	pageErrs map[string]error
	queried  []string

	min      time.Time
	minFound bool
	minErr   error
	probed   bool
}

func (f *fakeRecords) QueryWindow(window domain.DayWindow) RecordPages {
	date := window.Date()
	f.queried = append(f.queried, date)
	return &fakePages{
		pages: [][]domain.Interaction{f.byDate[date]},
		err:   f.pageErrs[date],
	}
}

func (f *fakeRecords) MinCreatedAt(_ context.Context) (time.Time, bool, error) {
	f.probed = true
	return f.min, f.minFound, f.minErr
}

type fakeBlobs struct {
	objects map[string][]byte
	puts    []string
	deletes []string

	putErr    error
	delErr    error
	existsErr error
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = append([]byte(nil), data...)
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

type fakeMarks struct {
	day      time.Time
	ok       bool
	writeErr error
	writes   []string
}

func (f *fakeMarks) Read(_ context.Context) (time.Time, bool) {
	return f.day, f.ok
}

func (f *fakeMarks) Write(_ context.Context, day time.Time) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.day = day
	f.ok = true
	f.writes = append(f.writes, day.Format(domain.DateLayout))
	return nil
}

// oversizeErr mimics the transport error a too-large query response raises.
type oversizeErr struct{}

func (oversizeErr) Error() string       { return "response entity too large" }
func (oversizeErr) HTTPStatusCode() int { return http.StatusRequestEntityTooLarge }

// apiErr mimics a coded AWS service error.
type apiErr struct{ code string }

func (e apiErr) Error() string     { return e.code }
func (e apiErr) ErrorCode() string { return e.code }

func day(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, date)
	require.NoError(t, err)
	return d
}

func rec(t *testing.T, id, ts string) domain.Interaction {
	t.Helper()
	created, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	return domain.Interaction{
		ID:             id,
		ConversationID: "c-1",
		CreatedAt:      created,
		Sender:         "user@example.com",
		Status:         "2",
		Type:           domain.TypeInteraction,
	}
}

// newService wires a service with fakes and a frozen clock of
// 2024-03-10T15:00:00Z, so "today" is 2024-03-10 and history ends 03-09.
func newService(t *testing.T, records *fakeRecords, blobs *fakeBlobs, marks *fakeMarks) *ExportService {
	t.Helper()
	svc, err := NewExportService(records, blobs, marks, "reports", "interactions.csv")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }
	return svc
}

func TestNewExportService_Validates(t *testing.T) {
	records := &fakeRecords{}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{}

	_, err := NewExportService(nil, blobs, marks, "reports", "interactions.csv")
	require.Error(t, err)
	_, err = NewExportService(records, nil, marks, "reports", "interactions.csv")
	require.Error(t, err)
	_, err = NewExportService(records, blobs, nil, "reports", "interactions.csv")
	require.Error(t, err)
	_, err = NewExportService(records, blobs, marks, "  ", "interactions.csv")
	require.Error(t, err)
	_, err = NewExportService(records, blobs, marks, "reports", "")
	require.Error(t, err)
}

func TestRun_ResumesFromWatermark(t *testing.T) {
	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-08": {rec(t, "i-1", "2024-03-08T09:00:00Z")},
		"2024-03-09": {rec(t, "i-2", "2024-03-09T10:00:00Z")},
		"2024-03-10": {rec(t, "i-3", "2024-03-10T11:00:00Z")},
	}}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-07"), ok: true}

	summary, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"2024-03-08", "2024-03-09", "2024-03-10"}, records.queried)
	require.Equal(t, []string{
		"reports/2024-03-08-interactions.csv",
		"reports/2024-03-09-interactions.csv",
		"reports/2024-03-10-interactions.csv",
	}, blobs.puts)
	require.Equal(t, []string{"2024-03-08", "2024-03-09"}, marks.writes)
	require.Equal(t, 2, summary.DaysExported)
	require.Equal(t, "2024-03-09", summary.Watermark)
	require.Equal(t, 1, summary.TodayRecords)
	require.False(t, records.probed, "no probe needed when the watermark resolves")
}

func TestRun_CaughtUpStillRefreshesToday(t *testing.T) {
	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-10": {rec(t, "i-1", "2024-03-10T08:00:00Z")},
	}}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-09"), ok: true}

	svc := newService(t, records, blobs, marks)
	for i := 0; i < 2; i++ {
		summary, err := svc.Run(context.Background())
		require.NoError(t, err)
		require.Zero(t, summary.DaysExported)
		require.Equal(t, 1, summary.TodayRecords)
	}

	// Today's file was rebuilt on both runs; the watermark never moved.
	require.Equal(t, []string{
		"reports/2024-03-10-interactions.csv",
		"reports/2024-03-10-interactions.csv",
	}, blobs.puts)
	require.Empty(t, marks.writes)
	require.Equal(t, day(t, "2024-03-09"), marks.day)
}

func TestRun_FirstRunBootstrapsFromEarliestRecord(t *testing.T) {
	records := &fakeRecords{
		byDate: map[string][]domain.Interaction{
			"2024-03-08": {rec(t, "i-1", "2024-03-08T10:30:00Z")},
		},
		min:      time.Date(2024, 3, 8, 10, 30, 0, 0, time.UTC),
		minFound: true,
	}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)
	require.True(t, records.probed)
	// History starts exactly on the earliest record's date.
	require.Equal(t, "2024-03-08", records.queried[0])
}

func TestRun_ProbeFailureFallsBackToHorizon(t *testing.T) {
	records := &fakeRecords{minErr: errors.New("probe down")}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)
	// Two-year lookback from the frozen 2024-03-10 clock.
	require.Equal(t, "2022-03-10", records.queried[0])
	require.Equal(t, "2024-03-10", records.queried[len(records.queried)-1])
}

func TestRun_EmptyStoreFallsBackToHorizon(t *testing.T) {
	records := &fakeRecords{}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2022-03-10", records.queried[0])
}

func TestRun_DayFailureAbortsBeforeLaterDays(t *testing.T) {
	records := &fakeRecords{
		byDate: map[string][]domain.Interaction{
			"2024-03-08": {rec(t, "i-1", "2024-03-08T09:00:00Z")},
		},
		pageErrs: map[string]error{"2024-03-09": errors.New("query blew up")},
	}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-07"), ok: true}

	summary, err := newService(t, records, blobs, marks).Run(context.Background())
	require.Error(t, err)

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorDocumentStore, ucErr.Code)

	// The watermark holds at the last confirmed day and today was skipped.
	require.Equal(t, []string{"2024-03-08"}, marks.writes)
	require.NotContains(t, records.queried, "2024-03-10")
	require.Equal(t, 1, summary.DaysExported)
	require.Equal(t, "2024-03-08", summary.Watermark)
}

func TestRun_WatermarkWriteFailureIsFatal(t *testing.T) {
	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-08": {rec(t, "i-1", "2024-03-08T09:00:00Z")},
	}}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-07"), ok: true, writeErr: errors.New("put failed")}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.Error(t, err)

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorObjectStore, ucErr.Code)
	require.Equal(t, []string{"2024-03-08"}, records.queried, "no day after the failed commit is attempted")
}

func TestRun_OversizePageExportsPartialDay(t *testing.T) {
	records := &fakeRecords{
		byDate: map[string][]domain.Interaction{
			"2024-03-09": {rec(t, "i-1", "2024-03-09T09:00:00Z")},
		},
		pageErrs: map[string]error{"2024-03-09": oversizeErr{}},
	}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-08"), ok: true}

	summary, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err, "an oversize page degrades, it does not abort")
	require.Contains(t, blobs.puts, "reports/2024-03-09-interactions.csv")
	require.Equal(t, []string{"2024-03-09"}, marks.writes)
	require.Equal(t, 1, summary.DaysExported)
}

func TestRun_EmptyDayDeletesStaleFile(t *testing.T) {
	records := &fakeRecords{}
	blobs := &fakeBlobs{objects: map[string][]byte{
		"reports/2024-03-09-interactions.csv": []byte("old"),
	}}
	marks := &fakeMarks{day: day(t, "2024-03-08"), ok: true}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"reports/2024-03-09-interactions.csv"}, blobs.deletes)
	require.Empty(t, blobs.puts)
	// An empty day still counts as exported; the watermark advances past it.
	require.Equal(t, []string{"2024-03-09"}, marks.writes)
}

func TestRun_EmptyDayWithoutFileIsNoop(t *testing.T) {
	records := &fakeRecords{}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-08"), ok: true}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, blobs.deletes)
	require.Empty(t, blobs.puts)
	require.Equal(t, []string{"2024-03-09"}, marks.writes)
}

func TestRun_UploadFailureIsFatal(t *testing.T) {
	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-09": {rec(t, "i-1", "2024-03-09T09:00:00Z")},
	}}
	blobs := &fakeBlobs{putErr: errors.New("upload failed")}
	marks := &fakeMarks{day: day(t, "2024-03-08"), ok: true}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.Error(t, err)

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorObjectStore, ucErr.Code)
	require.Empty(t, marks.writes, "the watermark never passes an undurable day")
}

func TestRun_AccessDeniedGetsAuthorizationCode(t *testing.T) {
	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-09": {rec(t, "i-1", "2024-03-09T09:00:00Z")},
	}}
	blobs := &fakeBlobs{putErr: apiErr{code: "AccessDenied"}}
	marks := &fakeMarks{day: day(t, "2024-03-08"), ok: true}

	_, err := newService(t, records, blobs, marks).Run(context.Background())
	require.Error(t, err)

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorAuthorization, ucErr.Code)
	require.Equal(t, ExitAuthorization, ExitCode(err))
}

func TestRun_ReprocessingProducesIdenticalBytes(t *testing.T) {
	tokens := 137
	deleted := false
	full := rec(t, "i-1", "2024-03-10T09:00:00Z")
	full.SenderDisplayName = "A. User"
	full.PrincipalName = "a.user"
	full.Tokens = &tokens
	full.Deleted = &deleted

	records := &fakeRecords{byDate: map[string][]domain.Interaction{
		"2024-03-10": {full, rec(t, "i-2", "2024-03-10T10:00:00Z")},
	}}
	blobs := &fakeBlobs{}
	marks := &fakeMarks{day: day(t, "2024-03-09"), ok: true}

	svc := newService(t, records, blobs, marks)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	first := append([]byte(nil), blobs.objects["reports/2024-03-10-interactions.csv"]...)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, blobs.objects["reports/2024-03-10-interactions.csv"])
}
