package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"interaction-export/internal/domain"
)

// Blob is the narrow object-store surface the watermark needs.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// state is the persisted watermark payload.
type state struct {
	LastExportDateUtc string `json:"lastExportDateUtc"`
}

// floorDate guards against degenerate persisted values: anything before it
// reads as no watermark at all.
var floorDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Store persists the last fully exported day as a small JSON blob.
type Store struct {
	blob Blob
	key  string
}

// New creates a Store reading and writing the blob at key.
func New(blob Blob, key string) (*Store, error) {
	if blob == nil {
		return nil, errors.New("watermark: blob store must not be nil")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("watermark: state key must not be empty")
	}
	return &Store{blob: blob, key: key}, nil
}

// Read returns the last fully exported day. Any read or decode failure is
// reported as not-found so the caller falls back to resolving the start
// date from the document store instead.
func (s *Store) Read(ctx context.Context) (time.Time, bool) {
	data, err := s.blob.Get(ctx, s.key)
	if err != nil {
		slog.Warn("watermark unreadable, treating as absent", "key", s.key, "err", err)
		return time.Time{}, false
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("watermark blob malformed, treating as absent", "key", s.key, "err", err)
		return time.Time{}, false
	}
	day, err := time.Parse(domain.DateLayout, st.LastExportDateUtc)
	if err != nil {
		slog.Warn("watermark date malformed, treating as absent", "key", s.key, "value", st.LastExportDateUtc)
		return time.Time{}, false
	}
	if day.Before(floorDate) {
		slog.Warn("watermark date below epoch floor, treating as absent", "key", s.key, "value", st.LastExportDateUtc)
		return time.Time{}, false
	}
	return day, true
}

// Write persists day as the new watermark. Unlike Read, failures here are
// returned: continuing past a lost watermark write would let in-memory
// progress drift ahead of durable state.
func (s *Store) Write(ctx context.Context, day time.Time) error {
	payload, err := json.Marshal(state{LastExportDateUtc: day.UTC().Format(domain.DateLayout)})
	if err != nil {
		return fmt.Errorf("watermark: marshal: %w", err)
	}
	if err := s.blob.Put(ctx, s.key, payload, "application/json"); err != nil {
		return fmt.Errorf("watermark: write %q: %w", s.key, err)
	}
	return nil
}
