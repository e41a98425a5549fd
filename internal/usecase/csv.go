package usecase

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"interaction-export/internal/domain"
)

// exportColumns is the stable output header. The record's CreatedAt field
// surfaces under the presentation label Date.
var exportColumns = []string{
	"Id",
	"ConversationId",
	"Date",
	"Sender",
	"SenderDisplayName",
	"Tokens",
	"PrincipalName",
	"Deleted",
	"Status",
	"Type",
}

// encodeDayCSV serializes one day's records as a UTF-8 CSV file, header
// row first, without a byte-order mark. Output is deterministic for a
// given record sequence.
func encodeDayCSV(recs []domain.Interaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportColumns); err != nil {
		return nil, fmt.Errorf("usecase: write csv header: %w", err)
	}
	for _, rec := range recs {
		if err := w.Write(recordRow(rec)); err != nil {
			return nil, fmt.Errorf("usecase: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("usecase: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// recordRow applies the status transform and renders optional fields as
// empty cells.
func recordRow(rec domain.Interaction) []string {
	tokens := ""
	if rec.Tokens != nil {
		tokens = strconv.Itoa(*rec.Tokens)
	}
	deleted := ""
	if rec.Deleted != nil {
		deleted = strconv.FormatBool(*rec.Deleted)
	}
	return []string{
		rec.ID,
		rec.ConversationID,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.Sender,
		rec.SenderDisplayName,
		tokens,
		rec.PrincipalName,
		deleted,
		domain.DisplayStatus(rec.Status),
		rec.Type,
	}
}
