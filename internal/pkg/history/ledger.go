package history

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/app/repository"
)

// PagedHistory is one page of the ledger plus window aggregates.
type PagedHistory struct {
	Entries  []models.PriceHistory         `json:"entries"`
	Total    int64                         `json:"total"`
	Page     int                           `json:"page"`
	PageSize int                           `json:"page_size"`
	Stats    *repository.PriceHistoryStats `json:"stats,omitempty"`
}

// Ledger is the read side of the append-only price history. Writes go
// through the calculator; the ledger exposes range queries, aggregates and
// the CSV snapshot used by the archive exporter. It is reporting only and
// never feeds back into price control flow.
type Ledger struct {
	history repository.PriceHistoryRepository
}

// NewLedger creates a price history ledger.
func NewLedger(history repository.PriceHistoryRepository) *Ledger {
	return &Ledger{history: history}
}

// GetHistory returns one page of history rows with aggregate statistics
// for the same filter window.
func (l *Ledger) GetHistory(q repository.PriceHistoryQuery) (*PagedHistory, error) {
	entries, total, err := l.history.Query(q)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}

	stats, err := l.history.Stats(q)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	return &PagedHistory{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Stats:    stats,
	}, nil
}

// RenderDayCSV renders all history rows of one calendar day as CSV for the
// archive exporter.
func (l *Ledger) RenderDayCSV(day time.Time) ([]byte, int, error) {
	entries, err := l.history.GetForDay(day)
	if err != nil {
		return nil, 0, fmt.Errorf("load history for %s: %w", day.Format("2006-01-02"), err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "plan_id", "old_price", "new_price", "change_percent", "currency", "change_type", "actor_type", "batch_id", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, 0, err
	}

	for _, e := range entries {
		record := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			strconv.FormatUint(uint64(e.PlanID), 10),
			strconv.FormatFloat(e.OldPrice, 'f', 2, 64),
			strconv.FormatFloat(e.NewPrice, 'f', 2, 64),
			strconv.FormatFloat(e.ChangePercent, 'f', 4, 64),
			e.Currency,
			e.ChangeType,
			e.ActorType,
			e.BatchID,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}

	return buf.Bytes(), len(entries), nil
}
