package archive

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/internal/pkg/history"
)

// Exporter uploads daily price history exports to S3. Days with no history
// rows are skipped, already-archived days are not re-uploaded.
type Exporter struct {
	client *Client
	ledger *history.Ledger
}

func NewExporter(client *Client, ledger *history.Ledger) *Exporter {
	return &Exporter{client: client, ledger: ledger}
}

// ExportDay renders one day of price history as CSV and uploads it.
// Returns the number of exported rows.
func (e *Exporter) ExportDay(day time.Time) (int, error) {
	objectKey := e.client.config.GetObjectKey(day)

	exists, err := e.client.ObjectExists(objectKey)
	if err != nil {
		return 0, err
	}
	if exists {
		log.Debugf("[Archive] %s already archived, skipping", objectKey)
		return 0, nil
	}

	payload, rows, err := e.ledger.RenderDayCSV(day)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		log.Debugf("[Archive] No price history for %s, skipping export", day.Format("2006-01-02"))
		return 0, nil
	}

	if _, err := e.client.UploadBytes(objectKey, payload, "text/csv"); err != nil {
		return 0, err
	}

	log.Infof("[Archive] Exported %d price history rows for %s", rows, day.Format("2006-01-02"))
	return rows, nil
}

// ExportYesterday exports the previous day, the scheduler's daily target.
func (e *Exporter) ExportYesterday() (int, error) {
	return e.ExportDay(time.Now().AddDate(0, 0, -1))
}
