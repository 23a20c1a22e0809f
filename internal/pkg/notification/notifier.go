package notification

import (
	"fmt"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/PricePilot/PricePilot/app/models"
	"github.com/PricePilot/PricePilot/internal/pkg/env"
)

// PriceChangeNotifier mails an alert when an automated price change exceeds
// the configured threshold. Sending is fire-and-forget so a slow or broken
// SMTP server never delays an evaluation batch.
type PriceChangeNotifier struct {
	recipients []string
}

func NewPriceChangeNotifier() *PriceChangeNotifier {
	var recipients []string
	for _, addr := range strings.Split(env.GetEnv("PRICE_ALERT_RECIPIENTS", ""), ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &PriceChangeNotifier{recipients: recipients}
}

// NotifyPriceChange sends an alert email if the change crosses the
// threshold from settings. Errors are logged, never propagated.
func (n *PriceChangeNotifier) NotifyPriceChange(plan *models.Plan, oldPrice, newPrice, changePercent float64) {
	if len(n.recipients) == 0 {
		return
	}

	threshold := models.GetAppSettings().GetNotifyChangePercent()
	if threshold <= 0 || math.Abs(changePercent) < threshold {
		return
	}

	subject := fmt.Sprintf("Price change: %s (%+.2f%%)", plan.Name, changePercent)
	body := fmt.Sprintf(
		"<p>The price of plan <strong>%s</strong> changed from %.2f to %.2f %s (%+.2f%%).</p>",
		plan.Name, oldPrice, newPrice, plan.Currency, changePercent,
	)

	go func() {
		for _, to := range n.recipients {
			if err := SendMail(to, subject, body); err != nil {
				log.Errorf("[Notification] Failed to send price alert to %s: %v", to, err)
			}
		}
	}()
}
