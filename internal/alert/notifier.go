package alert

import (
	"context"
	"fmt"

	"arb_monitor/internal/core"

	"github.com/shopspring/decimal"
)

// severeSpread is the top-spread level escalated to a warning.
var severeSpread = decimal.NewFromInt(5)

// Notifier turns a ticker's opportunity notifications into alerts. It is
// meant to be registered as a price store subscriber; the store's change
// suppression already rate-limits what reaches it.
type Notifier struct {
	manager *Manager
	ticker  string
}

// NewNotifier creates a notifier for one ticker.
func NewNotifier(manager *Manager, ticker string) *Notifier {
	return &Notifier{manager: manager, ticker: core.CanonicalTicker(ticker)}
}

// Notify formats the current opportunity set and broadcasts it. An empty set
// announces that the spread closed.
func (n *Notifier) Notify(opportunities []core.ArbitrageOpportunity) {
	if len(opportunities) == 0 {
		n.manager.Alert(context.Background(),
			fmt.Sprintf("%s: spread closed", n.ticker),
			"No arbitrage opportunities above threshold remain.",
			Info, nil)
		return
	}

	top := opportunities[0]
	title := fmt.Sprintf("%s: %s spread %s -> %s",
		n.ticker, top.SpreadPercent.String()+"%", top.Buy.Venue, top.Sell.Venue)
	message := fmt.Sprintf("Buy %s at %s, sell %s at %s. %d opportunities above threshold.",
		top.Buy.Venue, top.Buy.Price.String(),
		top.Sell.Venue, top.Sell.Price.String(),
		len(opportunities))

	level := Info
	if top.SpreadPercent.GreaterThanOrEqual(severeSpread) {
		level = Warning
	}

	n.manager.Alert(context.Background(), title, message, level, map[string]string{
		"ticker": n.ticker,
		"spread": top.SpreadPercent.String() + "%",
		"buy":    fmt.Sprintf("%s @ %s", top.Buy.Venue, top.Buy.Price.String()),
		"sell":   fmt.Sprintf("%s @ %s", top.Sell.Venue, top.Sell.Price.String()),
		"total":  fmt.Sprintf("%d", len(opportunities)),
	})
}
