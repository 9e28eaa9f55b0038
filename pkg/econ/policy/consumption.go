// Package policy holds the reference agent behaviors. Each collaborator
// drives its slice of the economy exclusively through the kernel verbs, so
// swapping one out cannot corrupt the ledger or the books.
package policy

import (
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Consumption places household buy orders each cycle: a fixed propensity of
// available cash, scaled by sentiment and the business-cycle phase, split
// across the goods basket by weight. Purchased goods from earlier cycles are
// eaten first so household inventories stay bounded.
type Consumption struct {
	// Propensity is the share of available cash spent per cycle.
	Propensity float64
	// BidMarkup is how far above the reference price bids are placed.
	BidMarkup float64
}

func NewConsumption() *Consumption {
	return &Consumption{Propensity: 0.25, BidMarkup: 0.02}
}

func (c *Consumption) Consume(api sim.API) {
	eps := api.Params().Numeric.QtyEpsilon
	factor := api.Phase().DemandFactor() * (0.5 + api.Sentiment())

	for _, h := range api.Households() {
		// Eat what arrived since the last cycle.
		for _, it := range api.Goods() {
			if held := h.Acct.AvailableQty(it.ID); held > eps {
				api.ConsumeGoods(h.Acct.ID, it.ID, held)
			}
		}

		budget := h.Acct.AvailableCash() * c.Propensity * factor
		if budget <= 0 {
			continue
		}
		for _, it := range api.Goods() {
			ref := api.LastPrice(it.ID)
			if ref <= 0 {
				continue
			}
			bid := ref * (1 + c.BidMarkup)
			qty := budget * it.BasketWeight / bid
			if qty <= eps {
				continue
			}
			api.SubmitOrder(h.Acct.ID, it.ID, book.Buy, book.Limit, bid, qty)
		}
	}
}
