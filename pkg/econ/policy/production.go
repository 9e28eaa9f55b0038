package policy

import (
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Production turns labor into goods and lists the output for sale. Each firm
// produces its good in proportion to workforce skill; farmer households grow
// the staple on their own account. Ask prices walk toward clearing: a firm
// sitting on unsold stock undercuts, a profitable one asks more.
type Production struct {
	// UnitsPerWorker is base daily output per unit of skill.
	UnitsPerWorker float64
	// FarmYield is a farmer household's own staple output per cycle.
	FarmYield float64
	// PriceStep is the relative ask adjustment per cycle.
	PriceStep float64
}

func NewProduction() *Production {
	return &Production{UnitsPerWorker: 4, FarmYield: 6, PriceStep: 0.03}
}

func (p *Production) Produce(api sim.API) {
	staple := api.Goods()[0].ID
	for _, h := range api.Households() {
		if !h.IsFarmer {
			continue
		}
		api.ProduceGoods(h.Acct.ID, staple, p.FarmYield*h.Skill)
		p.sell(api, h.Acct, staple, 0)
	}

	for _, f := range api.Firms() {
		if f.Bankrupt {
			continue
		}
		output := 0.0
		for _, worker := range f.Employees {
			if h := api.HouseholdOf(worker); h != nil {
				output += p.UnitsPerWorker * h.Skill
			}
		}
		if output > 0 {
			api.ProduceGoods(f.Acct.ID, f.Produces, output)
		}
		p.sell(api, f.Acct, f.Produces, f.Profitability)
	}
}

// sell replaces the seller's resting asks with one fresh quote for the whole
// available stock. The ask drifts down by default so unsold stock finds a
// clearing price, and up while the seller is profitable.
func (p *Production) sell(api sim.API, acct *ledger.Account, item ledger.ItemID, profitability float64) {
	api.CancelAllOrders(acct.ID, item)

	qty := acct.AvailableQty(item)
	if qty <= api.Params().Numeric.QtyEpsilon {
		return
	}
	ref := api.LastPrice(item)
	if ref <= 0 {
		return
	}
	step := -p.PriceStep
	if profitability > 0 {
		step = p.PriceStep
	}
	ask := ref * (1 + step)
	if floor := api.Params().Numeric.PriceFloor; ask < floor {
		ask = floor
	}
	api.SubmitOrder(acct.ID, item, book.Sell, book.Limit, ask, qty)
}
