package policy

import (
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Events is the reference exogenous-shock behavior, run at the top of every
// daily cycle. Shocks touch goods only, never cash, so conservation is
// unaffected: a windfall hands one farmer a bonus harvest, a spoilage event
// destroys part of one firm's unsold stock. Both draw from the world's seeded
// RNG, so runs stay replayable.
type Events struct {
	WindfallProb  float64
	WindfallYield float64
	SpoilageProb  float64
	SpoilageFrac  float64
}

func NewEvents() *Events {
	return &Events{
		WindfallProb:  0.05,
		WindfallYield: 6,
		SpoilageProb:  0.03,
		SpoilageFrac:  0.25,
	}
}

func (e Events) RunEvents(api sim.API) {
	goods := api.Goods()
	if len(goods) == 0 {
		return
	}
	rng := api.Rand()

	if rng.Float64() < e.WindfallProb {
		farmers := make([]*sim.Household, 0)
		for _, h := range api.Households() {
			if h.IsFarmer {
				farmers = append(farmers, h)
			}
		}
		if len(farmers) > 0 {
			lucky := farmers[rng.Intn(len(farmers))]
			api.ProduceGoods(lucky.Acct.ID, goods[0].ID, e.WindfallYield)
		}
	}

	if rng.Float64() < e.SpoilageProb {
		firms := api.Firms()
		f := firms[rng.Intn(len(firms))]
		if f.Bankrupt {
			return
		}
		if held := f.Acct.AvailableQty(f.Produces); held > 0 {
			api.ConsumeGoods(f.Acct.ID, f.Produces, held*e.SpoilageFrac)
		}
	}
}
