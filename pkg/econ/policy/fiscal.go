package policy

import (
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
)

// Fiscal is the reference treasury behavior, run at the macro rate: a flat
// benefit to every unemployed household and a pooled subsidy to the farmers.
// Both are plain treasury outlays; the verbs fail closed when the treasury
// cannot cover them, so the treasury never goes negative.
type Fiscal struct{}

func NewFiscal() *Fiscal { return &Fiscal{} }

func (Fiscal) RunFiscal(api sim.API) {
	cfg := api.Params().Fiscal
	treasury := api.TreasuryID()

	if cfg.UnemploymentBenefit > 0 {
		for _, h := range api.Households() {
			if h.Employed() {
				continue
			}
			api.Transfer(treasury, h.Acct.ID, cfg.UnemploymentBenefit)
		}
	}

	// Farm support moves through the pool sink, so it is taxed and split the
	// same way as any other pooled income.
	farmers := 0
	for _, h := range api.Households() {
		if h.IsFarmer {
			farmers++
		}
	}
	if farmers > 0 && cfg.UnemploymentBenefit > 0 {
		api.PayFarmerPool(treasury, cfg.UnemploymentBenefit*float64(farmers))
	}
}

// Defaults wires the full reference behavior set.
func Defaults() (*Events, *Consumption, *Labor, *Production, *Fiscal) {
	return NewEvents(), NewConsumption(), NewLabor(), NewProduction(), NewFiscal()
}
