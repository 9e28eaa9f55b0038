package bank

// Policy is one of the two interchangeable monetary regimes. SetRates adjusts
// the bank's loan rate and yield curve from realized aggregates; CanLend
// gates each individual origination.
type Policy interface {
	Name() string
	SetRates(b *Bank, m Macro)
	CanLend(b *Bank, amount float64) bool
}

// ReserveRatioRegime drives the reserve/deposit ratio toward a fixed target
// with proportional control: reserves short of target raise the loan rate,
// excess reserves lower it. The yield curve stays flat (no term premium) and
// lending is gated by a hard coverage rule.
type ReserveRatioRegime struct{}

func (ReserveRatioRegime) Name() string { return "reserve_ratio" }

func (ReserveRatioRegime) SetRates(b *Bank, _ Macro) {
	err := b.cfg.ReserveTarget - b.ReserveRatio()
	b.loanRate = clampRate(b.loanRate+err*b.cfg.ReserveGain, b.cfg.MinRate, b.cfg.MaxRate)
	b.yield = [3]float64{b.loanRate, b.loanRate, b.loanRate}
	b.lendingSuspended = false
}

// CanLend requires reserves to still cover the target ratio after the loan
// leaves them.
func (ReserveRatioRegime) CanLend(b *Bank, amount float64) bool {
	return b.reserves.Cash-amount >= b.cfg.ReserveTarget*b.TotalDeposits()
}

// PolicyRateRegime sets the rate from a Taylor rule (neutral real rate plus
// realized inflation, an inflation-gap term, and an output gap proxied from
// unemployment via an Okun's-law linear map), then smooths the actual rate
// toward that target instead of jumping. The curve gains a term slope
// modulated by consumer sentiment: low sentiment flattens or inverts it.
// Lending is gated by fractional-reserve capacity and capital adequacy; a
// CAR breach suspends new lending without unwinding existing loans.
type PolicyRateRegime struct{}

func (PolicyRateRegime) Name() string { return "policy_rate" }

func (PolicyRateRegime) SetRates(b *Bank, m Macro) {
	cfg := b.cfg
	outputGap := -cfg.OkunCoefficient * (m.Unemployment - cfg.NaturalUnemp)
	target := cfg.NeutralRealRate + m.Inflation +
		cfg.InflationGain*(m.Inflation-cfg.TargetInflation) +
		cfg.OutputGapGain*outputGap

	b.loanRate = clampRate(b.loanRate+cfg.RateSmoothing*(target-b.loanRate), cfg.MinRate, cfg.MaxRate)

	// Sentiment in [0,1]: 0.5 is neutral, below it the curve inverts.
	slope := cfg.TermSlope * (2*m.Sentiment - 1)
	b.yield = [3]float64{b.loanRate, b.loanRate + slope/2, b.loanRate + slope}

	if b.CapitalAdequacy() < cfg.CARTrigger {
		if !b.lendingSuspended {
			b.log.Warn("capital adequacy breach, suspending new lending")
		}
		b.lendingSuspended = true
	} else {
		b.lendingSuspended = false
	}
}

// CanLend enforces fractional-reserve capacity: the loan book after this
// origination must stay within reserves divided by the required ratio.
func (PolicyRateRegime) CanLend(b *Bank, amount float64) bool {
	if b.cfg.ReserveRequired <= 0 {
		return true
	}
	capacity := b.reserves.Cash / b.cfg.ReserveRequired
	return b.TotalLoans()+amount <= capacity
}
