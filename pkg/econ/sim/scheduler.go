package sim

import (
	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/pkg/econ/audit"
	"github.com/minsu-cho/agorasim/pkg/econ/bank"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
)

// Scheduler advances the world one tick at a time. Each sub-system runs when
// the tick hits its configured modulus, always in the same order, so two
// worlds with the same seed and parameters replay identically.
type Scheduler struct {
	w *World
}

func NewScheduler(w *World) *Scheduler { return &Scheduler{w: w} }

// Step advances exactly one tick.
func (s *Scheduler) Step() {
	w := s.w
	w.tick++
	t := w.tick

	if t%w.cfg.Ticks.MarketRate == 0 {
		if n := w.eng.Prune(t); n > 0 {
			w.log.Debug("pruned stale orders", zap.Uint64("tick", t), zap.Int("count", n))
		}
	}
	if t%w.cfg.Ticks.DailyRate == 0 {
		s.daily(t)
	}
	if t%w.cfg.Ticks.MacroRate == 0 {
		s.macro(t)
	}
}

// RunTicks advances n ticks.
func (s *Scheduler) RunTicks(n uint64) {
	for i := uint64(0); i < n; i++ {
		s.Step()
	}
}

// RunDays advances whole daily cycles.
func (s *Scheduler) RunDays(n uint64) {
	s.RunTicks(n * s.w.cfg.Ticks.DailyRate)
}

// daily runs the full economic cycle in fixed stage order.
func (s *Scheduler) daily(t uint64) {
	w := s.w

	if w.events != nil {
		w.events.RunEvents(w)
	}
	w.bk.SetRates(bank.Macro{
		Inflation:    w.lastReport.Inflation,
		Unemployment: w.lastReport.Unemployment,
		Sentiment:    w.sentiment,
	})

	if w.labor != nil {
		w.labor.Match(w)
	}
	s.updateSentiment()

	if w.consumption != nil {
		w.consumption.Consume(w)
	}
	if w.labor != nil {
		w.labor.Payroll(w)
	}
	if w.production != nil {
		w.production.Produce(w)
	}

	s.bankOps(t)

	w.day++
	s.accounting()
	w.lastReport = w.aud.Run(t, w.flows, w.Employed(), len(w.households))
	w.flows = audit.Flows{}
	w.bk.RecordDay(w.day)
}

// bankOps runs the sweep, accrual, and credit cycle, then winds down any firm
// that crossed the insolvency threshold.
func (s *Scheduler) bankOps(t uint64) {
	w := s.w

	hhAccts := make([]*ledger.Account, 0, len(w.households))
	for _, h := range w.households {
		hhAccts = append(hhAccts, h.Acct)
	}
	w.bk.SweepHouseholds(hhAccts)
	w.bk.AccrueInterest()

	views := make([]*bank.FirmView, 0, len(w.firms))
	for _, f := range w.firms {
		if f.Bankrupt {
			continue
		}
		views = append(views, &bank.FirmView{
			Acct:          f.Acct,
			Collateral:    w.inventoryValue(f),
			Profitability: f.Profitability,
		})
	}
	for _, id := range w.bk.FirmPass(views, t) {
		s.windDown(id, t)
	}
}

// windDown handles one firm default: the loan book is written off, every
// resting order is cancelled and refunded, and the workforce is released.
// The account itself stays on the ledger so history remains resolvable.
func (s *Scheduler) windDown(id ledger.PartyID, t uint64) {
	w := s.w
	f := w.firmIndex[id]
	if f == nil || f.Bankrupt {
		return
	}
	written := w.bk.WriteOff(id)
	f.Bankrupt = true
	cancelled := w.CancelAllOrders(id, "")
	for _, worker := range f.Employees {
		if h := w.hhIndex[worker]; h != nil && h.Employer == id {
			h.Employer = 0
		}
	}
	f.Employees = nil
	w.log.Warn("firm wound down",
		zap.Uint64("firm", uint64(id)),
		zap.Uint64("tick", t),
		zap.Float64("written_off", written),
		zap.Int("orders_cancelled", cancelled))
}

// accounting refreshes each live firm's profitability signal from the change
// in its cash position over the cycle.
func (s *Scheduler) accounting() {
	for _, f := range s.w.firms {
		if f.Bankrupt {
			continue
		}
		denom := f.lastCash
		if denom < 1 {
			denom = 1
		}
		p := (f.Acct.Cash - f.lastCash) / denom
		if p > 1 {
			p = 1
		} else if p < -1 {
			p = -1
		}
		f.Profitability = p
		f.lastCash = f.Acct.Cash
	}
}

// updateSentiment drifts consumer sentiment toward the employment rate, with
// a penalty for inflation running above target and a little seeded noise.
func (s *Scheduler) updateSentiment() {
	w := s.w
	empRate := 1.0
	if len(w.households) > 0 {
		empRate = float64(w.Employed()) / float64(len(w.households))
	}
	over := w.lastReport.Inflation - w.cfg.Bank.TargetInflation
	if over < 0 {
		over = 0
	}
	target := empRate - 3*over
	v := 0.8*w.sentiment + 0.2*target + 0.02*(w.rng.Float64()-0.5)
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	w.sentiment = v
}

// macro runs the slow pipeline: equity revaluation, fiscal policy, the
// business-cycle phase update, then a health line for the operator.
func (s *Scheduler) macro(t uint64) {
	w := s.w

	s.revalueShares()
	if w.fiscal != nil {
		w.fiscal.RunFiscal(w)
	}
	s.advanceCycle()

	snap := w.MacroSnapshot()
	w.log.Info("macro health",
		zap.Uint64("tick", t),
		zap.Uint64("day", snap.Day),
		zap.String("phase", snap.Phase.String()),
		zap.Float64("gdp", snap.GDP),
		zap.Float64("cpi", snap.CPI),
		zap.Float64("inflation", snap.Inflation),
		zap.Float64("unemployment", snap.Unemployment),
		zap.Float64("sentiment", snap.Sentiment),
		zap.Float64("health", snap.Health),
		zap.Float64("money_base", snap.MoneyBase),
		zap.Float64("loans", snap.TotalLoans),
		zap.Float64("loan_rate", snap.LoanRate),
		zap.Int("findings", snap.Findings))
}

// revalueShares marks idle equity books to fundamental value: cash plus
// inventory over shares outstanding. Books with live quotes are left to the
// market.
func (s *Scheduler) revalueShares() {
	w := s.w
	shares := w.cfg.World.SharesOutstanding
	if shares <= 0 {
		return
	}
	for _, f := range w.firms {
		if f.Bankrupt {
			continue
		}
		b := w.eng.Book(f.Share)
		if b == nil || b.Demand() > 0 || b.Supply() > 0 {
			continue
		}
		fair := (f.Acct.Cash + w.inventoryValue(f)) / shares
		if it := w.cat.Get(f.Share); it != nil && fair < it.PriceFloor {
			fair = it.PriceFloor
		}
		b.SetLastPrice(fair)
	}
}

// advanceCycle moves the business-cycle phase from realized GDP growth. A
// phase must survive minPhaseAge macro cycles before it can flip, so one
// noisy reading never whips the cycle back and forth.
func (s *Scheduler) advanceCycle() {
	w := s.w
	gdp := w.lastReport.GDP
	growth := 0.0
	if w.prevGDP > 0 {
		growth = (gdp - w.prevGDP) / w.prevGDP
	}
	w.prevGDP = gdp

	const (
		band        = 0.01
		minPhaseAge = 2
	)
	next := w.phase
	switch {
	case growth > band:
		next = Expansion
	case growth < -band:
		next = Contraction
	default:
		switch w.phase {
		case Expansion:
			next = PhasePeak
		case Contraction:
			next = Trough
		}
	}
	if next == w.phase || w.phaseAge < minPhaseAge {
		w.phaseAge++
		return
	}
	w.phase = next
	w.phaseAge = 0
}
