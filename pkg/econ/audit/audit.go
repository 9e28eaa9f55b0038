package audit

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
)

// Severity ranks a finding.
type Severity int8

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Finding is one recorded anomaly. Code is a stable machine-readable tag;
// Detail is for humans.
type Finding struct {
	Tick     uint64
	Severity Severity
	Code     string
	Detail   string
}

// Anomaly codes.
const (
	CodeMoneyLeak  = "money_leak"
	CodeBadPrice   = "bad_price"
	CodeBadBalance = "bad_balance"
	CodeBadQty     = "bad_quantity"
	CodeStagnation = "stagnation"
)

// Flows are the expenditure accumulators the simulation gathers between
// audits. The auditor consumes and does not reset them.
type Flows struct {
	Consumption float64 // household spend on goods at traded prices
	Investment  float64 // firm spend on inputs and capital
	Government  float64 // treasury outlays
	Wages       float64 // payroll paid
	TaxRevenue  float64 // consumption + income tax collected
}

// Report is one cycle's macro accounting snapshot.
type Report struct {
	Tick         uint64
	GDP          float64
	CPI          float64
	Inflation    float64 // relative CPI change since the previous audit
	Unemployment float64
	MoneyBase    float64
	Deposits     float64
	Drift        float64 // observed minus tracked base before any resync
	Findings     int     // findings raised by this run
}

// DepositSource is the slice of the bank the auditor reads.
type DepositSource interface {
	TotalDeposits() float64
}

// Auditor verifies the hard invariants every accounting cycle and produces
// the macro aggregates. It never panics on corruption: bad values are clamped
// to sane floors, logged, and recorded as findings, and a conservation breach
// self-heals by re-basing the tracked total.
type Auditor struct {
	cfg params.Audit
	num params.Numeric

	led  *ledger.Ledger
	eng  *book.Engine
	cat  *market.Catalog
	bank DepositSource

	baseCPI  float64
	prevCPI  float64
	gdpHist  []float64
	findings []Finding
	total    int
	last     Report

	log *zap.Logger
}

func New(cfg params.Audit, num params.Numeric, led *ledger.Ledger, eng *book.Engine, cat *market.Catalog, bank DepositSource, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Auditor{
		cfg:  cfg,
		num:  num,
		led:  led,
		eng:  eng,
		cat:  cat,
		bank: bank,
		log:  log,
	}
	a.baseCPI = a.basketCost(func(it *market.Item) float64 { return it.InitialPrice })
	a.prevCPI = a.baseCPI
	return a
}

// BaseCPI returns the basket cost at initial prices, the base period for a
// 100-normalized price index.
func (a *Auditor) BaseCPI() float64 { return a.baseCPI }

// Findings returns the bounded findings ring, oldest first.
func (a *Auditor) Findings() []Finding { return a.findings }

// TotalFindings returns the cumulative count, including findings already
// evicted from the ring.
func (a *Auditor) TotalFindings() int { return a.total }

// Last returns the most recent report.
func (a *Auditor) Last() Report { return a.last }

// Run performs one full audit: sanitize prices and balances, verify money
// conservation, then compute the cycle's macro aggregates.
func (a *Auditor) Run(tick uint64, flows Flows, employed, laborForce int) Report {
	before := a.total
	a.sanitizePrices(tick)
	a.sanitizeBalances(tick)
	drift := a.checkConservation(tick)

	cpi := a.basketCost(a.marketPrice)
	inflation := 0.0
	if a.prevCPI > 0 {
		inflation = (cpi - a.prevCPI) / a.prevCPI
	}
	a.prevCPI = cpi

	gdp := flows.Consumption + flows.Investment + flows.Government
	a.trackStagnation(tick, gdp)

	unemployment := 0.0
	if laborForce > 0 {
		unemployment = 1 - float64(employed)/float64(laborForce)
	}

	deposits := 0.0
	if a.bank != nil {
		deposits = a.bank.TotalDeposits()
	}

	a.last = Report{
		Tick:         tick,
		GDP:          gdp,
		CPI:          cpi,
		Inflation:    inflation,
		Unemployment: unemployment,
		MoneyBase:    a.led.Base(),
		Deposits:     deposits,
		Drift:        drift,
		Findings:     a.total - before,
	}
	return a.last
}

// sanitizePrices clamps corrupted reference prices. A price that is negative
// or non-finite is forced to the item's floor and raises one finding; a zero
// price just means the item has not traded yet.
func (a *Auditor) sanitizePrices(tick uint64) {
	for _, it := range a.cat.List() {
		bk := a.eng.Book(it.ID)
		if bk == nil {
			continue
		}
		lp := bk.LastPrice()
		if lp == 0 || (lp > 0 && !math.IsInf(lp, 0) && !math.IsNaN(lp)) {
			continue
		}
		floor := it.PriceFloor
		if floor < a.num.PriceFloor {
			floor = a.num.PriceFloor
		}
		bk.SetLastPrice(floor)
		a.record(tick, Critical, CodeBadPrice,
			fmt.Sprintf("item %s price %g clamped to %g", it.ID, lp, floor))
	}
}

// sanitizeBalances clamps non-finite or impossible account state. Cash is the
// dangerous field: a NaN would poison the conservation sum and a negative
// balance cannot arise through any verb, so both are forced to 0 before the
// check runs and the re-sync absorbs the delta.
func (a *Auditor) sanitizeBalances(tick uint64) {
	a.led.ForEach(func(acct *ledger.Account) {
		if math.IsNaN(acct.Cash) || math.IsInf(acct.Cash, 0) {
			a.record(tick, Critical, CodeBadBalance,
				fmt.Sprintf("party %d cash %g reset to 0", acct.ID, acct.Cash))
			acct.Cash = 0
		}
		if acct.Cash < 0 {
			a.record(tick, Critical, CodeBadBalance,
				fmt.Sprintf("party %d cash %g clamped to 0", acct.ID, acct.Cash))
			acct.Cash = 0
		}
		if acct.LockedCash < 0 || math.IsNaN(acct.LockedCash) || math.IsInf(acct.LockedCash, 0) {
			a.record(tick, Warning, CodeBadBalance,
				fmt.Sprintf("party %d locked cash %g reset to 0", acct.ID, acct.LockedCash))
			acct.LockedCash = 0
		}
		if acct.LockedCash > acct.Cash {
			a.record(tick, Warning, CodeBadBalance,
				fmt.Sprintf("party %d escrow %g exceeds cash %g", acct.ID, acct.LockedCash, acct.Cash))
			acct.LockedCash = acct.Cash
		}
		for item, qty := range acct.Inventory {
			if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
				a.record(tick, Warning, CodeBadQty,
					fmt.Sprintf("party %d inventory %s %g reset to 0", acct.ID, item, qty))
				acct.Inventory[item] = 0
			}
		}
	})
}

// checkConservation compares every unit of cash in existence against the
// tracked base. Drift beyond the tolerance is a kernel bug: it is reported and
// the tracked base is re-synced to the observed total so one leak does not
// drown every later audit in repeat findings.
func (a *Auditor) checkConservation(tick uint64) float64 {
	observed := a.led.TotalCash()
	drift := observed - a.led.Base()
	if math.Abs(drift) > a.num.MoneyTolerance {
		a.record(tick, Critical, CodeMoneyLeak,
			fmt.Sprintf("observed %g vs tracked %g (drift %g)", observed, a.led.Base(), drift))
		a.log.Error("money conservation violated",
			zap.Uint64("tick", tick),
			zap.Float64("drift", drift))
		a.led.ResyncBase(observed)
	}
	return drift
}

func (a *Auditor) trackStagnation(tick uint64, gdp float64) {
	a.gdpHist = append(a.gdpHist, gdp)
	if len(a.gdpHist) > a.cfg.StagnationWindow {
		a.gdpHist = a.gdpHist[1:]
	}
	if len(a.gdpHist) < a.cfg.StagnationWindow || a.cfg.StagnationWindow < 2 {
		return
	}
	lo, hi := a.gdpHist[0], a.gdpHist[0]
	for _, g := range a.gdpHist[1:] {
		lo = math.Min(lo, g)
		hi = math.Max(hi, g)
	}
	if hi-lo <= 1e-9 {
		a.record(tick, Warning, CodeStagnation,
			fmt.Sprintf("gdp flat at %g for %d audits", gdp, a.cfg.StagnationWindow))
	}
}

// basketCost prices the fixed consumption basket with the given price source.
func (a *Auditor) basketCost(price func(*market.Item) float64) float64 {
	cost := 0.0
	for _, it := range a.cat.Goods() {
		cost += it.BasketWeight * price(it)
	}
	return cost
}

// marketPrice is the CPI price source: last traded price, falling back to the
// item's initial price before first trade.
func (a *Auditor) marketPrice(it *market.Item) float64 {
	if bk := a.eng.Book(it.ID); bk != nil {
		if lp := bk.LastPrice(); lp > 0 {
			return lp
		}
	}
	return it.InitialPrice
}

func (a *Auditor) record(tick uint64, sev Severity, code, detail string) {
	a.total++
	a.findings = append(a.findings, Finding{Tick: tick, Severity: sev, Code: code, Detail: detail})
	if a.cfg.FindingsCap > 0 && len(a.findings) > a.cfg.FindingsCap {
		a.findings = a.findings[len(a.findings)-a.cfg.FindingsCap:]
	}
	switch sev {
	case Critical:
		a.log.Error("audit finding", zap.Uint64("tick", tick), zap.String("code", code), zap.String("detail", detail))
	case Warning:
		a.log.Warn("audit finding", zap.Uint64("tick", tick), zap.String("code", code), zap.String("detail", detail))
	default:
		a.log.Info("audit finding", zap.Uint64("tick", tick), zap.String("code", code), zap.String("detail", detail))
	}
}
